// Command itemanalysis runs the item analysis of one exam from the command
// line and optionally writes the metrics back or exports them as xlsx.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"edulms/internal/analysis"
	"edulms/internal/app"
	"edulms/internal/app/observability"
	"edulms/internal/db"
	"edulms/internal/report"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "itemanalysis:", err)
		os.Exit(1)
	}
}

// run writes the JSON document to stdout and everything else, logs and
// usage included, to stderr.
func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("itemanalysis", flag.ContinueOnError)
	fs.SetOutput(stderr)
	examID := fs.Int64("exam", 0, "exam id to analyze")
	persist := fs.Bool("persist", false, "write metrics back onto the questions")
	out := fs.String("out", "", "write an xlsx analysis workbook to this path")
	driver := fs.String("driver", string(cfg.DBDriver), "database driver (postgres or sqlite)")
	dsn := fs.String("dsn", cfg.DBDSN, "database dsn")
	timeout := fs.Duration("timeout", 2*time.Minute, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *examID <= 0 {
		fs.Usage()
		return fmt.Errorf("-exam is required")
	}
	dbDriver, err := db.ParseDriver(*driver)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Dev:    true,
		Output: stderr,
	})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := db.OpenWithConfig(ctx, dbDriver, *dsn, cfg.PoolConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	svc := analysis.NewService(conn, logger.Named("analysis"), nil)
	metrics, err := svc.AnalyzeExam(ctx, *examID, *persist)
	if err != nil {
		return fmt.Errorf("analyze exam %d: %w", *examID, err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"exam_id":    *examID,
		"persisted":  *persist && len(metrics) > 0,
		"questions":  metrics,
		"statistics": analysis.Aggregate(metrics),
	}); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if *out != "" {
		export, err := report.NewService(conn, svc, logger.Named("report")).ExportExamAnalysis(ctx, *examID)
		if err != nil {
			return fmt.Errorf("export workbook: %w", err)
		}
		if err := os.WriteFile(*out, export.Content, 0o644); err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		logger.Info("workbook written", zap.String("path", *out), zap.Int("bytes", len(export.Content)))
	}
	return nil
}
