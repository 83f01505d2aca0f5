package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"edulms/internal/app"
	"edulms/internal/app/observability"
	"edulms/internal/auth"
	"edulms/internal/db"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		// the configured logger is not available yet
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		Dev:   cfg.IsDevelopment(),
	})
	defer func() { _ = logger.Sync() }()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer("edulms", cfg.TracingEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(ctx)
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	dbConn, err := db.OpenWithConfig(ctx, cfg.DBDriver, cfg.DBDSN, cfg.PoolConfig())
	cancel()
	if err != nil {
		logger.Fatal("database error", zap.String("driver", string(cfg.DBDriver)), zap.Error(err))
	}
	defer dbConn.Close()

	if cfg.BootstrapAdminUsername != "" {
		authSvc := auth.NewService(dbConn, auth.ServiceConfig{Secret: cfg.JWTSecret, TokenTTL: cfg.JWTTTL, BcryptCost: cfg.BcryptCost})
		created, err := authSvc.EnsureAdmin(context.Background(), cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword)
		if err != nil {
			logger.Fatal("bootstrap admin", zap.Error(err))
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("username", cfg.BootstrapAdminUsername))
		}
	}

	metrics := observability.NewMetrics(dbConn)
	stop := make(chan struct{})
	defer close(stop)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewRouter(cfg, dbConn, logger, metrics, stop),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("edulms web listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok {
			logger.Error("server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
