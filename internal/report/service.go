package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"edulms/internal/analysis"
)

var ErrExamNotFound = errors.New("exam not found")

const (
	summarySheet = "Summary"
	itemsSheet   = "Items"
)

type analyzer interface {
	AnalyzeExam(ctx context.Context, examID int64, persist bool) ([]analysis.QuestionMetrics, error)
}

type Service struct {
	db       *sql.DB
	analyzer analyzer
	logger   *zap.Logger
	now      func() time.Time
}

type ExamSummary struct {
	ExamID            int64   `json:"exam_id"`
	Title             string  `json:"title"`
	Participants      int     `json:"participants"`
	AverageScore      float64 `json:"average_score"`
	AveragePercentage float64 `json:"average_percentage"`
	HighestScore      float64 `json:"highest_score"`
	LowestScore       float64 `json:"lowest_score"`
	MedianScore       float64 `json:"median_score"`
}

// Export is a rendered workbook ready to be streamed.
type Export struct {
	FileName string
	Content  []byte
}

func NewService(db *sql.DB, analyzer analyzer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, analyzer: analyzer, logger: logger, now: time.Now}
}

// SummaryByExam describes the score distribution of an exam. Exams without
// results report zero participants and zero scores.
func (s *Service) SummaryByExam(ctx context.Context, examID int64) (*ExamSummary, error) {
	out := &ExamSummary{ExamID: examID}
	err := s.db.QueryRowContext(ctx, `SELECT title FROM exams WHERE id = $1`, examID).Scan(&out.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT score, percentage FROM exam_results WHERE exam_id = $1`, examID)
	if err != nil {
		return nil, fmt.Errorf("query exam results: %w", err)
	}
	defer rows.Close()

	var scores []float64
	var sumPercentage float64
	for rows.Next() {
		var score, percentage float64
		if err := rows.Scan(&score, &percentage); err != nil {
			return nil, fmt.Errorf("scan exam result: %w", err)
		}
		scores = append(scores, score)
		sumPercentage += percentage
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam results: %w", err)
	}
	if len(scores) == 0 {
		return out, nil
	}

	sort.Float64s(scores)
	var sum float64
	for _, v := range scores {
		sum += v
	}
	n := len(scores)
	out.Participants = n
	out.AverageScore = round2(sum / float64(n))
	out.AveragePercentage = round2(sumPercentage / float64(n))
	out.LowestScore = scores[0]
	out.HighestScore = scores[n-1]
	if n%2 == 1 {
		out.MedianScore = scores[n/2]
	} else {
		out.MedianScore = round2((scores[n/2-1] + scores[n/2]) / 2)
	}
	return out, nil
}

// ExportExamAnalysis renders the score summary and the item analysis of an
// exam into an xlsx workbook. Metrics are computed fresh and not persisted.
func (s *Service) ExportExamAnalysis(ctx context.Context, examID int64) (*Export, error) {
	summary, err := s.SummaryByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	metrics, err := s.analyzer.AnalyzeExam(ctx, examID, false)
	if err != nil {
		if errors.Is(err, analysis.ErrExamNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("analyze exam: %w", err)
	}
	stats := analysis.Aggregate(metrics)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	f.SetSheetName(f.GetSheetName(0), summarySheet)
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("create items sheet: %w", err)
	}

	summaryRows := [][]any{
		{"Exam", summary.Title},
		{"Exam ID", summary.ExamID},
		{"Generated at", s.now().UTC().Format(time.RFC3339)},
		{"Participants", summary.Participants},
		{"Average score", summary.AverageScore},
		{"Average percentage", summary.AveragePercentage},
		{"Highest score", summary.HighestScore},
		{"Lowest score", summary.LowestScore},
		{"Median score", summary.MedianScore},
		{"Analyzed questions", stats.TotalQuestions},
		{"Easy", stats.DifficultyDistribution.Easy.Count},
		{"Moderate", stats.DifficultyDistribution.Moderate.Count},
		{"Hard", stats.DifficultyDistribution.Hard.Count},
		{"Good discrimination", stats.DiscriminationDistribution.Good.Count},
		{"Fair discrimination", stats.DiscriminationDistribution.Fair.Count},
		{"Poor discrimination", stats.DiscriminationDistribution.Poor.Count},
		{"Qualified questions", stats.Quality.QualifiedCount},
		{"Qualified percentage", stats.Quality.QualifiedPercentage},
		{"Average quality score", stats.Quality.AverageQualityScore},
		{"Average p value", stats.Quality.AveragePValue},
		{"Average discrimination", stats.Quality.AverageDiscrimination},
	}
	if err := writeRows(f, summarySheet, summaryRows); err != nil {
		return nil, err
	}

	itemRows := make([][]any, 0, len(metrics)+1)
	itemRows = append(itemRows, []any{
		"question_id", "question_type", "total_attempts", "correct_attempts",
		"p_value", "difficulty_score", "difficulty_level",
		"discrimination_index", "discrimination_level",
		"quality_score", "is_qualified", "recommendations",
	})
	for _, m := range metrics {
		itemRows = append(itemRows, []any{
			m.QuestionID, m.QuestionType, m.TotalAttempts, m.CorrectAttempts,
			m.PValue, m.DifficultyScore, m.DifficultyLevel,
			m.DiscriminationIndex, m.DiscriminationLevel,
			m.QualityScore, m.IsQualified, strings.Join(m.Recommendations, "; "),
		})
	}
	if err := writeRows(f, itemsSheet, itemRows); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(summarySheet, "A", "B", 28)
	_ = f.SetColWidth(itemsSheet, "A", "L", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}

	s.logger.Info("exam analysis exported",
		zap.Int64("exam_id", examID),
		zap.Int("participants", summary.Participants),
		zap.Int("questions", len(metrics)),
	)
	return &Export{
		FileName: fmt.Sprintf("exam-%d-analysis-%s.xlsx", examID, uuid.NewString()[:8]),
		Content:  buf.Bytes(),
	}, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := values
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
