package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"edulms/internal/app/observability"
	"edulms/internal/db"
)

var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
)

type Service struct {
	db      *sql.DB
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// QuestionReport is the last persisted analysis of a question. Analyzed is
// false until metrics have been written at least once.
type QuestionReport struct {
	QuestionID      int64         `json:"question_id"`
	ExamID          int64         `json:"exam_id"`
	Content         string        `json:"content"`
	QuestionType    string        `json:"question_type"`
	Analyzed        bool          `json:"analyzed"`
	Metrics         ReportMetrics `json:"metrics"`
	Recommendations []string      `json:"recommendations"`
	LastAnalyzed    *time.Time    `json:"last_analyzed,omitempty"`
}

type ReportMetrics struct {
	TotalAttempts       int     `json:"total_attempts"`
	CorrectAttempts     int     `json:"correct_attempts"`
	PValue              float64 `json:"p_value"`
	DifficultyScore     float64 `json:"difficulty_score"`
	DifficultyLevel     string  `json:"difficulty_level"`
	DiscriminationIndex float64 `json:"discrimination_index"`
	DiscriminationLevel string  `json:"discrimination_level"`
	QualityScore        float64 `json:"quality_score"`
	IsQualified         bool    `json:"is_qualified"`
}

type examQuestion struct {
	id    int64
	qType string
}

func NewService(db *sql.DB, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger, metrics: metrics, now: time.Now}
}

// AnalyzeQuestion computes metrics for one question within one exam. It
// returns nil metrics when the question has no attempts or the exam has no
// results yet.
func (s *Service) AnalyzeQuestion(ctx context.Context, questionID, examID int64) (*QuestionMetrics, error) {
	ctx, span := observability.StartSpan(ctx, "analysis.AnalyzeQuestion")
	defer span.End()
	span.SetAttributes(attribute.Int64("question.id", questionID), attribute.Int64("exam.id", examID))
	start := time.Now()

	var qType string
	err := s.db.QueryRowContext(ctx, `SELECT question_type FROM questions WHERE question_id = $1`, questionID).Scan(&qType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}

	attempts, err := s.questionAttempts(ctx, questionID, examID)
	if err != nil {
		return nil, err
	}
	results, err := s.examScores(ctx, examID)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 || len(results) == 0 {
		s.logger.Warn("question analysis skipped",
			zap.Int64("question_id", questionID),
			zap.Int64("exam_id", examID),
			zap.Int("attempts", len(attempts)),
			zap.Int("results", len(results)),
		)
		return nil, nil
	}

	m := Analyze(ItemInput{QuestionID: questionID, QuestionType: qType, Attempts: attempts, Results: results}, s.now().UTC())
	s.metrics.ObserveAnalysis("question", time.Since(start).Seconds(), 1, boolCount(m.IsQualified))
	return &m, nil
}

// AnalyzeExam analyzes every exam question that has at least one attempt, in
// exam order. With persist set the metrics are written back onto the
// questions in a single transaction.
func (s *Service) AnalyzeExam(ctx context.Context, examID int64, persist bool) ([]QuestionMetrics, error) {
	ctx, span := observability.StartSpan(ctx, "analysis.AnalyzeExam")
	defer span.End()
	span.SetAttributes(attribute.Int64("exam.id", examID), attribute.Bool("persist", persist))
	start := time.Now()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams WHERE id = $1`, examID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check exam: %w", err)
	}
	if exists == 0 {
		return nil, ErrExamNotFound
	}

	questions, err := s.examQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	results, err := s.examScores(ctx, examID)
	if err != nil {
		return nil, err
	}
	byQuestion, err := s.examAttempts(ctx, examID)
	if err != nil {
		return nil, err
	}

	out := make([]QuestionMetrics, 0, len(questions))
	if len(questions) == 0 || len(results) == 0 {
		s.logger.Warn("exam analysis skipped", zap.Int64("exam_id", examID), zap.Int("questions", len(questions)), zap.Int("results", len(results)))
		return out, nil
	}

	analyzedAt := s.now().UTC()
	qualified := 0
	for _, q := range questions {
		attempts := byQuestion[q.id]
		if len(attempts) == 0 {
			continue
		}
		m := Analyze(ItemInput{QuestionID: q.id, QuestionType: q.qType, Attempts: attempts, Results: results}, analyzedAt)
		if m.IsQualified {
			qualified++
		}
		out = append(out, m)
	}

	if persist && len(out) > 0 {
		if err := s.persist(ctx, out); err != nil {
			return nil, err
		}
	}

	s.metrics.ObserveAnalysis("exam", time.Since(start).Seconds(), len(out), qualified)
	s.logger.Info("exam analyzed",
		zap.Int64("exam_id", examID),
		zap.Int("questions", len(questions)),
		zap.Int("analyzed", len(out)),
		zap.Int("qualified", qualified),
		zap.Bool("persisted", persist && len(out) > 0),
	)
	return out, nil
}

func (s *Service) GetStatistics(ctx context.Context, examID int64) (ExamStatistics, error) {
	metrics, err := s.AnalyzeExam(ctx, examID, false)
	if err != nil {
		return ExamStatistics{}, err
	}
	return Aggregate(metrics), nil
}

// Report reads the metrics last persisted onto the question.
func (s *Service) Report(ctx context.Context, questionID int64) (*QuestionReport, error) {
	var (
		r               QuestionReport
		totalAttempts   sql.NullInt64
		correctAttempts sql.NullInt64
		pValue          sql.NullFloat64
		difficulty      sql.NullFloat64
		difficultyLevel sql.NullString
		discrimination  sql.NullFloat64
		discLevel       sql.NullString
		quality         sql.NullFloat64
		qualified       sql.NullBool
		recommendations sql.NullString
		lastAnalyzed    sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT question_id, exam_id, question_text, question_type,
		       total_attempts, correct_attempts, p_value, difficulty_score, difficulty_level,
		       discrimination_index, discrimination_level, quality_score, is_qualified,
		       recommendations, last_analyzed
		FROM questions
		WHERE question_id = $1
	`, questionID).Scan(
		&r.QuestionID, &r.ExamID, &r.Content, &r.QuestionType,
		&totalAttempts, &correctAttempts, &pValue, &difficulty, &difficultyLevel,
		&discrimination, &discLevel, &quality, &qualified,
		&recommendations, &lastAnalyzed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question report: %w", err)
	}

	r.Metrics = ReportMetrics{
		TotalAttempts:       int(totalAttempts.Int64),
		CorrectAttempts:     int(correctAttempts.Int64),
		PValue:              pValue.Float64,
		DifficultyScore:     difficulty.Float64,
		DifficultyLevel:     difficultyLevel.String,
		DiscriminationIndex: discrimination.Float64,
		DiscriminationLevel: discLevel.String,
		QualityScore:        quality.Float64,
		IsQualified:         qualified.Bool,
	}
	r.Recommendations = make([]string, 0)
	if recommendations.Valid && recommendations.String != "" {
		if err := json.Unmarshal([]byte(recommendations.String), &r.Recommendations); err != nil {
			s.logger.Warn("stored recommendations unreadable", zap.Int64("question_id", questionID), zap.Error(err))
			r.Recommendations = make([]string, 0)
		}
	}
	if lastAnalyzed.Valid {
		t := lastAnalyzed.Time
		r.LastAnalyzed = &t
		r.Analyzed = true
	}
	return &r, nil
}

func (s *Service) persist(ctx context.Context, metrics []QuestionMetrics) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, m := range metrics {
			recs, err := json.Marshal(m.Recommendations)
			if err != nil {
				return fmt.Errorf("encode recommendations: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE questions SET
					total_attempts = $1,
					correct_attempts = $2,
					p_value = $3,
					difficulty_score = $4,
					difficulty_level = $5,
					discrimination_index = $6,
					discrimination_level = $7,
					quality_score = $8,
					is_qualified = $9,
					recommendations = $10,
					last_analyzed = $11
				WHERE question_id = $12
			`, m.TotalAttempts, m.CorrectAttempts, m.PValue, m.DifficultyScore, m.DifficultyLevel,
				m.DiscriminationIndex, m.DiscriminationLevel, m.QualityScore, m.IsQualified,
				string(recs), m.LastAnalyzed, m.QuestionID); err != nil {
				return fmt.Errorf("update question metrics: %w", err)
			}
		}
		return nil
	})
}

func (s *Service) examQuestions(ctx context.Context, examID int64) ([]examQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.question_id, q.question_type
		FROM exam_questions eq
		JOIN questions q ON q.question_id = eq.question_id
		WHERE eq.exam_id = $1
		ORDER BY eq.order_index ASC, q.question_id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query exam questions: %w", err)
	}
	defer rows.Close()

	var out []examQuestion
	for rows.Next() {
		var q examQuestion
		if err := rows.Scan(&q.id, &q.qType); err != nil {
			return nil, fmt.Errorf("scan exam question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam questions: %w", err)
	}
	return out, nil
}

func (s *Service) examScores(ctx context.Context, examID int64) ([]ExamScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, score FROM exam_results WHERE exam_id = $1 ORDER BY id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query exam results: %w", err)
	}
	defer rows.Close()

	var out []ExamScore
	for rows.Next() {
		var r ExamScore
		if err := rows.Scan(&r.ResultID, &r.StudentID, &r.TotalScore); err != nil {
			return nil, fmt.Errorf("scan exam result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam results: %w", err)
	}
	return out, nil
}

func (s *Service) questionAttempts(ctx context.Context, questionID, examID int64) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sa.exam_result_id, er.student_id, sa.is_correct
		FROM student_answers sa
		JOIN exam_results er ON er.id = sa.exam_result_id
		WHERE sa.question_id = $1 AND er.exam_id = $2
		ORDER BY sa.id ASC
	`, questionID, examID)
	if err != nil {
		return nil, fmt.Errorf("query question attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ResultID, &a.StudentID, &a.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan question attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question attempts: %w", err)
	}
	return out, nil
}

func (s *Service) examAttempts(ctx context.Context, examID int64) (map[int64][]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sa.question_id, sa.exam_result_id, er.student_id, sa.is_correct
		FROM student_answers sa
		JOIN exam_results er ON er.id = sa.exam_result_id
		WHERE er.exam_id = $1
		ORDER BY sa.id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query exam attempts: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Attempt)
	for rows.Next() {
		var (
			questionID int64
			a          Attempt
		)
		if err := rows.Scan(&questionID, &a.ResultID, &a.StudentID, &a.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan exam attempt: %w", err)
		}
		out[questionID] = append(out[questionID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam attempts: %w", err)
	}
	return out, nil
}

func boolCount(v bool) int {
	if v {
		return 1
	}
	return 0
}
