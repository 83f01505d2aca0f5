package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"edulms/internal/db"
	"edulms/internal/exam"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
)

type Service struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

type OptionInput struct {
	OptionText string `json:"option_text" validate:"required,max=2000"`
	IsCorrect  bool   `json:"is_correct"`
}

// QuestionInput describes a full question. Options only apply to multiple
// choice; CorrectAnswer only to true/false and short answer.
type QuestionInput struct {
	QuestionText  string        `json:"question_text" validate:"required,max=10000"`
	QuestionType  string        `json:"question_type" validate:"required"`
	Points        *float64      `json:"points" validate:"omitempty,gte=0"`
	Options       []OptionInput `json:"options" validate:"dive"`
	CorrectAnswer *string       `json:"correct_answer"`
}

type Option struct {
	OptionID   int64  `json:"option_id"`
	OptionText string `json:"option_text"`
	IsCorrect  bool   `json:"is_correct"`
}

type Question struct {
	QuestionID    int64     `json:"question_id"`
	ExamID        int64     `json:"exam_id"`
	QuestionText  string    `json:"question_text"`
	QuestionType  string    `json:"question_type"`
	Points        float64   `json:"points"`
	OrderIndex    int       `json:"order_index"`
	Options       []Option  `json:"options"`
	CorrectAnswer *string   `json:"correct_answer,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewService(db *sql.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger, now: time.Now}
}

// AddQuestion appends a question to the end of the exam together with its
// options or stored answer.
func (s *Service) AddQuestion(ctx context.Context, examID int64, in QuestionInput) (*Question, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	var questionID int64
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		id, err := s.addQuestionTx(ctx, tx, examID, in)
		questionID = id
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetQuestion(ctx, questionID)
}

func (s *Service) addQuestionTx(ctx context.Context, tx *sql.Tx, examID int64, in QuestionInput) (int64, error) {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams WHERE id = $1`, examID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check exam: %w", err)
	}
	if exists == 0 {
		return 0, ErrExamNotFound
	}

	now := s.now().UTC()
	var questionID int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO questions (exam_id, question_text, question_type, points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING question_id
	`, examID, in.QuestionText, in.QuestionType, *in.Points, now, now).Scan(&questionID); err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}

	var nextOrder int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(order_index), 0) + 1 FROM exam_questions WHERE exam_id = $1
	`, examID).Scan(&nextOrder); err != nil {
		return 0, fmt.Errorf("next question order: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exam_questions (exam_id, question_id, order_index) VALUES ($1, $2, $3)
	`, examID, questionID, nextOrder); err != nil {
		return 0, fmt.Errorf("link question: %w", err)
	}

	if err := insertKey(ctx, tx, questionID, in); err != nil {
		return 0, err
	}
	return questionID, nil
}

// UpdateQuestion rewrites the question and replaces its options and stored
// answer wholesale.
func (s *Service) UpdateQuestion(ctx context.Context, questionID int64, in QuestionInput) (*Question, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE questions
			SET question_text = $1, question_type = $2, points = $3, updated_at = $4
			WHERE question_id = $5
		`, in.QuestionText, in.QuestionType, *in.Points, s.now().UTC(), questionID)
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrQuestionNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM question_options WHERE question_id = $1`, questionID); err != nil {
			return fmt.Errorf("clear options: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM question_answers WHERE question_id = $1`, questionID); err != nil {
			return fmt.Errorf("clear stored answer: %w", err)
		}
		return insertKey(ctx, tx, questionID, in)
	})
	if err != nil {
		return nil, err
	}
	return s.GetQuestion(ctx, questionID)
}

func (s *Service) DeleteQuestion(ctx context.Context, questionID int64) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM exam_questions WHERE question_id = $1`,
			`DELETE FROM question_options WHERE question_id = $1`,
			`DELETE FROM question_answers WHERE question_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, questionID); err != nil {
				return fmt.Errorf("delete question children: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE question_id = $1`, questionID)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrQuestionNotFound
		}
		return nil
	})
}

// GetQuestion returns the question including its key, for authoring views.
func (s *Service) GetQuestion(ctx context.Context, questionID int64) (*Question, error) {
	var (
		q     Question
		order sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT q.question_id, q.exam_id, q.question_text, q.question_type, q.points,
		       eq.order_index, q.created_at, q.updated_at
		FROM questions q
		LEFT JOIN exam_questions eq ON eq.question_id = q.question_id AND eq.exam_id = q.exam_id
		WHERE q.question_id = $1
	`, questionID).Scan(&q.QuestionID, &q.ExamID, &q.QuestionText, &q.QuestionType, &q.Points, &order, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	q.OrderIndex = int(order.Int64)

	rows, err := s.db.QueryContext(ctx, `
		SELECT option_id, option_text, is_correct
		FROM question_options
		WHERE question_id = $1
		ORDER BY option_id ASC
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	q.Options = make([]Option, 0)
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.OptionID, &o.OptionText, &o.IsCorrect); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan option: %w", err)
		}
		q.Options = append(q.Options, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate options: %w", err)
	}
	rows.Close()

	var answer string
	err = s.db.QueryRowContext(ctx, `SELECT correct_answer FROM question_answers WHERE question_id = $1`, questionID).Scan(&answer)
	switch {
	case err == nil:
		q.CorrectAnswer = &answer
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("load stored answer: %w", err)
	}
	return &q, nil
}

func insertKey(ctx context.Context, tx *sql.Tx, questionID int64, in QuestionInput) error {
	for _, opt := range in.Options {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO question_options (question_id, option_text, is_correct) VALUES ($1, $2, $3)
		`, questionID, opt.OptionText, opt.IsCorrect); err != nil {
			return fmt.Errorf("insert option: %w", err)
		}
	}
	if in.CorrectAnswer != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO question_answers (question_id, correct_answer) VALUES ($1, $2)
		`, questionID, *in.CorrectAnswer); err != nil {
			return fmt.Errorf("insert stored answer: %w", err)
		}
	}
	return nil
}

func normalizeInput(in QuestionInput) (QuestionInput, error) {
	in.QuestionType = strings.ToLower(strings.TrimSpace(in.QuestionType))
	in.QuestionText = strings.TrimSpace(in.QuestionText)

	if !exam.IsValidQuestionType(in.QuestionType) {
		return in, fmt.Errorf("%w: unsupported question_type %q", ErrInvalidInput, in.QuestionType)
	}
	if in.QuestionText == "" {
		return in, fmt.Errorf("%w: question_text is required", ErrInvalidInput)
	}
	if in.Points == nil {
		one := 1.0
		in.Points = &one
	}
	if *in.Points < 0 {
		return in, fmt.Errorf("%w: points must not be negative", ErrInvalidInput)
	}

	switch in.QuestionType {
	case exam.TypeMultipleChoice:
		in.CorrectAnswer = nil
		if len(in.Options) < 2 {
			return in, fmt.Errorf("%w: multiple choice needs at least 2 options", ErrInvalidInput)
		}
		options := make([]OptionInput, 0, len(in.Options))
		correct := 0
		for i, opt := range in.Options {
			opt.OptionText = strings.TrimSpace(opt.OptionText)
			if opt.OptionText == "" {
				return in, fmt.Errorf("%w: options[%d].option_text is required", ErrInvalidInput, i)
			}
			if opt.IsCorrect {
				correct++
			}
			options = append(options, opt)
		}
		if correct == 0 {
			return in, fmt.Errorf("%w: multiple choice needs a correct option", ErrInvalidInput)
		}
		in.Options = options

	case exam.TypeTrueFalse:
		in.Options = nil
		if in.CorrectAnswer == nil {
			return in, fmt.Errorf("%w: correct_answer must be true or false", ErrInvalidInput)
		}
		answer := strings.ToLower(strings.TrimSpace(*in.CorrectAnswer))
		if answer != "true" && answer != "false" {
			return in, fmt.Errorf("%w: correct_answer must be true or false", ErrInvalidInput)
		}
		in.CorrectAnswer = &answer

	case exam.TypeShortAnswer:
		in.Options = nil
		if in.CorrectAnswer == nil || strings.TrimSpace(*in.CorrectAnswer) == "" {
			return in, fmt.Errorf("%w: correct_answer is required", ErrInvalidInput)
		}
		answer := strings.TrimSpace(*in.CorrectAnswer)
		in.CorrectAnswer = &answer
	}
	return in, nil
}
