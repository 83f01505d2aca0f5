package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"edulms/internal/app/observability"
	"edulms/internal/db"
)

var (
	ErrExamNotFound   = errors.New("exam not found")
	ErrResultNotFound = errors.New("result not found")
	ErrInvalidInput   = errors.New("invalid input")
)

type Service struct {
	db      *sql.DB
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

type Exam struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Subject       string    `json:"subject"`
	Description   string    `json:"description"`
	CreatedBy     *int64    `json:"created_by,omitempty"`
	CreatorName   string    `json:"creator_name,omitempty"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type OptionView struct {
	OptionID   int64  `json:"option_id"`
	OptionText string `json:"option_text"`
}

type ExamQuestion struct {
	QuestionID   int64        `json:"question_id"`
	QuestionText string       `json:"question_text"`
	QuestionType string       `json:"question_type"`
	Points       float64      `json:"points"`
	OrderIndex   int          `json:"order_index"`
	Options      []OptionView `json:"options"`
}

type ExamDetail struct {
	Exam
	Questions []ExamQuestion `json:"questions"`
}

type ExamInput struct {
	Title       string
	Subject     string
	Description string
}

type ExamFilter struct {
	Subject  string
	Search   string
	Page     int
	PageSize int
}

type ExamPage struct {
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Data     []Exam `json:"data"`
}

type Submission struct {
	Answers          []AnswerSubmission `json:"answers" validate:"dive"`
	TimeSpentSeconds int                `json:"time_spent_seconds" validate:"gte=0"`
}

type ExamResultResponse struct {
	ExamResultID     int64          `json:"exam_result_id"`
	ExamID           int64          `json:"exam_id"`
	ExamTitle        string         `json:"exam_title"`
	StudentID        int64          `json:"student_id"`
	Score            float64        `json:"score"`
	TotalPoints      float64        `json:"total_points"`
	Percentage       float64        `json:"percentage"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`
	SubmittedAt      time.Time      `json:"submitted_at"`
	Answers          []GradedAnswer `json:"answers"`
}

func NewService(db *sql.DB, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger, metrics: metrics, now: time.Now}
}

// SubmitExam grades a submission against the exam's answer key and stores the
// result with one answer row per submitted answer in a single transaction.
func (s *Service) SubmitExam(ctx context.Context, examID, studentID int64, sub Submission) (*ExamResultResponse, error) {
	ctx, span := observability.StartSpan(ctx, "exam.SubmitExam")
	defer span.End()
	span.SetAttributes(attribute.Int64("exam.id", examID), attribute.Int("answers", len(sub.Answers)))

	if sub.TimeSpentSeconds < 0 {
		return nil, fmt.Errorf("%w: time_spent_seconds must not be negative", ErrInvalidInput)
	}

	title, err := s.examTitle(ctx, s.db, examID)
	if err != nil {
		s.metrics.ObserveSubmission("rejected")
		return nil, err
	}

	questions, err := loadQuestionMeta(ctx, s.db, examID)
	if err != nil {
		s.metrics.ObserveSubmission("failed")
		return nil, err
	}
	key, err := loadAnswerKey(ctx, s.db, examID)
	if err != nil {
		s.metrics.ObserveSubmission("failed")
		return nil, err
	}

	graded := Grade(GradeInput{Questions: questions, Key: key, Answers: sub.Answers})

	res := &ExamResultResponse{
		ExamID:           examID,
		ExamTitle:        title,
		StudentID:        studentID,
		Score:            graded.Score,
		TotalPoints:      graded.TotalPoints,
		Percentage:       graded.Percentage,
		TimeSpentSeconds: sub.TimeSpentSeconds,
		SubmittedAt:      s.now().UTC().Truncate(time.Microsecond),
		Answers:          graded.Answers,
	}

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO exam_results (exam_id, student_id, score, total_points, percentage, time_spent_seconds, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, examID, studentID, res.Score, res.TotalPoints, res.Percentage, res.TimeSpentSeconds, res.SubmittedAt).Scan(&res.ExamResultID); err != nil {
			return fmt.Errorf("insert exam result: %w", err)
		}

		for _, a := range res.Answers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO student_answers (exam_result_id, question_id, answer_text, option_id, is_correct, points_earned)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, res.ExamResultID, a.QuestionID, nullString(a.AnswerText), nullInt64(a.OptionID), a.IsCorrect, a.PointsEarned); err != nil {
				return fmt.Errorf("insert student answer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveSubmission("failed")
		return nil, err
	}

	s.metrics.ObserveSubmission("stored")
	s.logger.Info("exam submitted",
		zap.Int64("exam_id", examID),
		zap.Int64("student_id", studentID),
		zap.Int64("exam_result_id", res.ExamResultID),
		zap.Float64("score", res.Score),
		zap.Float64("total_points", res.TotalPoints),
	)
	return res, nil
}

// GetResult returns one stored result with its answers. A positive studentID
// restricts the lookup to that student's own results.
func (s *Service) GetResult(ctx context.Context, resultID, studentID int64) (*ExamResultResponse, error) {
	query := `
		SELECT er.id, er.exam_id, e.title, er.student_id, er.score, er.total_points,
		       er.percentage, er.time_spent_seconds, er.submitted_at
		FROM exam_results er
		JOIN exams e ON e.id = er.exam_id
		WHERE er.id = $1`
	args := []any{resultID}
	if studentID > 0 {
		query += ` AND er.student_id = $2`
		args = append(args, studentID)
	}

	res, err := scanResult(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("load exam result: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sa.question_id, sa.answer_text, sa.option_id, sa.is_correct, sa.points_earned,
		       COALESCE(q.points, 0)
		FROM student_answers sa
		LEFT JOIN questions q ON q.question_id = sa.question_id
		WHERE sa.exam_result_id = $1
		ORDER BY sa.id ASC
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("query result answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a          GradedAnswer
			answerText sql.NullString
			optionID   sql.NullInt64
		)
		if err := rows.Scan(&a.QuestionID, &answerText, &optionID, &a.IsCorrect, &a.PointsEarned, &a.TotalPoints); err != nil {
			return nil, fmt.Errorf("scan result answer: %w", err)
		}
		if answerText.Valid {
			a.AnswerText = &answerText.String
		}
		if optionID.Valid {
			a.OptionID = &optionID.Int64
		}
		res.Answers = append(res.Answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result answers: %w", err)
	}
	return res, nil
}

// ListResults returns a student's results newest first, without answers.
func (s *Service) ListResults(ctx context.Context, studentID int64, page, pageSize int) ([]ExamResultResponse, int, error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exam_results WHERE student_id = $1
	`, studentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT er.id, er.exam_id, e.title, er.student_id, er.score, er.total_points,
		       er.percentage, er.time_spent_seconds, er.submitted_at
		FROM exam_results er
		JOIN exams e ON e.id = er.exam_id
		WHERE er.student_id = $1
		ORDER BY er.submitted_at DESC, er.id DESC
		LIMIT $2 OFFSET $3
	`, studentID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]ExamResultResponse, 0)
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate results: %w", err)
	}
	return out, total, nil
}

func (s *Service) ListExams(ctx context.Context, f ExamFilter) (*ExamPage, error) {
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if subject := strings.TrimSpace(f.Subject); subject != "" {
		args = append(args, subject)
		where = append(where, fmt.Sprintf("e.subject = $%d", len(args)))
	}
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(LOWER(e.title) LIKE $%d OR LOWER(COALESCE(u.full_name, '')) LIKE $%d)", n, n))
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM exams e
		LEFT JOIN users u ON u.id = e.created_by
		`+whereSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count exams: %w", err)
	}

	pageArgs := append(append([]any{}, args...), f.PageSize, (f.Page-1)*f.PageSize)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT e.id, e.title, e.subject, e.description, e.created_by, COALESCE(u.full_name, ''),
		       (SELECT COUNT(*) FROM exam_questions eq WHERE eq.exam_id = e.id),
		       e.created_at, e.updated_at
		FROM exams e
		LEFT JOIN users u ON u.id = e.created_by
		%s
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $%d OFFSET $%d
	`, whereSQL, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("query exams: %w", err)
	}
	defer rows.Close()

	out := &ExamPage{Total: total, Page: f.Page, PageSize: f.PageSize, Data: make([]Exam, 0)}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		out.Data = append(out.Data, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exams: %w", err)
	}
	return out, nil
}

// GetExam returns the exam with its questions in order. Options are listed
// without their correctness flag.
func (s *Service) GetExam(ctx context.Context, examID int64) (*ExamDetail, error) {
	e, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.question_id, q.question_text, q.question_type, q.points, eq.order_index
		FROM exam_questions eq
		JOIN questions q ON q.question_id = eq.question_id
		WHERE eq.exam_id = $1
		ORDER BY eq.order_index ASC, q.question_id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query exam questions: %w", err)
	}
	questions := make([]ExamQuestion, 0)
	for rows.Next() {
		var q ExamQuestion
		if err := rows.Scan(&q.QuestionID, &q.QuestionText, &q.QuestionType, &q.Points, &q.OrderIndex); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan exam question: %w", err)
		}
		q.Options = make([]OptionView, 0)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate exam questions: %w", err)
	}
	rows.Close()

	optRows, err := s.db.QueryContext(ctx, `
		SELECT qo.question_id, qo.option_id, qo.option_text
		FROM question_options qo
		JOIN exam_questions eq ON eq.question_id = qo.question_id
		WHERE eq.exam_id = $1
		ORDER BY qo.option_id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query exam options: %w", err)
	}
	defer optRows.Close()

	index := make(map[int64]int, len(questions))
	for i, q := range questions {
		index[q.QuestionID] = i
	}
	for optRows.Next() {
		var (
			questionID int64
			opt        OptionView
		)
		if err := optRows.Scan(&questionID, &opt.OptionID, &opt.OptionText); err != nil {
			return nil, fmt.Errorf("scan exam option: %w", err)
		}
		if i, ok := index[questionID]; ok && questions[i].QuestionType == TypeMultipleChoice {
			questions[i].Options = append(questions[i].Options, opt)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam options: %w", err)
	}

	return &ExamDetail{Exam: *e, Questions: questions}, nil
}

func (s *Service) CreateExam(ctx context.Context, in ExamInput, createdBy int64) (*Exam, error) {
	in, err := normalizeExamInput(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var creator any
	if createdBy > 0 {
		creator = createdBy
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO exams (title, subject, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, in.Title, in.Subject, in.Description, creator, now, now).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert exam: %w", err)
	}
	return s.loadExam(ctx, id)
}

func (s *Service) UpdateExam(ctx context.Context, examID int64, in ExamInput) (*Exam, error) {
	in, err := normalizeExamInput(in)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE exams
		SET title = $1, subject = $2, description = $3, updated_at = $4
		WHERE id = $5
	`, in.Title, in.Subject, in.Description, s.now().UTC(), examID)
	if err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrExamNotFound
	}
	return s.loadExam(ctx, examID)
}

// DeleteExam removes the exam with its questions, keys and stored results.
func (s *Service) DeleteExam(ctx context.Context, examID int64) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.examTitle(ctx, tx, examID); err != nil {
			return err
		}

		steps := []struct {
			name  string
			query string
		}{
			{"student answers", `DELETE FROM student_answers WHERE exam_result_id IN (SELECT id FROM exam_results WHERE exam_id = $1)`},
			{"exam results", `DELETE FROM exam_results WHERE exam_id = $1`},
			{"question options", `DELETE FROM question_options WHERE question_id IN (SELECT question_id FROM questions WHERE exam_id = $1)`},
			{"question answers", `DELETE FROM question_answers WHERE question_id IN (SELECT question_id FROM questions WHERE exam_id = $1)`},
			{"exam questions", `DELETE FROM exam_questions WHERE exam_id = $1`},
			{"questions", `DELETE FROM questions WHERE exam_id = $1`},
			{"exam", `DELETE FROM exams WHERE id = $1`},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, examID); err != nil {
				return fmt.Errorf("delete %s: %w", step.name, err)
			}
		}
		return nil
	})
}

func (s *Service) loadExam(ctx context.Context, examID int64) (*Exam, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx, `
		SELECT e.id, e.title, e.subject, e.description, e.created_by, COALESCE(u.full_name, ''),
		       (SELECT COUNT(*) FROM exam_questions eq WHERE eq.exam_id = e.id),
		       e.created_at, e.updated_at
		FROM exams e
		LEFT JOIN users u ON u.id = e.created_by
		WHERE e.id = $1
	`, examID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}
	return e, nil
}

func (s *Service) examTitle(ctx context.Context, q db.Queryable, examID int64) (string, error) {
	var title string
	err := q.QueryRowContext(ctx, `SELECT title FROM exams WHERE id = $1`, examID).Scan(&title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrExamNotFound
		}
		return "", fmt.Errorf("load exam: %w", err)
	}
	return title, nil
}

func loadQuestionMeta(ctx context.Context, q db.Queryable, examID int64) (map[int64]QuestionMeta, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT q.question_id, q.question_type, q.points
		FROM exam_questions eq
		JOIN questions q ON q.question_id = eq.question_id
		WHERE eq.exam_id = $1
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query exam questions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]QuestionMeta)
	for rows.Next() {
		var (
			id   int64
			meta QuestionMeta
		)
		if err := rows.Scan(&id, &meta.Type, &meta.Points); err != nil {
			return nil, fmt.Errorf("scan exam question: %w", err)
		}
		out[id] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam questions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExam(sc scanner) (*Exam, error) {
	var (
		e         Exam
		createdBy sql.NullInt64
	)
	if err := sc.Scan(&e.ID, &e.Title, &e.Subject, &e.Description, &createdBy, &e.CreatorName, &e.QuestionCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		e.CreatedBy = &createdBy.Int64
	}
	return &e, nil
}

func scanResult(sc scanner) (*ExamResultResponse, error) {
	res := &ExamResultResponse{Answers: make([]GradedAnswer, 0)}
	if err := sc.Scan(&res.ExamResultID, &res.ExamID, &res.ExamTitle, &res.StudentID, &res.Score, &res.TotalPoints,
		&res.Percentage, &res.TimeSpentSeconds, &res.SubmittedAt); err != nil {
		return nil, err
	}
	return res, nil
}

func normalizeExamInput(in ExamInput) (ExamInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return in, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return in, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
