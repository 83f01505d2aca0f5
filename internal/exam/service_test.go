package exam

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edulms/internal/app/observability"
	"edulms/internal/db/dbtest"
)

type seededExam struct {
	ExamID        int64
	MCQID         int64
	ShortID       int64
	CorrectOption int64
	WrongOption   int64
}

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc := NewService(conn, nil, observability.NewMetrics(nil))
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc, conn
}

// seedGeography creates a 5 point MCQ and a 5 point short answer keyed "paris".
func seedGeography(t *testing.T, conn *sql.DB) seededExam {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	var out seededExam

	require.NoError(t, conn.QueryRowContext(ctx, `
		INSERT INTO exams (title, subject, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, "Geography", "social", "", now, now).Scan(&out.ExamID))

	insertQuestion := func(text, qType string, points float64, order int) int64 {
		var id int64
		require.NoError(t, conn.QueryRowContext(ctx, `
			INSERT INTO questions (exam_id, question_text, question_type, points, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING question_id
		`, out.ExamID, text, qType, points, now, now).Scan(&id))
		_, err := conn.ExecContext(ctx, `INSERT INTO exam_questions (exam_id, question_id, order_index) VALUES ($1, $2, $3)`, out.ExamID, id, order)
		require.NoError(t, err)
		return id
	}
	insertOption := func(questionID int64, text string, correct bool) int64 {
		var id int64
		require.NoError(t, conn.QueryRowContext(ctx, `
			INSERT INTO question_options (question_id, option_text, is_correct)
			VALUES ($1, $2, $3) RETURNING option_id
		`, questionID, text, correct).Scan(&id))
		return id
	}

	out.MCQID = insertQuestion("Capital of France?", TypeMultipleChoice, 5, 1)
	out.CorrectOption = insertOption(out.MCQID, "Paris", true)
	out.WrongOption = insertOption(out.MCQID, "Lyon", false)

	out.ShortID = insertQuestion("Name the capital of France", TypeShortAnswer, 5, 2)
	_, err := conn.ExecContext(ctx, `INSERT INTO question_answers (question_id, correct_answer) VALUES ($1, $2)`, out.ShortID, "paris")
	require.NoError(t, err)

	return out
}

func TestSubmitExamStoresResultAndAnswers(t *testing.T) {
	svc, conn := newTestService(t)
	seed := seedGeography(t, conn)
	ctx := context.Background()

	res, err := svc.SubmitExam(ctx, seed.ExamID, 42, Submission{
		Answers: []AnswerSubmission{
			{QuestionID: seed.MCQID, OptionID: int64Ptr(seed.CorrectOption)},
			{QuestionID: seed.ShortID, AnswerText: strPtr("Paris")},
		},
		TimeSpentSeconds: 120,
	})
	require.NoError(t, err)
	assert.Positive(t, res.ExamResultID)
	assert.Equal(t, "Geography", res.ExamTitle)
	assert.Equal(t, 10.0, res.Score)
	assert.Equal(t, 10.0, res.TotalPoints)
	assert.Equal(t, 100.0, res.Percentage)
	assert.Equal(t, 120, res.TimeSpentSeconds)
	require.Len(t, res.Answers, 2)
	for _, a := range res.Answers {
		assert.True(t, a.IsCorrect)
		assert.Equal(t, 5.0, a.TotalPoints)
	}

	var stored int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM student_answers WHERE exam_result_id = $1`, res.ExamResultID).Scan(&stored))
	assert.Equal(t, 2, stored)

	got, err := svc.GetResult(ctx, res.ExamResultID, 42)
	require.NoError(t, err)
	assert.Equal(t, res.Score, got.Score)
	assert.True(t, got.SubmittedAt.Equal(res.SubmittedAt))
	require.Len(t, got.Answers, 2)
	assert.Equal(t, 5.0, got.Answers[0].TotalPoints)
	require.NotNil(t, got.Answers[1].AnswerText)
	assert.Equal(t, "Paris", *got.Answers[1].AnswerText)
}

func TestSubmitExamPartialSubmission(t *testing.T) {
	svc, conn := newTestService(t)
	seed := seedGeography(t, conn)

	res, err := svc.SubmitExam(context.Background(), seed.ExamID, 42, Submission{
		Answers: []AnswerSubmission{{QuestionID: seed.MCQID, OptionID: int64Ptr(seed.WrongOption)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 10.0, res.TotalPoints)
	assert.Equal(t, 0.0, res.Percentage)
	require.Len(t, res.Answers, 1)
	assert.False(t, res.Answers[0].IsCorrect)
}

func TestSubmitExamGradesUnknownQuestionsIncorrect(t *testing.T) {
	svc, conn := newTestService(t)
	seed := seedGeography(t, conn)
	ctx := context.Background()

	res, err := svc.SubmitExam(ctx, seed.ExamID, 42, Submission{
		Answers: []AnswerSubmission{
			{QuestionID: 0, AnswerText: strPtr("paris")},
			{QuestionID: -3, OptionID: int64Ptr(seed.CorrectOption)},
			{QuestionID: seed.MCQID, OptionID: int64Ptr(seed.CorrectOption)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.Score)
	assert.Equal(t, 10.0, res.TotalPoints)
	require.Len(t, res.Answers, 3)
	for _, a := range res.Answers[:2] {
		assert.False(t, a.IsCorrect)
		assert.Zero(t, a.PointsEarned)
	}

	var stored int
	require.NoError(t, conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM student_answers
		WHERE exam_result_id = $1 AND question_id <= 0 AND points_earned = 0
	`, res.ExamResultID).Scan(&stored))
	assert.Equal(t, 2, stored)
}

func TestSubmitExamUnknownExam(t *testing.T) {
	svc, conn := newTestService(t)

	_, err := svc.SubmitExam(context.Background(), 999, 1, Submission{})
	assert.ErrorIs(t, err, ErrExamNotFound)

	var count int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM exam_results`).Scan(&count))
	assert.Zero(t, count)
}

func TestSubmitExamRollsBackOnAnswerFailure(t *testing.T) {
	svc, conn := newTestService(t)
	seed := seedGeography(t, conn)
	ctx := context.Background()

	_, err := conn.ExecContext(ctx, `
		CREATE TRIGGER reject_answers BEFORE INSERT ON student_answers
		BEGIN SELECT RAISE(ABORT, 'answers unavailable'); END
	`)
	require.NoError(t, err)

	_, err = svc.SubmitExam(ctx, seed.ExamID, 7, Submission{
		Answers: []AnswerSubmission{{QuestionID: seed.MCQID, OptionID: int64Ptr(seed.CorrectOption)}},
	})
	require.Error(t, err)

	var count int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM exam_results`).Scan(&count))
	assert.Zero(t, count, "result row must not survive a failed answer insert")
}

func TestSubmitExamRejectsNegativeTime(t *testing.T) {
	svc, conn := newTestService(t)
	seed := seedGeography(t, conn)

	_, err := svc.SubmitExam(context.Background(), seed.ExamID, 1, Submission{TimeSpentSeconds: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetResultOwnership(t *testing.T) {
	svc, conn := newTestService(t)
	seed := seedGeography(t, conn)
	ctx := context.Background()

	res, err := svc.SubmitExam(ctx, seed.ExamID, 5, Submission{})
	require.NoError(t, err)

	_, err = svc.GetResult(ctx, res.ExamResultID, 6)
	assert.ErrorIs(t, err, ErrResultNotFound)

	got, err := svc.GetResult(ctx, res.ExamResultID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.StudentID)
	assert.Empty(t, got.Answers)
}

func TestListResultsNewestFirst(t *testing.T) {
	svc, conn := newTestService(t)
	seed := seedGeography(t, conn)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []int64
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		res, err := svc.SubmitExam(ctx, seed.ExamID, 9, Submission{})
		require.NoError(t, err)
		ids = append(ids, res.ExamResultID)
	}
	_, err := svc.SubmitExam(ctx, seed.ExamID, 10, Submission{})
	require.NoError(t, err)

	items, total, err := svc.ListResults(ctx, 9, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, ids[2], items[0].ExamResultID)
	assert.Equal(t, ids[1], items[1].ExamResultID)
}

func TestResolveAnswerKey(t *testing.T) {
	svc, conn := newTestService(t)
	seed := seedGeography(t, conn)
	ctx := context.Background()

	key, err := svc.ResolveAnswerKey(ctx, seed.ExamID)
	require.NoError(t, err)
	require.Len(t, key, 2)
	assert.Equal(t, []int64{seed.CorrectOption}, key[seed.MCQID].OptionIDs)
	require.NotNil(t, key[seed.ShortID].Answer)
	assert.Equal(t, "paris", *key[seed.ShortID].Answer)

	_, err = svc.ResolveAnswerKey(ctx, seed.ExamID+100)
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestExamCRUD(t *testing.T) {
	svc, conn := newTestService(t)
	seed := seedGeography(t, conn)
	ctx := context.Background()

	created, err := svc.CreateExam(ctx, ExamInput{Title: "  Algebra ", Subject: "math"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Algebra", created.Title)
	assert.Nil(t, created.CreatedBy)

	_, err = svc.CreateExam(ctx, ExamInput{Title: "   "}, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	page, err := svc.ListExams(ctx, ExamFilter{Search: "ALG"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, created.ID, page.Data[0].ID)

	page, err = svc.ListExams(ctx, ExamFilter{Subject: "social"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Data[0].QuestionCount)

	updated, err := svc.UpdateExam(ctx, created.ID, ExamInput{Title: "Algebra II", Subject: "math"})
	require.NoError(t, err)
	assert.Equal(t, "Algebra II", updated.Title)

	_, err = svc.UpdateExam(ctx, 9999, ExamInput{Title: "x"})
	assert.ErrorIs(t, err, ErrExamNotFound)

	detail, err := svc.GetExam(ctx, seed.ExamID)
	require.NoError(t, err)
	require.Len(t, detail.Questions, 2)
	assert.Equal(t, seed.MCQID, detail.Questions[0].QuestionID)
	assert.Len(t, detail.Questions[0].Options, 2)
	assert.Empty(t, detail.Questions[1].Options)

	_, err = svc.SubmitExam(ctx, seed.ExamID, 3, Submission{
		Answers: []AnswerSubmission{{QuestionID: seed.MCQID, OptionID: int64Ptr(seed.CorrectOption)}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteExam(ctx, seed.ExamID))
	_, err = svc.GetExam(ctx, seed.ExamID)
	assert.ErrorIs(t, err, ErrExamNotFound)
	assert.ErrorIs(t, svc.DeleteExam(ctx, seed.ExamID), ErrExamNotFound)

	var leftovers int
	require.NoError(t, conn.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM questions) + (SELECT COUNT(*) FROM question_options)
		     + (SELECT COUNT(*) FROM exam_results) + (SELECT COUNT(*) FROM student_answers)
	`).Scan(&leftovers))
	assert.Zero(t, leftovers)
}
