package question

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"edulms/internal/db/dbtest"
	"edulms/internal/exam"
)

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func newTestService(t *testing.T) (*Service, *sql.DB, int64) {
	t.Helper()
	conn := dbtest.Open(t)
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	var examID int64
	require.NoError(t, conn.QueryRow(`
		INSERT INTO exams (title, subject, description, created_at, updated_at)
		VALUES ($1, '', '', $2, $2) RETURNING id
	`, "Physics", now).Scan(&examID))

	svc := NewService(conn, nil)
	svc.now = func() time.Time { return now }
	return svc, conn, examID
}

func mcqInput() QuestionInput {
	return QuestionInput{
		QuestionText: "Unit of force?",
		QuestionType: exam.TypeMultipleChoice,
		Points:       floatPtr(2),
		Options: []OptionInput{
			{OptionText: "Newton", IsCorrect: true},
			{OptionText: "Joule"},
			{OptionText: "Watt"},
		},
	}
}

func TestAddQuestionAppendsInOrder(t *testing.T) {
	svc, _, examID := newTestService(t)
	ctx := context.Background()

	first, err := svc.AddQuestion(ctx, examID, mcqInput())
	require.NoError(t, err)
	assert.Equal(t, 1, first.OrderIndex)
	assert.Equal(t, 2.0, first.Points)
	require.Len(t, first.Options, 3)
	assert.True(t, first.Options[0].IsCorrect)
	assert.Nil(t, first.CorrectAnswer)

	second, err := svc.AddQuestion(ctx, examID, QuestionInput{
		QuestionText:  "Light is a wave.",
		QuestionType:  " TRUE_FALSE ",
		CorrectAnswer: strPtr(" True "),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.OrderIndex)
	assert.Equal(t, exam.TypeTrueFalse, second.QuestionType)
	assert.Equal(t, 1.0, second.Points, "points default to 1")
	require.NotNil(t, second.CorrectAnswer)
	assert.Equal(t, "true", *second.CorrectAnswer)
	assert.Empty(t, second.Options)

	_, err = svc.AddQuestion(ctx, examID+50, mcqInput())
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestAddedQuestionsFeedTheAnswerKey(t *testing.T) {
	svc, conn, examID := newTestService(t)
	ctx := context.Background()

	q, err := svc.AddQuestion(ctx, examID, mcqInput())
	require.NoError(t, err)

	key, err := exam.NewService(conn, nil, nil).ResolveAnswerKey(ctx, examID)
	require.NoError(t, err)
	require.Contains(t, key, q.QuestionID)
	assert.Equal(t, []int64{q.Options[0].OptionID}, key[q.QuestionID].OptionIDs)
}

func TestNormalizeInputValidation(t *testing.T) {
	tests := []struct {
		name string
		in   QuestionInput
	}{
		{name: "unknown type", in: QuestionInput{QuestionText: "x", QuestionType: "essay"}},
		{name: "blank text", in: QuestionInput{QuestionText: "  ", QuestionType: exam.TypeShortAnswer, CorrectAnswer: strPtr("a")}},
		{name: "negative points", in: QuestionInput{QuestionText: "x", QuestionType: exam.TypeShortAnswer, Points: floatPtr(-1), CorrectAnswer: strPtr("a")}},
		{name: "mcq one option", in: QuestionInput{QuestionText: "x", QuestionType: exam.TypeMultipleChoice, Options: []OptionInput{{OptionText: "a", IsCorrect: true}}}},
		{name: "mcq no correct", in: QuestionInput{QuestionText: "x", QuestionType: exam.TypeMultipleChoice, Options: []OptionInput{{OptionText: "a"}, {OptionText: "b"}}}},
		{name: "mcq blank option", in: QuestionInput{QuestionText: "x", QuestionType: exam.TypeMultipleChoice, Options: []OptionInput{{OptionText: "a", IsCorrect: true}, {OptionText: " "}}}},
		{name: "true false missing", in: QuestionInput{QuestionText: "x", QuestionType: exam.TypeTrueFalse}},
		{name: "true false yes", in: QuestionInput{QuestionText: "x", QuestionType: exam.TypeTrueFalse, CorrectAnswer: strPtr("yes")}},
		{name: "short answer blank", in: QuestionInput{QuestionText: "x", QuestionType: exam.TypeShortAnswer, CorrectAnswer: strPtr("  ")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalizeInput(tc.in)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	ok, err := normalizeInput(QuestionInput{QuestionText: "x", QuestionType: exam.TypeShortAnswer, Points: floatPtr(0), CorrectAnswer: strPtr(" Oxygen "), Options: []OptionInput{{OptionText: "dropped"}}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, *ok.Points)
	assert.Equal(t, "Oxygen", *ok.CorrectAnswer)
	assert.Nil(t, ok.Options)
}

func TestUpdateQuestionReplacesKey(t *testing.T) {
	svc, _, examID := newTestService(t)
	ctx := context.Background()

	q, err := svc.AddQuestion(ctx, examID, mcqInput())
	require.NoError(t, err)

	updated, err := svc.UpdateQuestion(ctx, q.QuestionID, QuestionInput{
		QuestionText:  "SI unit of force",
		QuestionType:  exam.TypeShortAnswer,
		Points:        floatPtr(3),
		CorrectAnswer: strPtr("newton"),
	})
	require.NoError(t, err)
	assert.Equal(t, "SI unit of force", updated.QuestionText)
	assert.Equal(t, exam.TypeShortAnswer, updated.QuestionType)
	assert.Equal(t, 3.0, updated.Points)
	assert.Empty(t, updated.Options)
	require.NotNil(t, updated.CorrectAnswer)
	assert.Equal(t, "newton", *updated.CorrectAnswer)
	assert.Equal(t, 1, updated.OrderIndex)

	_, err = svc.UpdateQuestion(ctx, 9999, mcqInput())
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestDeleteQuestion(t *testing.T) {
	svc, conn, examID := newTestService(t)
	ctx := context.Background()

	q, err := svc.AddQuestion(ctx, examID, mcqInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteQuestion(ctx, q.QuestionID))
	_, err = svc.GetQuestion(ctx, q.QuestionID)
	assert.ErrorIs(t, err, ErrQuestionNotFound)
	assert.ErrorIs(t, svc.DeleteQuestion(ctx, q.QuestionID), ErrQuestionNotFound)

	var left int
	require.NoError(t, conn.QueryRow(`
		SELECT (SELECT COUNT(*) FROM exam_questions) + (SELECT COUNT(*) FROM question_options)
	`).Scan(&left))
	assert.Zero(t, left)
}

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for r, values := range rows {
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportExcel(t *testing.T) {
	svc, _, examID := newTestService(t)
	ctx := context.Background()

	wb := buildWorkbook(t, [][]any{
		{"Question_Text", "question_type", "points", "options", "correct"},
		{"2 + 2 = ?", "multiple_choice", 2, "3|4|5", "b"},
		{"Water boils at 100C at sea level.", "true_false", "", "", "TRUE"},
		{"", "", "", "", ""},
		{"Largest planet", "short_answer", "abc", "", "Jupiter"},
		{"Pick primes", "multiple_choice", 1, "2|4", "A,C"},
		{"Essay prompt", "essay", 5, "", ""},
	})

	report, err := svc.ImportExcel(ctx, examID, wb)
	require.NoError(t, err)
	assert.NotEmpty(t, report.BatchID)
	assert.Equal(t, 5, report.TotalRows)
	assert.Equal(t, 2, report.SuccessRows)
	assert.Equal(t, 3, report.FailedRows)
	require.Len(t, report.Errors, 3)
	assert.Equal(t, 5, report.Errors[0].Row)
	assert.Equal(t, 6, report.Errors[1].Row)
	assert.Equal(t, 7, report.Errors[2].Row)

	require.Len(t, report.QuestionIDs, 2)
	mcq, err := svc.GetQuestion(ctx, report.QuestionIDs[0])
	require.NoError(t, err)
	require.Len(t, mcq.Options, 3)
	assert.False(t, mcq.Options[0].IsCorrect)
	assert.True(t, mcq.Options[1].IsCorrect)
	assert.Equal(t, 2.0, mcq.Points)

	tf, err := svc.GetQuestion(ctx, report.QuestionIDs[1])
	require.NoError(t, err)
	assert.Equal(t, 2, tf.OrderIndex)
	assert.Equal(t, "true", *tf.CorrectAnswer)
}

func TestImportExcelRejectsBadWorkbooks(t *testing.T) {
	svc, _, examID := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportExcel(ctx, examID, bytes.NewBufferString("not a workbook"))
	assert.ErrorIs(t, err, ErrInvalidWorkbook)

	_, err = svc.ImportExcel(ctx, examID, buildWorkbook(t, [][]any{{"question_text"}, {"x"}}))
	assert.ErrorIs(t, err, ErrInvalidWorkbook)

	_, err = svc.ImportExcel(ctx, examID+1, buildWorkbook(t, [][]any{
		{"question_text", "question_type"},
		{"x", "short_answer"},
	}))
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestImportTemplateParsesBack(t *testing.T) {
	svc, _, examID := newTestService(t)

	raw, err := ImportTemplate()
	require.NoError(t, err)

	report, err := svc.ImportExcel(context.Background(), examID, bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 3, report.SuccessRows)
	assert.Empty(t, report.Errors)
}
