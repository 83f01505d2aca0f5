package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"edulms/internal/db"
	"edulms/internal/exam"
)

var ErrInvalidWorkbook = errors.New("invalid workbook")

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportReport struct {
	BatchID     string           `json:"batch_id"`
	ExamID      int64            `json:"exam_id"`
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	QuestionIDs []int64          `json:"question_ids"`
	Errors      []ImportRowError `json:"errors"`
}

var importColumns = []string{"question_text", "question_type", "points", "options", "correct"}

// ImportExcel adds one question per data row of the first sheet. Each row is
// stored in its own transaction, so a bad row does not block the rest.
func (s *Service) ImportExcel(ctx context.Context, examID int64, r io.Reader) (*ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets", ErrInvalidWorkbook)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows found", ErrInvalidWorkbook)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range importColumns[:2] {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column %s", ErrInvalidWorkbook, col)
		}
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams WHERE id = $1`, examID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check exam: %w", err)
	}
	if exists == 0 {
		return nil, ErrExamNotFound
	}

	report := &ImportReport{
		BatchID:     uuid.NewString(),
		ExamID:      examID,
		QuestionIDs: make([]int64, 0),
		Errors:      make([]ImportRowError, 0),
	}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if isBlankRow(row) {
			continue
		}
		report.TotalRows++

		in, err := rowToInput(get)
		if err == nil {
			in, err = normalizeInput(in)
		}
		if err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: i + 1, Error: strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")})
			continue
		}

		var questionID int64
		err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			id, err := s.addQuestionTx(ctx, tx, examID, in)
			questionID = id
			return err
		})
		if err != nil {
			s.logger.Warn("question import row failed", zap.String("batch_id", report.BatchID), zap.Int("row", i+1), zap.Error(err))
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: i + 1, Error: "could not store question"})
			continue
		}
		report.SuccessRows++
		report.QuestionIDs = append(report.QuestionIDs, questionID)
	}

	s.logger.Info("questions imported",
		zap.String("batch_id", report.BatchID),
		zap.Int64("exam_id", examID),
		zap.Int("success_rows", report.SuccessRows),
		zap.Int("failed_rows", report.FailedRows),
	)
	return report, nil
}

func rowToInput(get func(string) string) (QuestionInput, error) {
	in := QuestionInput{
		QuestionText: get("question_text"),
		QuestionType: strings.ToLower(get("question_type")),
	}

	if raw := get("points"); raw != "" {
		points, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return in, fmt.Errorf("%w: points %q is not a number", ErrInvalidInput, raw)
		}
		in.Points = &points
	}

	correct := get("correct")
	if in.QuestionType != exam.TypeMultipleChoice {
		if correct != "" {
			in.CorrectAnswer = &correct
		}
		return in, nil
	}

	for _, text := range strings.Split(get("options"), "|") {
		if text = strings.TrimSpace(text); text != "" {
			in.Options = append(in.Options, OptionInput{OptionText: text})
		}
	}
	letters := strings.NewReplacer(",", "", " ", "", ";", "").Replace(strings.ToUpper(correct))
	for _, ch := range letters {
		idx := int(ch - 'A')
		if ch < 'A' || ch > 'Z' || idx >= len(in.Options) {
			return in, fmt.Errorf("%w: correct option %q does not match any option", ErrInvalidInput, string(ch))
		}
		in.Options[idx].IsCorrect = true
	}
	return in, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ImportTemplate returns an empty workbook with the expected header row and
// one example row per question type.
func ImportTemplate() ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	rows := [][]any{
		{"question_text", "question_type", "points", "options", "correct"},
		{"Capital of France?", exam.TypeMultipleChoice, 2, "Paris|Lyon|Nice", "A"},
		{"The sun is a star.", exam.TypeTrueFalse, 1, "", "true"},
		{"Chemical symbol for water", exam.TypeShortAnswer, 1, "", "H2O"},
	}
	for r, values := range rows {
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "E", 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
