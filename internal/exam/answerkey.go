package exam

import (
	"context"
	"fmt"
	"sort"

	"edulms/internal/db"
)

// KeyEntry is the resolved correct answer of one question. Multiple choice
// questions carry every option flagged correct; text questions carry the
// stored answer.
type KeyEntry struct {
	QuestionID int64
	OptionIDs  []int64
	Answer     *string
}

func (k KeyEntry) HasOption(id int64) bool {
	for _, opt := range k.OptionIDs {
		if opt == id {
			return true
		}
	}
	return false
}

type AnswerKey map[int64]KeyEntry

type AnswerKeyItem struct {
	QuestionID      int64   `json:"question_id"`
	CorrectOptionID *int64  `json:"correct_option_id,omitempty"`
	CorrectAnswer   *string `json:"correct_answer,omitempty"`
}

type AnswerKeyResponse struct {
	ExamID  int64           `json:"exam_id"`
	Answers []AnswerKeyItem `json:"answers"`
}

// Items flattens the key into one item per correct option or stored answer,
// ordered by question then option.
func (k AnswerKey) Items() []AnswerKeyItem {
	ids := make([]int64, 0, len(k))
	for id := range k {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items := make([]AnswerKeyItem, 0, len(k))
	for _, id := range ids {
		entry := k[id]
		for _, opt := range entry.OptionIDs {
			opt := opt
			items = append(items, AnswerKeyItem{QuestionID: id, CorrectOptionID: &opt})
		}
		if entry.Answer != nil {
			answer := *entry.Answer
			items = append(items, AnswerKeyItem{QuestionID: id, CorrectAnswer: &answer})
		}
	}
	return items
}

type keyRow struct {
	QuestionID   int64
	QuestionType string
	OptionID     *int64
	Answer       *string
}

// BuildAnswerKey folds raw key rows into an AnswerKey. Option rows only count
// for multiple choice questions and answer rows only for true/false and
// short answer questions. Questions with neither are left out.
func BuildAnswerKey(rows []keyRow) AnswerKey {
	key := make(AnswerKey)
	for _, r := range rows {
		switch r.QuestionType {
		case TypeMultipleChoice:
			if r.OptionID == nil {
				continue
			}
			entry := key[r.QuestionID]
			entry.QuestionID = r.QuestionID
			if !entry.HasOption(*r.OptionID) {
				entry.OptionIDs = append(entry.OptionIDs, *r.OptionID)
			}
			key[r.QuestionID] = entry
		case TypeTrueFalse, TypeShortAnswer:
			if r.Answer == nil {
				continue
			}
			answer := *r.Answer
			entry := key[r.QuestionID]
			entry.QuestionID = r.QuestionID
			entry.Answer = &answer
			key[r.QuestionID] = entry
		}
	}
	for id, entry := range key {
		sort.Slice(entry.OptionIDs, func(i, j int) bool { return entry.OptionIDs[i] < entry.OptionIDs[j] })
		key[id] = entry
	}
	return key
}

// ResolveAnswerKey loads the answer key of every question linked to the exam.
func (s *Service) ResolveAnswerKey(ctx context.Context, examID int64) (AnswerKey, error) {
	if _, err := s.examTitle(ctx, s.db, examID); err != nil {
		return nil, err
	}
	return loadAnswerKey(ctx, s.db, examID)
}

func loadAnswerKey(ctx context.Context, q db.Queryable, examID int64) (AnswerKey, error) {
	rows := make([]keyRow, 0)

	optRows, err := q.QueryContext(ctx, `
		SELECT qo.question_id, qo.option_id
		FROM question_options qo
		JOIN questions q ON q.question_id = qo.question_id
		JOIN exam_questions eq ON eq.question_id = q.question_id
		WHERE eq.exam_id = $1
		  AND q.question_type = $2
		  AND qo.is_correct = $3
	`, examID, TypeMultipleChoice, true)
	if err != nil {
		return nil, fmt.Errorf("query correct options: %w", err)
	}
	for optRows.Next() {
		var (
			questionID int64
			optionID   int64
		)
		if err := optRows.Scan(&questionID, &optionID); err != nil {
			optRows.Close()
			return nil, fmt.Errorf("scan correct option: %w", err)
		}
		rows = append(rows, keyRow{QuestionID: questionID, QuestionType: TypeMultipleChoice, OptionID: &optionID})
	}
	if err := optRows.Err(); err != nil {
		optRows.Close()
		return nil, fmt.Errorf("iterate correct options: %w", err)
	}
	optRows.Close()

	ansRows, err := q.QueryContext(ctx, `
		SELECT qa.question_id, q.question_type, qa.correct_answer
		FROM question_answers qa
		JOIN questions q ON q.question_id = qa.question_id
		JOIN exam_questions eq ON eq.question_id = q.question_id
		WHERE eq.exam_id = $1
		  AND q.question_type IN ($2, $3)
	`, examID, TypeTrueFalse, TypeShortAnswer)
	if err != nil {
		return nil, fmt.Errorf("query stored answers: %w", err)
	}
	defer ansRows.Close()
	for ansRows.Next() {
		var (
			questionID int64
			qType      string
			answer     string
		)
		if err := ansRows.Scan(&questionID, &qType, &answer); err != nil {
			return nil, fmt.Errorf("scan stored answer: %w", err)
		}
		rows = append(rows, keyRow{QuestionID: questionID, QuestionType: qType, Answer: &answer})
	}
	if err := ansRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stored answers: %w", err)
	}

	return BuildAnswerKey(rows), nil
}
