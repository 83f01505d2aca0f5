package exam

import (
	"math"
	"strings"
)

const (
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeShortAnswer    = "short_answer"
)

func IsValidQuestionType(t string) bool {
	switch t {
	case TypeMultipleChoice, TypeTrueFalse, TypeShortAnswer:
		return true
	default:
		return false
	}
}

type QuestionMeta struct {
	Type   string
	Points float64
}

// AnswerSubmission is one answer as sent by the student. QuestionID is not
// validated: ids that are not part of the exam are stored and graded
// incorrect.
type AnswerSubmission struct {
	QuestionID int64   `json:"question_id"`
	AnswerText *string `json:"answer_text,omitempty"`
	OptionID   *int64  `json:"option_id,omitempty"`
}

type GradeInput struct {
	// Questions holds every question of the exam, answered or not.
	Questions map[int64]QuestionMeta
	Key       AnswerKey
	Answers   []AnswerSubmission
}

type GradedAnswer struct {
	QuestionID   int64   `json:"question_id"`
	AnswerText   *string `json:"answer_text,omitempty"`
	OptionID     *int64  `json:"option_id,omitempty"`
	IsCorrect    bool    `json:"is_correct"`
	PointsEarned float64 `json:"points_earned"`
	TotalPoints  float64 `json:"total_points"`
}

type Graded struct {
	Score       float64
	TotalPoints float64
	Percentage  float64
	Answers     []GradedAnswer
}

// Grade scores one submission. Scoring is binary: an answer earns the full
// question points or nothing. Answers to questions outside the exam, to
// questions without a key, or repeating an already graded question earn 0.
func Grade(in GradeInput) Graded {
	out := Graded{Answers: make([]GradedAnswer, 0, len(in.Answers))}
	for _, q := range in.Questions {
		if q.Points > 0 {
			out.TotalPoints += q.Points
		}
	}

	seen := make(map[int64]struct{}, len(in.Answers))
	for _, a := range in.Answers {
		graded := GradedAnswer{
			QuestionID: a.QuestionID,
			AnswerText: a.AnswerText,
			OptionID:   a.OptionID,
		}

		meta, inExam := in.Questions[a.QuestionID]
		if inExam {
			graded.TotalPoints = math.Max(meta.Points, 0)
		}
		_, repeated := seen[a.QuestionID]
		seen[a.QuestionID] = struct{}{}

		if inExam && !repeated {
			entry, hasKey := in.Key[a.QuestionID]
			if hasKey && IsCorrect(meta.Type, entry, a) {
				graded.IsCorrect = true
				graded.PointsEarned = graded.TotalPoints
			}
		}

		out.Score += graded.PointsEarned
		out.Answers = append(out.Answers, graded)
	}

	out.Percentage = Percentage(out.Score, out.TotalPoints)
	return out
}

// IsCorrect matches one answer against its key entry. Multiple choice
// matches on option id; true/false and short answer compare trimmed,
// case-insensitive text.
func IsCorrect(questionType string, entry KeyEntry, a AnswerSubmission) bool {
	switch questionType {
	case TypeMultipleChoice:
		return a.OptionID != nil && entry.HasOption(*a.OptionID)
	case TypeTrueFalse, TypeShortAnswer:
		if a.AnswerText == nil || entry.Answer == nil {
			return false
		}
		given := normalizeText(*a.AnswerText)
		want := normalizeText(*entry.Answer)
		return given != "" && want != "" && given == want
	default:
		return false
	}
}

func Percentage(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return score / total * 100
}

func normalizeText(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
