// Package analysis computes classical test theory statistics for exam
// questions from stored answers and exam scores.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"edulms/internal/exam"
)

const (
	DifficultyEasy     = "easy"
	DifficultyModerate = "moderate"
	DifficultyHard     = "hard"

	DiscriminationGood = "good"
	DiscriminationFair = "fair"
	DiscriminationPoor = "poor"
)

const (
	groupFraction     = 0.27
	minRankedStudents = 10
	minAttempts       = 10
	minDiscrimination = 0.10
)

// Attempt is one stored answer to a question. ResultID is the exam result
// the answer was submitted with.
type Attempt struct {
	ResultID  int64
	StudentID int64
	IsCorrect bool
}

type ExamScore struct {
	ResultID   int64
	StudentID  int64
	TotalScore float64
}

type ItemInput struct {
	QuestionID   int64
	QuestionType string
	Attempts     []Attempt
	Results      []ExamScore
}

type QuestionMetrics struct {
	QuestionID          int64     `json:"question_id"`
	QuestionType        string    `json:"question_type"`
	TotalAttempts       int       `json:"total_attempts"`
	CorrectAttempts     int       `json:"correct_attempts"`
	PValue              float64   `json:"p_value"`
	DifficultyScore     float64   `json:"difficulty_score"`
	DifficultyLevel     string    `json:"difficulty_level"`
	DiscriminationIndex float64   `json:"discrimination_index"`
	DiscriminationLevel string    `json:"discrimination_level"`
	QualityScore        float64   `json:"quality_score"`
	IsQualified         bool      `json:"is_qualified"`
	Recommendations     []string  `json:"recommendations"`
	LastAnalyzed        time.Time `json:"last_analyzed"`
}

// Analyze computes the metrics of one question. Attempts must already be
// filtered to the question and every one of them counts toward p. Results
// holds every exam result, retakes included, and is only used for ranking.
func Analyze(in ItemInput, analyzedAt time.Time) QuestionMetrics {
	total := len(in.Attempts)
	correct := 0
	for _, a := range in.Attempts {
		if a.IsCorrect {
			correct++
		}
	}

	p := PValue(total, correct)
	d := DiscriminationIndex(in.Attempts, in.Results)

	return QuestionMetrics{
		QuestionID:          in.QuestionID,
		QuestionType:        in.QuestionType,
		TotalAttempts:       total,
		CorrectAttempts:     correct,
		PValue:              round(p, 4),
		DifficultyScore:     round(DifficultyScore(in.QuestionType, p), 4),
		DifficultyLevel:     DifficultyLevel(p),
		DiscriminationIndex: d,
		DiscriminationLevel: DiscriminationLevel(d),
		QualityScore:        QualityScore(p, d, total),
		IsQualified:         total >= minAttempts && d >= minDiscrimination,
		Recommendations:     Recommendations(p, d, total),
		LastAnalyzed:        analyzedAt,
	}
}

func PValue(total, correct int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// DifficultyScore is 1-p for true/false items and p for everything else.
func DifficultyScore(questionType string, p float64) float64 {
	if questionType == exam.TypeTrueFalse {
		return 1 - p
	}
	return p
}

func DifficultyLevel(p float64) string {
	switch {
	case p >= 0.85:
		return DifficultyEasy
	case p >= 0.51:
		return DifficultyModerate
	default:
		return DifficultyHard
	}
}

// DiscriminationIndex compares the upper and lower 27% of students ranked by
// exam score. Each student is ranked once, on their latest result (highest
// ResultID, later entries winning ties), and counts as correct when an
// attempt submitted with that result is correct. Populations under 10
// students yield 0.
func DiscriminationIndex(attempts []Attempt, results []ExamScore) float64 {
	latest := latestResults(results)
	n := len(latest)
	if n < minRankedStudents {
		return 0
	}

	ranked := make([]ExamScore, 0, n)
	for _, r := range latest {
		ranked = append(ranked, r)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		return ranked[i].StudentID < ranked[j].StudentID
	})

	groupSize := GroupSize(n)
	top := studentSet(ranked[:groupSize])
	bottom := studentSet(ranked[n-groupSize:])

	correct := make(map[int64]struct{}, len(attempts))
	for _, a := range attempts {
		if !a.IsCorrect {
			continue
		}
		if r, ok := latest[a.StudentID]; ok && r.ResultID == a.ResultID {
			correct[a.StudentID] = struct{}{}
		}
	}

	topCorrect, bottomCorrect := 0, 0
	for id := range correct {
		if _, ok := top[id]; ok {
			topCorrect++
		}
		if _, ok := bottom[id]; ok {
			bottomCorrect++
		}
	}

	d := float64(topCorrect)/float64(groupSize) - float64(bottomCorrect)/float64(groupSize)
	return round(d, 4)
}

// latestResults keeps one result per student.
func latestResults(results []ExamScore) map[int64]ExamScore {
	out := make(map[int64]ExamScore, len(results))
	for _, r := range results {
		if cur, ok := out[r.StudentID]; !ok || r.ResultID >= cur.ResultID {
			out[r.StudentID] = r
		}
	}
	return out
}

// GroupSize is the size of the upper and lower groups for n ranked students.
func GroupSize(n int) int {
	size := int(float64(n) * groupFraction)
	if size < 1 {
		return 1
	}
	return size
}

func DiscriminationLevel(d float64) string {
	switch {
	case d >= 0.30:
		return DiscriminationGood
	case d >= 0.10:
		return DiscriminationFair
	default:
		return DiscriminationPoor
	}
}

// QualityScore sums a difficulty (max 40), discrimination (max 40) and
// sample size (max 20) component.
func QualityScore(p, d float64, attempts int) float64 {
	var score float64

	switch {
	case p >= 0.45 && p <= 0.70:
		score += 40
	case p >= 0.30 && p <= 0.85:
		score += 30
	case (p >= 0.20 && p < 0.30) || (p > 0.85 && p <= 0.90):
		score += 20
	default:
		score += 10
	}

	switch {
	case d >= 0.40:
		score += 40
	case d >= 0.30:
		score += 35
	case d >= 0.20:
		score += 25
	case d >= 0.10:
		score += 15
	default:
		score += 5
	}

	switch {
	case attempts >= 100:
		score += 20
	case attempts >= 50:
		score += 15
	case attempts >= 30:
		score += 10
	case attempts >= 10:
		score += 5
	}

	return round(score, 2)
}

func Recommendations(p, d float64, attempts int) []string {
	out := make([]string, 0, 4)

	switch {
	case p >= 0.90:
		out = append(out, "Question is too easy; increase its complexity")
	case p <= 0.20:
		out = append(out, "Question is too hard; consider simplifying it")
	}

	switch {
	case d < 0.10:
		out = append(out, "Discrimination is very low; revise or remove the question")
	case d < 0.20:
		out = append(out, "Discrimination is low; consider revising the question")
	case d < 0.30:
		out = append(out, "Discrimination is fair; the question can be improved")
	default:
		out = append(out, "Discrimination is good")
	}

	if attempts < 10 {
		out = append(out, fmt.Sprintf("Too few attempts (%d); more data is required", attempts))
	}
	if attempts < 30 {
		out = append(out, fmt.Sprintf("Limited attempts (%d); more data is recommended", attempts))
	}

	if len(out) == 0 {
		out = append(out, "Question is of good quality")
	}
	return out
}

func studentSet(scores []ExamScore) map[int64]struct{} {
	out := make(map[int64]struct{}, len(scores))
	for _, s := range scores {
		out[s.StudentID] = struct{}{}
	}
	return out
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
