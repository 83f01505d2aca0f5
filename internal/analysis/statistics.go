package analysis

type TierCount struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type DifficultyDistribution struct {
	Easy     TierCount `json:"easy"`
	Moderate TierCount `json:"moderate"`
	Hard     TierCount `json:"hard"`
}

type DiscriminationDistribution struct {
	Good TierCount `json:"good"`
	Fair TierCount `json:"fair"`
	Poor TierCount `json:"poor"`
}

type QualitySummary struct {
	QualifiedCount        int     `json:"qualified_count"`
	QualifiedPercentage   float64 `json:"qualified_percentage"`
	AverageQualityScore   float64 `json:"average_quality_score"`
	AveragePValue         float64 `json:"average_p_value"`
	AverageDiscrimination float64 `json:"average_discrimination"`
}

type ExamStatistics struct {
	TotalQuestions             int                        `json:"total_questions"`
	DifficultyDistribution     DifficultyDistribution     `json:"difficulty_distribution"`
	DiscriminationDistribution DiscriminationDistribution `json:"discrimination_distribution"`
	Quality                    QualitySummary             `json:"quality"`
}

// Aggregate summarizes analyzed questions. An empty list yields the zero value.
func Aggregate(metrics []QuestionMetrics) ExamStatistics {
	var out ExamStatistics
	total := len(metrics)
	if total == 0 {
		return out
	}
	out.TotalQuestions = total

	var sumQuality, sumP, sumD float64
	for _, m := range metrics {
		switch m.DifficultyLevel {
		case DifficultyEasy:
			out.DifficultyDistribution.Easy.Count++
		case DifficultyModerate:
			out.DifficultyDistribution.Moderate.Count++
		case DifficultyHard:
			out.DifficultyDistribution.Hard.Count++
		}
		switch m.DiscriminationLevel {
		case DiscriminationGood:
			out.DiscriminationDistribution.Good.Count++
		case DiscriminationFair:
			out.DiscriminationDistribution.Fair.Count++
		case DiscriminationPoor:
			out.DiscriminationDistribution.Poor.Count++
		}
		if m.IsQualified {
			out.Quality.QualifiedCount++
		}
		sumQuality += m.QualityScore
		sumP += m.PValue
		sumD += m.DiscriminationIndex
	}

	for _, tier := range []*TierCount{
		&out.DifficultyDistribution.Easy,
		&out.DifficultyDistribution.Moderate,
		&out.DifficultyDistribution.Hard,
		&out.DiscriminationDistribution.Good,
		&out.DiscriminationDistribution.Fair,
		&out.DiscriminationDistribution.Poor,
	} {
		tier.Percentage = share(tier.Count, total)
	}

	n := float64(total)
	out.Quality.QualifiedPercentage = share(out.Quality.QualifiedCount, total)
	out.Quality.AverageQualityScore = round(sumQuality/n, 2)
	out.Quality.AveragePValue = round(sumP/n, 4)
	out.Quality.AverageDiscrimination = round(sumD/n, 4)
	return out
}

func share(count, total int) float64 {
	return round(float64(count)/float64(total)*100, 2)
}
