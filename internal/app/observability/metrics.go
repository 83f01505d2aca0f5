package observability

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter     *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	Submissions        *prometheus.CounterVec
	AnalysisDuration   *prometheus.HistogramVec
	QuestionsAnalyzed  prometheus.Counter
	QuestionsQualified prometheus.Counter
}

func NewMetrics(db *sql.DB) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edulms_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edulms_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edulms_exam_submissions_total",
				Help: "Exam submissions by outcome",
			},
			[]string{"outcome"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edulms_item_analysis_duration_seconds",
				Help:    "Duration of item analysis runs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		QuestionsAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edulms_questions_analyzed_total",
			Help: "Questions that produced item metrics",
		}),
		QuestionsQualified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edulms_questions_qualified_total",
			Help: "Analyzed questions that met the qualification thresholds",
		}),
	}

	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.Submissions,
		m.AnalysisDuration,
		m.QuestionsAnalyzed,
		m.QuestionsQualified,
		collectors.NewGoCollector(),
	)
	if db != nil {
		m.registry.MustRegister(collectors.NewDBStatsCollector(db, "edulms"))
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAnalysis(operation string, seconds float64, analyzed, qualified int) {
	if m == nil {
		return
	}
	m.AnalysisDuration.WithLabelValues(operation).Observe(seconds)
	m.QuestionsAnalyzed.Add(float64(analyzed))
	m.QuestionsQualified.Add(float64(qualified))
}
