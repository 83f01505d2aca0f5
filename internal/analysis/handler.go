package analysis

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"edulms/internal/app/apiresp"
)

type analysisService interface {
	AnalyzeQuestion(ctx context.Context, questionID, examID int64) (*QuestionMetrics, error)
	AnalyzeExam(ctx context.Context, examID int64, persist bool) ([]QuestionMetrics, error)
	GetStatistics(ctx context.Context, examID int64) (ExamStatistics, error)
	Report(ctx context.Context, questionID int64) (*QuestionReport, error)
}

type Handler struct {
	svc            analysisService
	logger         *zap.Logger
	defaultPersist bool
}

func NewHandler(svc analysisService, logger *zap.Logger, defaultPersist bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger, defaultPersist: defaultPersist}
}

// AnalyzeExam runs the analysis over the whole exam. The persist query
// parameter overrides the configured default.
func (h *Handler) AnalyzeExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	persist := h.defaultPersist
	if raw := r.URL.Query().Get("persist"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid persist flag")
			return
		}
		persist = v
	}

	metrics, err := h.svc.AnalyzeExam(r.Context(), examID, persist)
	if err != nil {
		h.writeServiceError(w, r, "analyze exam failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]any{
		"exam_id":   examID,
		"persisted": persist && len(metrics) > 0,
		"questions": metrics,
	})
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	stats, err := h.svc.GetStatistics(r.Context(), examID)
	if err != nil {
		h.writeServiceError(w, r, "exam statistics failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, stats)
}

// AnalyzeQuestion answers 200 with null data when there is nothing to analyze.
func (h *Handler) AnalyzeQuestion(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}

	m, err := h.svc.AnalyzeQuestion(r.Context(), questionID, examID)
	if err != nil {
		h.writeServiceError(w, r, "analyze question failed", err)
		return
	}
	if m == nil {
		apiresp.WriteOK(w, r, http.StatusOK, nil)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, m)
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	report, err := h.svc.Report(r.Context(), questionID)
	if err != nil {
		h.writeServiceError(w, r, "question report failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, report)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, ErrExamNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "exam not found")
	case errors.Is(err, ErrQuestionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "question not found")
	default:
		h.logger.Error(msg, zap.Error(err))
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return id, true
}
