package report

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"edulms/internal/app/apiresp"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reportService interface {
	SummaryByExam(ctx context.Context, examID int64) (*ExamSummary, error)
	ExportExamAnalysis(ctx context.Context, examID int64) (*Export, error)
}

type Handler struct {
	svc    reportService
	logger *zap.Logger
}

func NewHandler(svc reportService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.SummaryByExam(r.Context(), examID)
	if err != nil {
		h.writeServiceError(w, r, "exam summary failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, summary)
}

func (h *Handler) ExportAnalysis(w http.ResponseWriter, r *http.Request) {
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}
	export, err := h.svc.ExportExamAnalysis(r.Context(), examID)
	if err != nil {
		h.writeServiceError(w, r, "export exam analysis failed", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Content)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, ErrExamNotFound) {
		apiresp.WriteError(w, r, http.StatusNotFound, "exam not found")
		return
	}
	h.logger.Error(msg, zap.Error(err))
	apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
}

func examIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid exam id")
		return 0, false
	}
	return id, true
}
