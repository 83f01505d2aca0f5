package question

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"edulms/internal/app/apiresp"
	"edulms/internal/app/binding"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type questionService interface {
	AddQuestion(ctx context.Context, examID int64, in QuestionInput) (*Question, error)
	GetQuestion(ctx context.Context, questionID int64) (*Question, error)
	UpdateQuestion(ctx context.Context, questionID int64, in QuestionInput) (*Question, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
	ImportExcel(ctx context.Context, examID int64, r io.Reader) (*ImportReport, error)
}

type Handler struct {
	svc    questionService
	logger *zap.Logger
}

func NewHandler(svc questionService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req QuestionInput
	if !binding.DecodeJSON(w, r, &req) {
		return
	}

	q, err := h.svc.AddQuestion(r.Context(), examID, req)
	if err != nil {
		h.writeServiceError(w, r, "add question failed", err)
		return
	}
	h.logger.Info("question added", zap.Int64("exam_id", examID), zap.Int64("question_id", q.QuestionID))
	apiresp.WriteOK(w, r, http.StatusCreated, q)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	q, err := h.svc.GetQuestion(r.Context(), questionID)
	if err != nil {
		h.writeServiceError(w, r, "get question failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, q)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req QuestionInput
	if !binding.DecodeJSON(w, r, &req) {
		return
	}

	q, err := h.svc.UpdateQuestion(r.Context(), questionID, req)
	if err != nil {
		h.writeServiceError(w, r, "update question failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, q)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteQuestion(r.Context(), questionID); err != nil {
		h.writeServiceError(w, r, "delete question failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]int64{"deleted_question_id": questionID})
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(16 << 20); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	report, err := h.svc.ImportExcel(r.Context(), examID, file)
	if err != nil {
		h.writeServiceError(w, r, "import questions failed", err)
		return
	}
	h.logger.Info("question workbook received", zap.String("filename", hdr.Filename), zap.String("batch_id", report.BatchID))
	apiresp.WriteOK(w, r, http.StatusOK, report)
}

func (h *Handler) Template(w http.ResponseWriter, r *http.Request) {
	raw, err := ImportTemplate()
	if err != nil {
		h.logger.Error("build import template failed", zap.Error(err))
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="question-import-template.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, ErrExamNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "exam not found")
	case errors.Is(err, ErrQuestionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "question not found")
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "))
	case errors.Is(err, ErrInvalidWorkbook):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
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
