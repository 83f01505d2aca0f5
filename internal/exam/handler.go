package exam

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"edulms/internal/app/apiresp"
	"edulms/internal/app/binding"
	"edulms/internal/auth"
)

type examService interface {
	ListExams(ctx context.Context, f ExamFilter) (*ExamPage, error)
	GetExam(ctx context.Context, examID int64) (*ExamDetail, error)
	CreateExam(ctx context.Context, in ExamInput, createdBy int64) (*Exam, error)
	UpdateExam(ctx context.Context, examID int64, in ExamInput) (*Exam, error)
	DeleteExam(ctx context.Context, examID int64) error
	ResolveAnswerKey(ctx context.Context, examID int64) (AnswerKey, error)
	SubmitExam(ctx context.Context, examID, studentID int64, sub Submission) (*ExamResultResponse, error)
	GetResult(ctx context.Context, resultID, studentID int64) (*ExamResultResponse, error)
	ListResults(ctx context.Context, studentID int64, page, pageSize int) ([]ExamResultResponse, int, error)
}

type Handler struct {
	svc    examService
	logger *zap.Logger
}

type examRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Subject     string `json:"subject" validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
}

func NewHandler(svc examService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	res, err := h.svc.ListExams(r.Context(), ExamFilter{
		Subject:  q.Get("subject"),
		Search:   q.Get("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.internalError(w, r, "list exams failed", err)
		return
	}
	apiresp.WritePage(w, r, res.Data, apiresp.Page{Page: res.Page, PageSize: res.PageSize, Total: res.Total})
}

func (h *Handler) GetExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.svc.GetExam(r.Context(), examID)
	if err != nil {
		h.writeServiceError(w, r, "get exam failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, detail)
}

func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req examRequest
	if !binding.DecodeJSON(w, r, &req) {
		return
	}

	created, err := h.svc.CreateExam(r.Context(), ExamInput(req), user.ID)
	if err != nil {
		h.writeServiceError(w, r, "create exam failed", err)
		return
	}
	h.logger.Info("exam created", zap.Int64("exam_id", created.ID), zap.Int64("created_by", user.ID))
	apiresp.WriteOK(w, r, http.StatusCreated, created)
}

func (h *Handler) UpdateExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req examRequest
	if !binding.DecodeJSON(w, r, &req) {
		return
	}

	updated, err := h.svc.UpdateExam(r.Context(), examID, ExamInput(req))
	if err != nil {
		h.writeServiceError(w, r, "update exam failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, updated)
}

func (h *Handler) DeleteExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteExam(r.Context(), examID); err != nil {
		h.writeServiceError(w, r, "delete exam failed", err)
		return
	}
	h.logger.Info("exam deleted", zap.Int64("exam_id", examID))
	apiresp.WriteOK(w, r, http.StatusOK, map[string]int64{"deleted_exam_id": examID})
}

func (h *Handler) AnswerKey(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	key, err := h.svc.ResolveAnswerKey(r.Context(), examID)
	if err != nil {
		h.writeServiceError(w, r, "resolve answer key failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, AnswerKeyResponse{ExamID: examID, Answers: key.Items()})
}

// Submit grades the caller's answers. The student is always the token
// subject, never a body field.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req Submission
	if !binding.DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.SubmitExam(r.Context(), examID, user.ID, req)
	if err != nil {
		h.writeServiceError(w, r, "submit exam failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, res)
}

func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	page, pageSize = normalizePage(page, pageSize)

	items, total, err := h.svc.ListResults(r.Context(), user.ID, page, pageSize)
	if err != nil {
		h.internalError(w, r, "list results failed", err)
		return
	}
	apiresp.WritePage(w, r, items, apiresp.Page{Page: page, PageSize: pageSize, Total: total})
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	resultID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	owner := user.ID
	if isPrivileged(user) {
		owner = 0
	}
	res, err := h.svc.GetResult(r.Context(), resultID, owner)
	if err != nil {
		h.writeServiceError(w, r, "get result failed", err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, ErrExamNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "exam not found")
	case errors.Is(err, ErrResultNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, "result not found")
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "))
	default:
		h.internalError(w, r, msg, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return id, true
}

func isPrivileged(u *auth.User) bool {
	return u.Role == auth.RoleAdmin || u.Role == auth.RoleTeacher
}
