package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"edulms/internal/app/apiresp"
	"edulms/internal/app/binding"
)

type authService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, in CreateUserInput) (*User, error)
}

type Handler struct {
	svc    authService
	logger *zap.Logger
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"max=200"`
	Role     string `json:"role" validate:"required,oneof=admin teacher student"`
}

func NewHandler(svc authService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !binding.DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			apiresp.WriteError(w, r, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, ErrInactive):
			apiresp.WriteError(w, r, http.StatusForbidden, "account is not active")
		default:
			h.logger.Error("login failed", zap.Error(err))
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	current, ok := CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.svc.GetUser(r.Context(), current.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("load current user failed", zap.Int64("user_id", current.ID), zap.Error(err))
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, user)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !binding.DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.svc.CreateUser(r.Context(), CreateUserInput(req))
	if err != nil {
		switch {
		case errors.Is(err, ErrUserExists):
			apiresp.WriteError(w, r, http.StatusConflict, "username already taken")
		case errors.Is(err, ErrInvalidRole):
			apiresp.WriteInvalid(w, r, map[string]string{"role": "oneof"})
		default:
			h.logger.Error("create user failed", zap.Error(err))
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	h.logger.Info("user created", zap.Int64("user_id", user.ID), zap.String("role", user.Role))
	apiresp.WriteOK(w, r, http.StatusCreated, user)
}
