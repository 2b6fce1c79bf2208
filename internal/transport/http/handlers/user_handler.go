package handlers

import (
	"net/http"

	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type UserHandler struct {
	userService *service.UserService
	log         *zap.Logger
}

func NewUserHandler(userService *service.UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{userService: userService, log: log}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "get current user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "user")
	if !ok {
		return
	}
	user, err := h.userService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Block(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "user")
	if !ok {
		return
	}
	if err := h.userService.Block(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		writeServiceError(w, h.log, "block user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "user")
	if !ok {
		return
	}
	if err := h.userService.Unblock(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		writeServiceError(w, h.log, "unblock user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListBlocked(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "list blocked users", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}
