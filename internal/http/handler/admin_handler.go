package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"residentportal/internal/http/response"
	"residentportal/internal/observability"
	"residentportal/internal/service"
)

type AdminHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAdminHandler(auth *service.AuthService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{auth: auth, logger: logger}
}

func (h *AdminHandler) PendingUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.PendingUsers(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not list pending users", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"users": users})
}

func (h *AdminHandler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if err := h.auth.ApproveUser(r.Context(), id); err != nil {
		writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, "admin.user_approved", "user_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "user approved"})
}

func (h *AdminHandler) RejectUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if err := h.auth.RejectUser(r.Context(), id); err != nil {
		writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, "admin.user_rejected", "user_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "user rejected"})
}

func pathUserID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid user id", nil)
		return 0, false
	}
	return uint(id), true
}
