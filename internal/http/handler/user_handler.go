package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"residentportal/internal/http/middleware"
	"residentportal/internal/http/response"
	"residentportal/internal/observability"
	"residentportal/internal/service"
)

type UserHandler struct {
	auth          *service.AuthService
	registrations service.RegistrationStore
	logger        *slog.Logger
}

func NewUserHandler(auth *service.AuthService, registrations service.RegistrationStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{auth: auth, registrations: registrations, logger: logger}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	info, err := h.auth.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, info)
}

func (h *UserHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	services, err := h.registrations.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not list registrations", nil)
		return
	}
	if services == nil {
		services = []string{}
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"services": services})
}

func (h *UserHandler) RegisterService(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	serviceID := strings.TrimSpace(chi.URLParam(r, "serviceID"))
	if serviceID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "service id is required", nil)
		return
	}
	if err := h.registrations.Register(r.Context(), claims.UserID, serviceID); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not register service", nil)
		return
	}
	observability.Audit(r, "service.register", "user_id", claims.UserID, "service_id", serviceID)
	response.JSON(w, r, http.StatusOK, map[string]string{"service_id": serviceID, "status": "registered"})
}

func (h *UserHandler) UnregisterService(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	serviceID := strings.TrimSpace(chi.URLParam(r, "serviceID"))
	if serviceID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "service id is required", nil)
		return
	}
	if err := h.registrations.Unregister(r.Context(), claims.UserID, serviceID); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not unregister service", nil)
		return
	}
	observability.Audit(r, "service.unregister", "user_id", claims.UserID, "service_id", serviceID)
	response.JSON(w, r, http.StatusOK, map[string]string{"service_id": serviceID, "status": "unregistered"})
}
