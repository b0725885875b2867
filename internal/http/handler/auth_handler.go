package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"residentportal/internal/http/middleware"
	"residentportal/internal/http/response"
	"residentportal/internal/observability"
	"residentportal/internal/security"
	"residentportal/internal/service"
)

type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type zaloLoginRequest struct {
	AccessToken string `json:"access_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Username == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "username and password are required", nil)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password, requestMeta(r))
	if err != nil {
		observability.RecordAuthLogin("local", "failure")
		writeAuthError(w, r, err)
		return
	}
	observability.RecordAuthLogin("local", "success")
	observability.Audit(r, "auth.login", "username", req.Username)
	security.SetRefreshCookie(w, result.RefreshToken, h.auth.RefreshTTL())
	response.JSON(w, r, http.StatusOK, result)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "username, email and a password of at least 8 characters are required", nil)
		return
	}

	result, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, requestMeta(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	observability.Audit(r, "auth.register", "username", req.Username)
	security.SetRefreshCookie(w, result.RefreshToken, h.auth.RefreshTTL())
	response.JSON(w, r, http.StatusCreated, result)
}

// Refresh rotates the session named by the refresh cookie. A missing cookie is
// the same 401 as a dead one.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, security.RefreshCookieName)
	if raw == "" {
		observability.RecordAuthRefresh("missing")
		response.Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token is invalid, expired or revoked", nil)
		return
	}

	result, err := h.auth.Refresh(r.Context(), raw, requestMeta(r))
	if err != nil {
		observability.RecordAuthRefresh("failure")
		security.ClearRefreshCookie(w)
		writeAuthError(w, r, err)
		return
	}
	observability.RecordAuthRefresh("success")
	security.SetRefreshCookie(w, result.RefreshToken, h.auth.RefreshTTL())
	response.JSON(w, r, http.StatusOK, result)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, security.RefreshCookieName)
	if err := h.auth.Logout(r.Context(), raw); err != nil {
		observability.RecordAuthLogout("failure")
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "logout failed", nil)
		return
	}
	observability.RecordAuthLogout("success")
	security.ClearRefreshCookie(w)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	if err := h.auth.LogoutAll(r.Context(), claims.Subject); err != nil {
		observability.RecordAuthLogout("failure")
		writeAuthError(w, r, err)
		return
	}
	observability.RecordAuthLogout("success")
	observability.Audit(r, "auth.logout_all", "username", claims.Subject)
	security.ClearRefreshCookie(w)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "all sessions revoked"})
}

func (h *AuthHandler) ZaloLogin(w http.ResponseWriter, r *http.Request) {
	var req zaloLoginRequest
	if err := decodeJSON(r, &req); err != nil || req.AccessToken == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "access_token is required", nil)
		return
	}

	result, err := h.auth.ZaloLogin(r.Context(), req.AccessToken, requestMeta(r))
	if err != nil {
		observability.RecordAuthLogin("zalo", "failure")
		writeAuthError(w, r, err)
		return
	}
	observability.RecordAuthLogin("zalo", "success")
	observability.Audit(r, "auth.zalo_login", "username", result.User.Username)
	security.SetRefreshCookie(w, result.RefreshToken, h.auth.RefreshTTL())
	response.JSON(w, r, http.StatusOK, result)
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *service.AccountStatusError
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error(), nil)
	case errors.Is(err, service.ErrPendingApproval):
		response.Error(w, r, http.StatusForbidden, "PENDING_APPROVAL", err.Error(), nil)
	case errors.As(err, &statusErr):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_NOT_USABLE", statusErr.Error(), map[string]string{"status": string(statusErr.Status)})
	case errors.Is(err, service.ErrInvalidToken):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", err.Error(), nil)
	case errors.Is(err, service.ErrUnauthorizedLocation):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED_LOCATION", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidZaloToken):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_ZALO_TOKEN", err.Error(), nil)
	case errors.Is(err, service.ErrExternalService):
		response.Error(w, r, http.StatusBadGateway, "EXTERNAL_SERVICE", "identity provider unavailable", nil)
	case errors.Is(err, service.ErrUserAlreadyExists):
		response.Error(w, r, http.StatusConflict, "USER_EXISTS", err.Error(), nil)
	case errors.Is(err, service.ErrUserNotFound):
		response.Error(w, r, http.StatusNotFound, "USER_NOT_FOUND", err.Error(), nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
