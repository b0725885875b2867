package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"residentportal/internal/domain"
	"residentportal/internal/http/handler"
	"residentportal/internal/repository"
	"residentportal/internal/security"
	"residentportal/internal/service"
	"residentportal/internal/zalo"
)

type stubZaloGateway struct{}

func (stubZaloGateway) ValidateAccessToken(context.Context, string) (bool, error) {
	return false, nil
}

func (stubZaloGateway) UserProfile(context.Context, string) (zalo.Profile, error) {
	return zalo.Profile{}, &zalo.APIError{Code: -216, Message: "invalid token"}
}

type routerFixture struct {
	handler http.Handler
	users   repository.UserRepository
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.UserRole{}, &domain.RefreshSession{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepository(db)
	sessions := repository.NewRefreshSessionRepository(db)
	codec := security.NewTokenCodec(
		"0123456789abcdef0123456789abcdef", "residentportal",
		15*time.Minute, 24*time.Hour, nil, time.Minute,
	)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := service.NewAuthService(users, sessions, codec, stubZaloGateway{}, log)
	registrations := service.NewInMemoryRegistrationStore()

	h := New(Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, log),
		UserHandler:      handler.NewUserHandler(auth, registrations, log),
		AdminHandler:     handler.NewAdminHandler(auth, log),
		TokenCodec:       codec,
		Logger:           log,
		CORSOrigins:      []string{"http://localhost"},
		AuthRateLimitRPM: 1000,
	})
	return &routerFixture{handler: h, users: users}
}

func (f *routerFixture) seedUser(t *testing.T, username, password string, roles ...string) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	email := username + "@example.com"
	userRoles := make([]domain.UserRole, 0, len(roles))
	for _, role := range roles {
		userRoles = append(userRoles, domain.UserRole{Role: role})
	}
	user := &domain.User{
		Username:     username,
		Email:        &email,
		PasswordHash: &hash,
		Status:       domain.StatusActive,
		Roles:        userRoles,
	}
	if err := f.users.Create(user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func perform(h http.Handler, method, target, remoteAddr string, headers map[string]string, cookies []*http.Cookie, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = remoteAddr
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return env.Data
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == security.RefreshCookieName {
			return c
		}
	}
	t.Fatalf("no refresh cookie in response")
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	rr := perform(f.handler, http.MethodGet, "/health", "10.0.0.1:1000", nil, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestLoginRefreshLogoutFlow(t *testing.T) {
	f := newRouterFixture(t)
	f.seedUser(t, "alice", "s3cret-pass", domain.RoleUser)
	addr := "10.10.10.10:1234"

	rr := perform(f.handler, http.MethodPost, "/api/auth/login", addr, nil, nil,
		`{"username":"alice","password":"s3cret-pass"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rr.Code, rr.Body.String())
	}
	data := decodeData(t, rr)
	accessToken, _ := data["access_token"].(string)
	if accessToken == "" {
		t.Fatal("no access token in login response")
	}
	if _, ok := data["refresh_token"]; ok {
		t.Fatal("refresh token must not appear in the body")
	}
	cookie := refreshCookie(t, rr)
	if !cookie.HttpOnly || cookie.Path != "/" {
		t.Fatalf("cookie attributes: %+v", cookie)
	}

	rr = perform(f.handler, http.MethodGet, "/api/users/me", addr,
		map[string]string{"Authorization": "Bearer " + accessToken}, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d body=%s", rr.Code, rr.Body.String())
	}
	if me := decodeData(t, rr); me["username"] != "alice" {
		t.Fatalf("me payload: %v", me)
	}

	rr = perform(f.handler, http.MethodPost, "/api/auth/refresh", addr, nil, []*http.Cookie{cookie}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", rr.Code, rr.Body.String())
	}
	rotated := refreshCookie(t, rr)
	if rotated.Value == cookie.Value {
		t.Fatal("refresh cookie was not rotated")
	}

	// The original value is spent.
	rr = perform(f.handler, http.MethodPost, "/api/auth/refresh", addr, nil, []*http.Cookie{cookie}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d", rr.Code)
	}

	rr = perform(f.handler, http.MethodPost, "/api/auth/logout", addr, nil, []*http.Cookie{rotated}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rr.Code)
	}
	rr = perform(f.handler, http.MethodPost, "/api/auth/refresh", addr, nil, []*http.Cookie{rotated}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d", rr.Code)
	}
}

func TestRefreshFromDifferentAddressRejected(t *testing.T) {
	f := newRouterFixture(t)
	f.seedUser(t, "bob", "pw-bob-123", domain.RoleUser)

	rr := perform(f.handler, http.MethodPost, "/api/auth/login", "10.10.10.10:1234", nil, nil,
		`{"username":"bob","password":"pw-bob-123"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d", rr.Code)
	}
	cookie := refreshCookie(t, rr)

	rr = perform(f.handler, http.MethodPost, "/api/auth/refresh", "172.16.0.9:5555", nil, []*http.Cookie{cookie}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("cross-address refresh status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "UNAUTHORIZED_LOCATION") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}

	// Even the original address cannot use the revoked value anymore.
	rr = perform(f.handler, http.MethodPost, "/api/auth/refresh", "10.10.10.10:1234", nil, []*http.Cookie{cookie}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("post-revoke refresh status = %d", rr.Code)
	}
}

func TestAdminRoutesRequireAdminAuthority(t *testing.T) {
	f := newRouterFixture(t)
	f.seedUser(t, "resident", "pw-resident", domain.RoleUser)
	f.seedUser(t, "manager", "pw-manager1", domain.RoleUser, domain.RoleAdmin)
	addr := "10.10.10.10:1234"

	login := func(username, password string) string {
		rr := perform(f.handler, http.MethodPost, "/api/auth/login", addr, nil, nil,
			fmt.Sprintf(`{"username":%q,"password":%q}`, username, password))
		if rr.Code != http.StatusOK {
			t.Fatalf("login %s status = %d", username, rr.Code)
		}
		token, _ := decodeData(t, rr)["access_token"].(string)
		return token
	}

	residentToken := login("resident", "pw-resident")
	adminToken := login("manager", "pw-manager1")

	rr := perform(f.handler, http.MethodGet, "/api/admin/users/pending", addr, nil, nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rr.Code)
	}
	rr = perform(f.handler, http.MethodGet, "/api/admin/users/pending", addr,
		map[string]string{"Authorization": "Bearer " + residentToken}, nil, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("resident status = %d", rr.Code)
	}
	rr = perform(f.handler, http.MethodGet, "/api/admin/users/pending", addr,
		map[string]string{"Authorization": "Bearer " + adminToken}, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("admin status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = perform(f.handler, http.MethodPost, "/api/admin/users/abc/approve", addr,
		map[string]string{"Authorization": "Bearer " + adminToken}, nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rr.Code)
	}
}

func TestServiceRegistrationEndpoints(t *testing.T) {
	f := newRouterFixture(t)
	f.seedUser(t, "carol", "pw-carol-1", domain.RoleUser)
	addr := "10.10.10.10:1234"

	rr := perform(f.handler, http.MethodPost, "/api/auth/login", addr, nil, nil,
		`{"username":"carol","password":"pw-carol-1"}`)
	token, _ := decodeData(t, rr)["access_token"].(string)
	authz := map[string]string{"Authorization": "Bearer " + token}

	rr = perform(f.handler, http.MethodPost, "/api/users/me/services/svc-gym", addr, authz, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("register status = %d body=%s", rr.Code, rr.Body.String())
	}
	rr = perform(f.handler, http.MethodGet, "/api/users/me/services", addr, authz, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "svc-gym") {
		t.Fatalf("registration missing from list: %s", rr.Body.String())
	}
	rr = perform(f.handler, http.MethodDelete, "/api/users/me/services/svc-gym", addr, authz, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unregister status = %d", rr.Code)
	}
	rr = perform(f.handler, http.MethodGet, "/api/users/me/services", addr, authz, nil, "")
	if strings.Contains(rr.Body.String(), "svc-gym") {
		t.Fatalf("registration still listed: %s", rr.Body.String())
	}
}

func TestRegisterEndpointValidation(t *testing.T) {
	f := newRouterFixture(t)
	addr := "10.10.10.10:1234"

	rr := perform(f.handler, http.MethodPost, "/api/auth/register", addr, nil, nil,
		`{"username":"dave","email":"dave@example.com","password":"short"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("short password status = %d", rr.Code)
	}

	rr = perform(f.handler, http.MethodPost, "/api/auth/register", addr, nil, nil,
		`{"username":"dave","email":"dave@example.com","password":"long-enough-pass"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = perform(f.handler, http.MethodPost, "/api/auth/register", addr, nil, nil,
		`{"username":"dave","email":"other@example.com","password":"long-enough-pass"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", rr.Code)
	}
}

func TestZaloLoginRejectsInvalidToken(t *testing.T) {
	f := newRouterFixture(t)
	rr := perform(f.handler, http.MethodPost, "/api/auth/zalo", "10.10.10.10:1234", nil, nil,
		`{"access_token":"bogus"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("zalo login status = %d body=%s", rr.Code, rr.Body.String())
	}
}
