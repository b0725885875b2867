package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"residentportal/internal/http/middleware"
)

// Audit emits one line per security-relevant portal event (logins, approvals,
// session revocations, service registrations). The origin address uses the
// same resolution as session binding, so audit lines and stored sessions agree
// about where a request came from.
func Audit(r *http.Request, event string, attrs ...any) {
	requestID := chimiddleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get("X-Request-Id")
	}
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"origin_ip", middleware.ClientIP(r),
		"user_agent", r.UserAgent(),
		"request_id", requestID,
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}
