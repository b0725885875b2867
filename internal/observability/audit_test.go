package observability

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuditCarriesRequestOrigin(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	r.RemoteAddr = "192.0.2.10:4444"
	r.Header.Set("X-Forwarded-For", "203.0.113.80, 10.0.0.2")
	r.Header.Set("User-Agent", "zalo-mini-app/2.1")
	r.Header.Set("X-Request-Id", "req-123")

	Audit(r, "auth.login", "username", "alice")

	line := buf.String()
	for _, want := range []string{
		"event=auth.login",
		"origin_ip=203.0.113.80",
		"user_agent=zalo-mini-app/2.1",
		"request_id=req-123",
		"username=alice",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("audit line missing %q: %s", want, line)
		}
	}
}
