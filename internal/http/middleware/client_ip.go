package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the address a request originated from. The first
// X-Forwarded-For hop wins, then X-Real-IP, then the socket peer. Sessions are
// bound to this value, so the resolution order must stay stable across
// deployments.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
