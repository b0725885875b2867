package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"residentportal/internal/http/response"
)

// RateLimiter enforces a fixed-window request budget per client address.
// State lives in process memory; each instance enforces its own budget.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*clientWindow
	cleanup time.Time
}

type clientWindow struct {
	start time.Time
	count int
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*clientWindow),
		cleanup: time.Now().Add(window),
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, resetAt := rl.allow(ClientIP(r))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
			if !allowed {
				retry := int(time.Until(resetAt).Round(time.Second).Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) (bool, int, time.Time) {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.cleanup) {
		for k, cw := range rl.windows {
			if now.Sub(cw.start) > 2*rl.window {
				delete(rl.windows, k)
			}
		}
		rl.cleanup = now.Add(rl.window)
	}

	cw, ok := rl.windows[key]
	if !ok || now.Sub(cw.start) >= rl.window {
		cw = &clientWindow{start: now}
		rl.windows[key] = cw
	}
	resetAt := cw.start.Add(rl.window)
	if cw.count >= rl.limit {
		return false, 0, resetAt
	}
	cw.count++
	return true, rl.limit - cw.count, resetAt
}
