package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"residentportal/internal/observability"
)

// SessionPurger removes refresh sessions that can never be used again and
// reports how many rows went away.
type SessionPurger interface {
	PurgeExpiredOrRevoked() (int64, error)
}

// CleanupScheduler runs the session purge on a fixed interval in the
// background. A purge failure is logged and the ticker keeps going; a failed
// sweep only means the rows wait for the next one.
type CleanupScheduler struct {
	purger   SessionPurger
	interval time.Duration
	logger   *slog.Logger

	running bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewCleanupScheduler(purger SessionPurger, interval time.Duration, logger *slog.Logger) *CleanupScheduler {
	return &CleanupScheduler{purger: purger, interval: interval, logger: logger}
}

// Start launches the background loop. Calling Start on a running scheduler is
// a no-op.
func (s *CleanupScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *CleanupScheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "session cleanup scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "session cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CleanupScheduler) sweep(ctx context.Context) {
	purged, err := s.purger.PurgeExpiredOrRevoked()
	if err != nil {
		s.logger.ErrorContext(ctx, "session cleanup sweep failed", "error", err)
		return
	}
	observability.RecordSessionsPurged(purged)
	if purged > 0 {
		s.logger.InfoContext(ctx, "purged dead sessions", "count", purged)
	}
}
