package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// VerifyCacheStore memoizes positive token verification results keyed by the
// raw credential value. Entries carry their own short expiry, decoupled from
// the token's cryptographic expiry.
type VerifyCacheStore interface {
	Get(ctx context.Context, token string) (bool, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
}

type NoopVerifyCacheStore struct{}

func NewNoopVerifyCacheStore() *NoopVerifyCacheStore { return &NoopVerifyCacheStore{} }

func (s *NoopVerifyCacheStore) Get(context.Context, string) (bool, error) { return false, nil }

func (s *NoopVerifyCacheStore) Set(context.Context, string, time.Duration) error { return nil }

type InMemoryVerifyCacheStore struct {
	mu    sync.RWMutex
	store map[string]time.Time
}

func NewInMemoryVerifyCacheStore() *InMemoryVerifyCacheStore {
	return &InMemoryVerifyCacheStore{store: make(map[string]time.Time)}
}

func (s *InMemoryVerifyCacheStore) Get(_ context.Context, token string) (bool, error) {
	key := hashToken(token)
	now := time.Now().UTC()
	s.mu.RLock()
	expiresAt, ok := s.store[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		s.mu.Lock()
		delete(s.store, key)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (s *InMemoryVerifyCacheStore) Set(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[hashToken(token)] = time.Now().UTC().Add(ttl)
	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
