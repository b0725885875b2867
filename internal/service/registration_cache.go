package service

import (
	"context"
	"sort"
	"sync"
)

// RegistrationStore tracks which building services each user has registered
// for. Implementations must be safe for concurrent use without external
// locking.
type RegistrationStore interface {
	Register(ctx context.Context, userID uint, serviceID string) error
	Unregister(ctx context.Context, userID uint, serviceID string) error
	IsRegistered(ctx context.Context, userID uint, serviceID string) (bool, error)
	ListForUser(ctx context.Context, userID uint) ([]string, error)
}

// InMemoryRegistrationStore keeps one concurrent set per user inside a
// sync.Map, so distinct users never contend and members of one bucket only
// contend on that bucket's lock.
type InMemoryRegistrationStore struct {
	buckets sync.Map // uint -> *registrationSet
}

type registrationSet struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewInMemoryRegistrationStore() *InMemoryRegistrationStore {
	return &InMemoryRegistrationStore{}
}

func (s *InMemoryRegistrationStore) bucket(userID uint) *registrationSet {
	if b, ok := s.buckets.Load(userID); ok {
		return b.(*registrationSet)
	}
	b, _ := s.buckets.LoadOrStore(userID, &registrationSet{members: make(map[string]struct{})})
	return b.(*registrationSet)
}

func (s *InMemoryRegistrationStore) Register(_ context.Context, userID uint, serviceID string) error {
	b := s.bucket(userID)
	b.mu.Lock()
	b.members[serviceID] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (s *InMemoryRegistrationStore) Unregister(_ context.Context, userID uint, serviceID string) error {
	if b, ok := s.buckets.Load(userID); ok {
		set := b.(*registrationSet)
		set.mu.Lock()
		delete(set.members, serviceID)
		set.mu.Unlock()
	}
	return nil
}

func (s *InMemoryRegistrationStore) IsRegistered(_ context.Context, userID uint, serviceID string) (bool, error) {
	b, ok := s.buckets.Load(userID)
	if !ok {
		return false, nil
	}
	set := b.(*registrationSet)
	set.mu.RLock()
	_, registered := set.members[serviceID]
	set.mu.RUnlock()
	return registered, nil
}

func (s *InMemoryRegistrationStore) ListForUser(_ context.Context, userID uint) ([]string, error) {
	b, ok := s.buckets.Load(userID)
	if !ok {
		return nil, nil
	}
	set := b.(*registrationSet)
	set.mu.RLock()
	out := make([]string, 0, len(set.members))
	for id := range set.members {
		out = append(out, id)
	}
	set.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}
