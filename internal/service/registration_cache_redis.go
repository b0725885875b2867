package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisRegistrationStore backs the registration registry with one redis set
// per user, so registrations survive restarts and are shared across
// instances.
type RedisRegistrationStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRegistrationStore(client redis.UniversalClient, prefix string) *RedisRegistrationStore {
	if prefix == "" {
		prefix = "service_registrations"
	}
	return &RedisRegistrationStore{client: client, prefix: prefix}
}

func (s *RedisRegistrationStore) Register(ctx context.Context, userID uint, serviceID string) error {
	return s.client.SAdd(ctx, s.key(userID), serviceID).Err()
}

func (s *RedisRegistrationStore) Unregister(ctx context.Context, userID uint, serviceID string) error {
	return s.client.SRem(ctx, s.key(userID), serviceID).Err()
}

func (s *RedisRegistrationStore) IsRegistered(ctx context.Context, userID uint, serviceID string) (bool, error) {
	return s.client.SIsMember(ctx, s.key(userID), serviceID).Result()
}

func (s *RedisRegistrationStore) ListForUser(ctx context.Context, userID uint) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key(userID)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

func (s *RedisRegistrationStore) key(userID uint) string {
	return fmt.Sprintf("%s:%d", s.prefix, userID)
}
