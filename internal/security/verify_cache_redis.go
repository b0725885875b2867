package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisVerifyCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisVerifyCacheStore(client redis.UniversalClient, prefix string) *RedisVerifyCacheStore {
	if prefix == "" {
		prefix = "jwt_verify_cache"
	}
	return &RedisVerifyCacheStore{client: client, prefix: prefix}
}

func (s *RedisVerifyCacheStore) Get(ctx context.Context, token string) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	_, err := s.client.Get(ctx, s.key(token)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisVerifyCacheStore) Set(ctx context.Context, token string, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key(token), "1", ttl).Err()
}

func (s *RedisVerifyCacheStore) key(token string) string {
	return fmt.Sprintf("%s:%s", s.prefix, hashToken(token))
}
