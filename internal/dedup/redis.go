package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares fingerprints across processes through Redis. SET NX gives
// the atomic check-and-mark in a single round trip.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func dedupKey(fingerprint string) string {
	return fmt.Sprintf("dedup:signal:%s", fingerprint)
}

// CheckAndMark implements Store. Errors surface to the deduplicator, which
// fails open.
func (s *RedisStore) CheckAndMark(ctx context.Context, fingerprint string) (bool, error) {
	created, err := s.client.SetNX(ctx, dedupKey(fingerprint), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !created, nil
}
