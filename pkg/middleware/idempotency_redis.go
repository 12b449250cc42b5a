package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore shares idempotency records across replicas.
type RedisIdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *RedisIdempotencyStore) Begin(ctx context.Context, key string) (*CachedResponse, bool, error) {
	marker, err := json.Marshal(&CachedResponse{CreatedAt: time.Now()})
	if err != nil {
		return nil, false, err
	}

	ok, err := s.rdb.SetNX(ctx, key, marker, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; report in flight and let the client retry.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, fmt.Errorf("decode cached response: %w", err)
	}
	if cached.inFlight() {
		return nil, false, nil
	}
	return &cached, false, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, response *CachedResponse) error {
	response.CreatedAt = time.Now()
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Abort(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Stop is a no-op; the client is owned and closed by pkg/client.
func (s *RedisIdempotencyStore) Stop() {}
