package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/redis/go-redis/v9"
)

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

// RedisCache shares session state between server instances. The key expires
// with the session, which is what destroys an abandoned cart.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (r *RedisCache) Get(ctx context.Context, sessionID string) (*checkout.State, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var st checkout.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state failed: %w", err)
	}
	return &st, nil
}

func (r *RedisCache) Set(ctx context.Context, sessionID string, st *checkout.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state failed: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("session-state:%s", sessionID)
}
