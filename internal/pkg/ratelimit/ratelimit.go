// Package ratelimit provides a fixed-window burst limiter backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yogev77/tophuman-sub001/internal/config"
)

const keyFormat = "ratelimit:%d:%s"

// Limiter counts actions per owner in fixed windows.
type Limiter struct {
	client *redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// New wraps a connected client.
func New(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow records one action and reports whether the owner is still within
// limit for the current window.
func (l *Limiter) Allow(ctx context.Context, ownerID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(keyFormat, ownerID, action)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if count == 1 {
		// First hit opens the window.
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// Reset clears the counter for one owner and action.
func (l *Limiter) Reset(ctx context.Context, ownerID int64, action string) error {
	return l.client.Del(ctx, fmt.Sprintf(keyFormat, ownerID, action)).Err()
}
