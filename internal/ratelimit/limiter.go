package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether an action identified by key may proceed right now.
// Implementations count actions per key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type redisLimiter struct {
	client *redis.Client
	window time.Duration
	max    int64
	logger *slog.Logger
}

// NewRedisLimiter allows up to max actions per key within each window.
// Redis errors are reported but callers are expected to fail open on them.
func NewRedisLimiter(client *redis.Client, window time.Duration, max int64, logger *slog.Logger) Limiter {
	return &redisLimiter{
		client: client,
		window: window,
		max:    max,
		logger: logger,
	}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			l.logger.Warn("failed to set rate limit expiry", "key", redisKey, "error", err)
		}
	}

	return count <= l.max, nil
}
