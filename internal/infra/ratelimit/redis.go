package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"educel/internal/domain"
	"educel/internal/infra/metrics"
)

// RedisLimiter реализует распределённый лимитер с фиксированным окном.
// Инкремент атомарен на стороне Redis, поэтому одновременные запросы
// одного пользователя не теряют счётчик.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

var _ domain.RateLimiter = (*RedisLimiter)(nil)

// NewRedis создаёт лимитер поверх Redis.
func NewRedis(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if window <= 0 {
		window = time.Hour
	}
	return &RedisLimiter{client: client, prefix: prefix, max: max, window: window}
}

// Check инкрементирует счётчик окна и сравнивает с лимитом.
func (l *RedisLimiter) Check(ctx context.Context, identifier string) (domain.RateLimitResult, error) {
	now := time.Now().UTC()
	windowStart := now.Truncate(l.window)
	key := fmt.Sprintf("%s:%s:%d", l.prefix, identifier, windowStart.Unix())

	start := time.Now()
	count, err := l.client.Incr(ctx, key).Result()
	metrics.ObserveNetworkRequest("redis", "ratelimit_incr", l.prefix, start, err)
	if err != nil {
		return domain.RateLimitResult{}, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		// Ключ живёт чуть дольше окна, чтобы ответ с reset не опережал удаление.
		if err := l.client.Expire(ctx, key, l.window+time.Minute).Err(); err != nil {
			return domain.RateLimitResult{}, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}

	resetAt := windowStart.Add(l.window)
	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitResult{
		Allowed:   int(count) <= l.max,
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
