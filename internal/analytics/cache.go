package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCountTTL bounds how long a cached count may lag behind the store.
const DefaultCountTTL = 5 * time.Minute

// CachedCounter caches positive counts from a backing Counter in Redis.
//
// Event history is append-only, so a cached count is a lower bound of the
// true count; zero is never cached because the next event would invalidate
// it. Redis failures fall through to the backing counter.
type CachedCounter struct {
	next   Counter
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedCounter wraps next. ttl <= 0 uses DefaultCountTTL.
func NewCachedCounter(next Counter, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedCounter {
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCounter{next: next, client: client, ttl: ttl, logger: logger}
}

// ConnectRedis creates a Redis client from a URL.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// CountKey is the cache key for one (visitor, target, event type) count.
func CountKey(anonymousUserID int64, className string, classPK int64, eventType string) string {
	return fmt.Sprintf("sk:events:%d:%s:%d:%s", anonymousUserID, className, classPK, eventType)
}

// Count returns the cached count when present, else asks the backing counter.
func (c *CachedCounter) Count(ctx context.Context, anonymousUserID int64, className string, classPK int64, eventType string) (int, error) {
	key := CountKey(anonymousUserID, className, classPK, eventType)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if n, convErr := strconv.Atoi(cached); convErr == nil && n > 0 {
			return n, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("event count cache read failed", "key", key, "error", err)
	}

	n, err := c.next.Count(ctx, anonymousUserID, className, classPK, eventType)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		if err := c.client.Set(ctx, key, n, c.ttl).Err(); err != nil {
			c.logger.Warn("event count cache write failed", "key", key, "error", err)
		}
	}
	return n, nil
}
