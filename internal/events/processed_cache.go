package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProcessedTracker is the dedupe contract consumers depend on.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// CachedProcessedStore answers positive lookups from Redis and falls through
// to the durable tracker on a miss. Redis errors degrade to the durable path.
type CachedProcessedStore struct {
	redis  *redis.Client
	inner  ProcessedTracker
	ttl    time.Duration
	prefix string
}

// NewCachedProcessedStore returns inner unchanged when redisClient is nil.
func NewCachedProcessedStore(redisClient *redis.Client, inner ProcessedTracker, ttl time.Duration) ProcessedTracker {
	if redisClient == nil || inner == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProcessedStore{redis: redisClient, inner: inner, ttl: ttl, prefix: "processed"}
}

func (c *CachedProcessedStore) key(consumer, eventID string) string {
	return c.prefix + ":" + consumer + ":" + eventID
}

func (c *CachedProcessedStore) AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	if err := c.redis.Get(ctx, c.key(consumer, eventID)).Err(); err == nil {
		return true, nil
	}
	// Miss or Redis error: ask the durable store.
	seen, err := c.inner.AlreadyProcessed(ctx, consumer, eventID)
	if err != nil || !seen {
		return seen, err
	}
	c.redis.Set(ctx, c.key(consumer, eventID), 1, c.ttl)
	return true, nil
}

func (c *CachedProcessedStore) MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	inserted, err := c.inner.MarkProcessed(ctx, consumer, eventID)
	if err != nil {
		return false, err
	}
	c.redis.Set(ctx, c.key(consumer, eventID), 1, c.ttl)
	return inserted, nil
}
