package upstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores successful payloads so a request can be served degraded
// when the live upstream is unavailable. Entries carry a bounded TTL.
type Cache interface {
	Get(ctx context.Context, key string) (map[string]any, bool)
	Set(ctx context.Context, key string, payload map[string]any)
}

// RedisCache is a TTL-bounded Redis-backed Cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis at addr. Cache errors are never fatal:
// a miss is returned instead.
func NewRedisCache(addr string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached payload for key, if present and unexpired.
func (c *RedisCache) Get(ctx context.Context, key string) (map[string]any, bool) {
	data, err := c.client.Get(ctx, "upstream:"+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", "error", err)
		}
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", "key", key, "error", err)
		return nil, false
	}
	return payload, true
}

// Set stores the payload under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("cache set: marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, "upstream:"+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "error", err)
	}
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
