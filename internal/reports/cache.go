package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const dashboardKey = "reports:dashboard"

// RedisCache keeps the assembled dashboard for a short TTL.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisCache creates a dashboard cache; ttl <= 0 means 30 seconds.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached dashboard, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context) (*Dashboard, error) {
	data, err := c.rdb.Get(ctx, dashboardKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Set stores d until the TTL lapses.
func (c *RedisCache) Set(ctx context.Context, d *Dashboard) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, dashboardKey, data, c.ttl).Err()
}

// Invalidate drops the cached dashboard.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, dashboardKey).Err()
}
