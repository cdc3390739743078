package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"residency/internal/presence/report"
	"residency/pkg/platform/sentinel"
)

// keyPrefix namespaces report entries in a shared Redis.
const keyPrefix = "presence:report:"

// RedisCache stores reports as JSON in Redis with a per-key TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed report cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func key(fingerprint string) string {
	return keyPrefix + fingerprint
}

// Find returns the report stored under fingerprint, or
// sentinel.ErrNotFound.
func (c *RedisCache) Find(ctx context.Context, fingerprint string) (*report.UniversalReport, error) {
	data, err := c.client.Get(ctx, key(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find cached report: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	var rep report.UniversalReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode cached report: %w", err)
	}
	return &rep, nil
}

// Save stores rep under its fingerprint.
func (c *RedisCache) Save(ctx context.Context, rep *report.UniversalReport) error {
	if rep == nil || rep.Fingerprint == "" {
		return nil
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.client.Set(ctx, key(rep.Fingerprint), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save cached report: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}
