// Package reportcache stores generated reports by fingerprint. A
// fingerprint covers the evidence snapshot, the rule-set version, the
// range and the attribution policy, so entries never need invalidating;
// a changed input produces a new fingerprint.
package reportcache

import (
	"context"
	"sync"
	"time"

	"residency/internal/presence/report"
	"residency/pkg/platform/sentinel"
	"residency/pkg/requestcontext"
)

type cachedReport struct {
	report   *report.UniversalReport
	storedAt time.Time
}

// MemoryCache is an in-process report cache with TTL expiry. Cached
// reports are shared; callers must not mutate them.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cachedReport
	ttl     time.Duration
}

// NewMemoryCache creates a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cachedReport),
		ttl:     ttl,
	}
}

// Find returns the report stored under fingerprint, or
// sentinel.ErrNotFound if it is absent or expired.
func (c *MemoryCache) Find(ctx context.Context, fingerprint string) (*report.UniversalReport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.entries[fingerprint]; ok {
		if requestcontext.Now(ctx).Sub(cached.storedAt) < c.ttl {
			return cached.report, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Save stores rep under its fingerprint. Expired entries are swept on
// write.
func (c *MemoryCache) Save(ctx context.Context, rep *report.UniversalReport) error {
	if rep == nil || rep.Fingerprint == "" {
		return nil
	}
	now := requestcontext.Now(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	for fp, cached := range c.entries {
		if now.Sub(cached.storedAt) >= c.ttl {
			delete(c.entries, fp)
		}
	}
	c.entries[rep.Fingerprint] = cachedReport{report: rep, storedAt: now}
	return nil
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
