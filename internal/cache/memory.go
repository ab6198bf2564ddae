// Package cache provides the in-process envelope cache used when no Redis
// instance is configured.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snp-search-service/internal/domain"
)

type memoryEntry struct {
	envelope  *domain.ResultEnvelope
	expiresAt time.Time
}

// MemoryCache is a size-bounded LRU with per-entry expiry
type MemoryCache struct {
	entries    *lru.Cache[string, memoryEntry]
	defaultTTL time.Duration
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache effectiveness
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// NewMemoryCache creates a cache holding at most maxItems envelopes
func NewMemoryCache(maxItems int, defaultTTL time.Duration) (*MemoryCache, error) {
	entries, err := lru.New[string, memoryEntry](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &MemoryCache{
		entries:    entries,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// GetEnvelope returns a live cached envelope
func (c *MemoryCache) GetEnvelope(_ context.Context, key string) (*domain.ResultEnvelope, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return entry.envelope, true, nil
}

// SetEnvelope stores env under key; a zero ttl uses the default
func (c *MemoryCache) SetEnvelope(_ context.Context, key string, env *domain.ResultEnvelope, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	c.entries.Add(key, memoryEntry{envelope: env, expiresAt: c.now().Add(ttl)})
	return nil
}

// Purge drops every entry
func (c *MemoryCache) Purge() {
	c.entries.Purge()
}

// Stats returns hit and miss counters
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.entries.Len(),
	}
}
