package srzone

import (
	"context"
	"sync"
	"time"

	"dojibot/pkg/model"
)

// ZoneComputer produces a fresh snapshot for a symbol/timeframe
type ZoneComputer interface {
	ComputeZones(ctx context.Context, symbol string, tf model.Timeframe) (*model.SRSnapshot, error)
}

type cacheKey struct {
	symbol string
	tf     model.Timeframe
}

type cacheEntry struct {
	snap    *model.SRSnapshot
	expires time.Time
}

// SnapshotCache wraps a ZoneComputer with a read-through cache whose entries
// live for one timeframe period. Expiry is checked on read only.
type SnapshotCache struct {
	inner   ZoneComputer
	entries map[cacheKey]cacheEntry
	mu      sync.Mutex
	now     func() time.Time
}

// NewSnapshotCache creates a caching wrapper around inner
func NewSnapshotCache(inner ZoneComputer) *SnapshotCache {
	return &SnapshotCache{
		inner:   inner,
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source
func (c *SnapshotCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the cached snapshot or computes and stores a new one.
// Failures are not cached.
func (c *SnapshotCache) Get(ctx context.Context, symbol string, tf model.Timeframe) (*model.SRSnapshot, error) {
	key := cacheKey{symbol: symbol, tf: tf}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Before(e.expires) {
			c.mu.Unlock()
			return e.snap, nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	snap, err := c.inner.ComputeZones(ctx, symbol, tf)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{snap: snap, expires: c.now().Add(tf.Duration())}
	c.mu.Unlock()

	return snap, nil
}

// ComputeZones makes the cache usable wherever a ZoneComputer is expected
func (c *SnapshotCache) ComputeZones(ctx context.Context, symbol string, tf model.Timeframe) (*model.SRSnapshot, error) {
	return c.Get(ctx, symbol, tf)
}

// Invalidate drops the entry for symbol/tf
func (c *SnapshotCache) Invalidate(symbol string, tf model.Timeframe) {
	c.mu.Lock()
	delete(c.entries, cacheKey{symbol: symbol, tf: tf})
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
