// Package memcache provides a generic in-memory TTL cache with lazy expiry
// and an optional periodic sweep. Entries are never persisted; the cache is
// local to one running instance.
package memcache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.storedAt) > e.ttl
}

// Cache is a TTL key/value store safe for concurrent use. Expired entries
// are dropped lazily on read and in bulk by Sweep.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]

	defaultTTL time.Duration

	hits   int64
	misses int64

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a cache whose entries default to the given TTL. A zero or
// negative defaultTTL means entries never expire unless Set overrides it.
func New[V any](defaultTTL time.Duration) *Cache[V] {
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		defaultTTL: defaultTTL,
		nowFunc:    time.Now,
	}
}

// Get returns the cached value for key. An expired entry counts as a miss
// and is removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.nowFunc()
	c.mu.RUnlock()

	var zero V
	if !ok {
		c.miss()
		return zero, false
	}
	if e.expired(now) {
		c.mu.Lock()
		// Re-check under the write lock: a writer may have refreshed it.
		if cur, still := c.entries[key]; still && cur.expired(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.miss()
		return zero, false
	}

	c.hit()
	return e.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: c.nowFunc(), ttl: ttl}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries. Hit/miss counters are preserved.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len returns the number of stored entries, including any not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HitRate returns the fraction of Get calls served from cache, in [0,1].
func (c *Cache[V]) HitRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// StartSweeping runs Sweep every interval until ctx is cancelled. It blocks;
// run it in its own goroutine.
func (c *Cache[V]) StartSweeping(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				zap.L().Debug("memcache: swept expired entries", zap.Int("removed", n))
			}
		}
	}
}

func (c *Cache[V]) hit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache[V]) miss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}
