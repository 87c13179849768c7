// Package cache memoises calculation results keyed by well, calculation
// type and parameter set. It is purely an optimisation: a hit returns a copy
// identical to what a fresh computation would produce.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/seantiz/petroflow/internal/model"
)

// DefaultTTL is used when Put or GetOrCompute receive a non-positive TTL.
const DefaultTTL = 30 * time.Minute

// Key returns the deterministic cache key for (well, type, parameters).
func Key(well, calcType string, p model.CalculationParameters) string {
	h := sha256.New()
	h.Write([]byte(well))
	h.Write([]byte{0})
	h.Write([]byte(calcType))
	h.Write([]byte{0})
	h.Write([]byte(p.Hash()))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a TTL cache for calculation results. Expired entries are purged
// lazily on access or by Sweep; there are no background timers.
//
// Concurrent readers are allowed. Writers for the same key serialise on the
// map lock and the last writer wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
	now     func() time.Time
}

type entry struct {
	result    *model.CalculationResult
	expiresAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached result and true on a live hit. An expired
// entry is removed and reported as a miss.
func (c *Cache) Get(key string) (*model.CalculationResult, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		cacheMisses.Inc()
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check: another writer may have refreshed the entry.
		if cur, ok := c.entries[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
			cacheEntries.Set(float64(len(c.entries)))
		}
		c.mu.Unlock()
		cacheMisses.Inc()
		return nil, false
	}

	cacheHits.Inc()
	return e.result.Clone(), true
}

// Put stores a copy of result under key for ttl.
func (c *Cache) Put(key string, result *model.CalculationResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		result:    result.Clone(),
		expiresAt: c.now().Add(ttl),
	}
	cacheEntries.Set(float64(len(c.entries)))
}

// GetOrCompute returns the cached result for key or runs compute, storing
// its result. Concurrent callers for the same key share one computation.
// The boolean reports whether the value came from the cache.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, compute func() (*model.CalculationResult, error)) (*model.CalculationResult, bool, error) {
	if r, ok := c.Get(key); ok {
		return r, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent flight may have finished between Get and Do.
		if r, ok := c.peek(key); ok {
			return r, nil
		}
		r, err := compute()
		if err != nil {
			return nil, err
		}
		c.Put(key, r, ttl)
		return r, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*model.CalculationResult).Clone(), false, nil
}

// peek reads a live entry without touching the hit/miss counters.
func (c *Cache) peek(key string) (*model.CalculationResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.result.Clone(), true
}

// Evict removes key and reports whether it was present.
func (c *Cache) Evict(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	cacheEntries.Set(float64(len(c.entries)))
	return ok
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	cacheEntries.Set(float64(len(c.entries)))
	return removed
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	cacheEntries.Set(0)
}

// Len returns the number of stored entries, including expired ones not yet
// purged.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
