// Package simcache holds the run-scoped simulation cache.
//
// Every fingerprint maps to one Entry. The first caller to Acquire a key owns
// the entry and must Resolve or Release it; every later caller waits on the
// same entry, so identical simulations never run twice in one run. A failed
// result is stored like a success and returned to every later lookup.
package simcache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/simbot/internal/domain/fingerprint"
	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/pkg/logger"
	"github.com/okian/simbot/pkg/metrics"
)

// Entry is the shared slot for one fingerprint.
type Entry struct {
	done     chan struct{}
	result   model.SimulationResult
	resolved bool
	released bool
}

// Wait blocks until the entry is resolved or released, or ctx ends.
func (e *Entry) Wait(ctx context.Context) (model.SimulationResult, error) {
	select {
	case <-e.done:
	case <-ctx.Done():
		return model.SimulationResult{}, ctx.Err()
	}
	if e.released {
		return model.SimulationResult{}, ErrReleased
	}
	return e.result, nil
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Poisoned int64 `json:"poisoned"`
	Size     int   `json:"size"`
}

// Cache maps fingerprints to entries. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[fingerprint.Key]*Entry
	log     logger.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	poisoned atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[fingerprint.Key]*Entry),
		log:     logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire returns the entry for key, creating it if absent. owner is true
// when this call created the entry; the caller must then Resolve or Release it.
func (c *Cache) Acquire(ctx context.Context, key fingerprint.Key) (entry *Entry, owner bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		if e.resolved && !e.result.OK() {
			c.poisoned.Add(1)
			metrics.RecordCacheLookup("poisoned")
			c.log.Debug(ctx, "cached failure reused", logger.String("key", string(key)))
		} else {
			c.hits.Add(1)
			metrics.RecordCacheLookup("hit")
		}
		return e, false
	}

	e := &Entry{done: make(chan struct{})}
	c.entries[key] = e
	c.misses.Add(1)
	metrics.RecordCacheLookup("miss")
	metrics.UpdateCacheSize(len(c.entries))
	return e, true
}

// Resolve stores the result for key and wakes every waiter.
// Resolving an unknown or already finished key is a no-op.
func (c *Cache) Resolve(key fingerprint.Key, result model.SimulationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.resolved || e.released {
		return
	}
	e.result = result
	e.resolved = true
	close(e.done)
}

// Release drops an unresolved reservation, e.g. a unit that was never queued.
// Waiters get ErrReleased and the next Acquire creates a fresh entry.
func (c *Cache) Release(key fingerprint.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.resolved {
		return
	}
	delete(c.entries, key)
	e.released = true
	close(e.done)
	metrics.UpdateCacheSize(len(c.entries))
}

// Lookup returns the resolved result for key. Unresolved or missing keys report false.
func (c *Cache) Lookup(key fingerprint.Key) (model.SimulationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.resolved {
		return model.SimulationResult{}, false
	}
	return e.result, true
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Poisoned: c.poisoned.Load(),
		Size:     size,
	}
}
