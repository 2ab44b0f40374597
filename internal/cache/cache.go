// Package cache provides a thread-safe in-memory TTL cache for fetched
// payloads. Entries past their TTL are not evicted: they remain queryable
// as stale data and serve as the fallback of last resort when every live
// path to the telemetry API has failed.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached payload together with the time it was stored.
type Entry struct {
	Payload  any
	StoredAt time.Time
}

// Stats tracks cache effectiveness counters.
type Stats struct {
	Hits      int64
	Misses    int64
	StaleHits int64
	Writes    int64
}

// Cache is a string-keyed in-memory cache with a single TTL for all
// entries. Writes overwrite; entries live for the process lifetime.
// Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	stats   Stats

	// now is swappable for tests.
	now func() time.Time
}

// New creates a cache whose entries are considered fresh for ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the payload for key if a fresh entry exists.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.StoredAt) > c.ttl {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return entry.Payload, true
}

// GetAny returns the entry for key regardless of freshness, along with
// whether it is expired. Used for the stale-data fallback.
func (c *Cache) GetAny(key string) (Entry, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return Entry{}, false, false
	}
	expired := c.now().Sub(entry.StoredAt) > c.ttl
	if expired {
		c.stats.StaleHits++
	} else {
		c.stats.Hits++
	}
	return entry, true, expired
}

// Set stores payload under key, overwriting any previous entry.
func (c *Cache) Set(key string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry{Payload: payload, StoredAt: c.now()}
	c.stats.Writes++
}

// Delete removes the entry for key, if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// Len returns the number of entries, fresh and stale alike.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// TTL returns the freshness window entries are held to.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
