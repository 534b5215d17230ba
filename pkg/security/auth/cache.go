package auth

import (
	"sync"
	"time"
)

// Cache is a thread-safe TTL cache with LRU eviction, used for resolved
// principals and fetched realm public keys. Expired entries are not
// reaped in the background: they stay in the map until LRU eviction or
// an explicit Delete, so GetStale can return them as a fallback when a
// refresh fails.
type Cache[V any] struct {
	// entries maps cache keys to values with expiry bookkeeping.
	entries map[string]*cacheEntry[V]

	// ttl is the time-to-live for entries (0 = never expire).
	ttl time.Duration

	// maxEntries caps the map size (0 = unlimited).
	maxEntries int

	mu sync.RWMutex
}

type cacheEntry[V any] struct {
	value          V
	expiresAt      time.Time
	lastAccessedAt time.Time
}

// NewCache creates a cache with the given TTL and entry cap.
// A zero ttl disables expiry; a zero maxEntries disables eviction.
func NewCache[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	return &Cache[V]{
		entries:    make(map[string]*cacheEntry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get retrieves a fresh value. Returns the zero value and false when the
// key is absent or the entry has expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		return zero, false
	}
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.mu.RUnlock()
		return zero, false
	}
	value := entry.value
	c.mu.RUnlock()

	c.mu.Lock()
	// Re-check under the write lock; the entry may have been deleted.
	if entry, ok := c.entries[key]; ok {
		entry.lastAccessedAt = time.Now()
	}
	c.mu.Unlock()

	return value, true
}

// GetStale retrieves a value ignoring expiry. Used as a fallback when a
// refresh of the authoritative source fails.
func (c *Cache[V]) GetStale(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores a value with the configured TTL, evicting the least
// recently accessed entry when the cache is full.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	now := time.Now()
	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = now.Add(c.ttl)
	}

	c.entries[key] = &cacheEntry[V]{
		value:          value,
		expiresAt:      expiresAt,
		lastAccessedAt: now,
	}
}

// Delete removes an entry.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Size returns the current number of entries, expired ones included.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry[V])
}

// evictLRU removes the least recently accessed entry.
// Must be called with the write lock held.
func (c *Cache[V]) evictLRU() {
	if len(c.entries) == 0 {
		return
	}

	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
