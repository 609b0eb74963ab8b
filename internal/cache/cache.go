package cache

import (
	"context"
	"sync"
	"time"
)

// Cache defines the interface for response caching implementations. Values are
// opaque byte blobs so the same backend serves both encoded place results and
// synthesized audio. Get returns cached data if present and not expired,
// GetStale returns expired data still within maxStaleAge of when it was stored,
// Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	GetStale(ctx context.Context, key string, maxStaleAge time.Duration) ([]byte, time.Duration, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// InMemoryCache implements Cache using an in-memory map with TTL-based
// expiration. Expired entries stay resident until they outlive the stale
// window requested by GetStale, then are removed on access.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
}

// cacheEntry stores a cached value with its storage and expiration timestamps.
type cacheEntry struct {
	value     []byte
	storedAt  time.Time
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves the cached value for the key if present and not expired.
// Returns (data, true, nil) on cache hit, (nil, false, nil) on miss or
// expiration. Expired entries are kept for stale retrieval.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}

	return entry.value, true, nil
}

// GetStale retrieves the cached value for the key even if expired, as long as
// it was stored within maxStaleAge. Returns the value and its age on hit.
// Entries older than maxStaleAge are removed.
func (c *InMemoryCache) GetStale(ctx context.Context, key string, maxStaleAge time.Duration) ([]byte, time.Duration, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, 0, false, nil
	}

	age := time.Since(entry.storedAt)
	if age > maxStaleAge {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return nil, 0, false, nil
	}

	return entry.value, age, true, nil
}

// Set stores a value in cache with the specified TTL duration.
// Entry expires after TTL elapses but remains retrievable via GetStale.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	c.mu.Lock()
	c.data[key] = cacheEntry{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	c.mu.Unlock()
	return nil
}
