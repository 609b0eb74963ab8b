package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "sahayak:"

// MemcachedCache implements Cache using memcached. Entries are stored in an
// envelope carrying their storage and expiration timestamps so expired data
// can still be served via GetStale; the memcached-level expiration is the TTL
// plus the configured stale window.
type MemcachedCache struct {
	client      *memcache.Client
	staleWindow time.Duration
}

// envelope wraps a cached value with the timestamps GetStale needs.
type envelope struct {
	Value     []byte    `json:"value"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero. staleWindow is how
// long past expiry entries remain retrievable via GetStale.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, staleWindow time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, staleWindow: staleWindow}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, err
	}
	var env envelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return nil, false, err
	}
	if time.Now().After(env.ExpiresAt) {
		return nil, false, nil
	}
	return env.Value, true, nil
}

// GetStale implements Cache.GetStale. Serves entries past their logical expiry
// while they were stored within maxStaleAge.
func (c *MemcachedCache) GetStale(ctx context.Context, key string, maxStaleAge time.Duration) ([]byte, time.Duration, bool, error) {
	if ctx.Err() != nil {
		return nil, 0, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}
	var env envelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return nil, 0, false, err
	}
	age := time.Since(env.StoredAt)
	if age > maxStaleAge {
		return nil, 0, false, nil
	}
	return env.Value, age, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	now := time.Now()
	raw, err := json.Marshal(envelope{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return err
	}
	expSec := int32((ttl + c.staleWindow).Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600 // fallback 1h if invalid
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
