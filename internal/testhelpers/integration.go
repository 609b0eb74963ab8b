//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shree2160/sahayakAIv1/internal/cache"
	"github.com/shree2160/sahayakAIv1/internal/knowledge"
	"github.com/shree2160/sahayakAIv1/internal/observability"
	"github.com/shree2160/sahayakAIv1/internal/places"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	OverpassMirror string
	DatabaseURL    string
	CacheBackend   string // "in_memory" or "memcached"
	MemcachedAddr  string
}

// GetIntegrationConfig loads integration test configuration from environment.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	mirror := os.Getenv("OVERPASS_MIRROR")
	if mirror == "" {
		mirror = "https://overpass-api.de/api/interpreter"
	}

	cacheBackend := os.Getenv("INTEGRATION_CACHE_BACKEND")
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		OverpassMirror: mirror,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		CacheBackend:   cacheBackend,
		MemcachedAddr:  memcachedAddr,
	}
}

// SetupIntegrationFinder creates an Overpass client against the configured mirror.
func SetupIntegrationFinder(t *testing.T, cfg IntegrationTestConfig) places.Finder {
	finder, err := places.NewOverpassClient([]string{cfg.OverpassMirror}, 15*time.Second)
	if err != nil {
		t.Fatalf("NewOverpassClient() error = %v", err)
	}
	return finder
}

// SetupIntegrationStore creates a Postgres-backed knowledge store.
// Skips the test if DATABASE_URL is not set.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) *knowledge.PostgresStore {
	if cfg.DatabaseURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	store, err := knowledge.NewPostgresStore(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	return store
}

// SetupIntegrationCache creates the configured cache backend, falling back to
// in-memory when memcached is unavailable. Returns the cache and a cleanup function.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig) (cache.Cache, func()) {
	if cfg.CacheBackend == "memcached" {
		memcachedCache, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2, 10*time.Minute)
		if err == nil {
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return memcachedCache, func() { memcachedCache.Close() }
		}
		t.Logf("Memcached not available (%v), using in-memory cache", err)
	}
	return cache.NewInMemoryCache(), func() {}
}
