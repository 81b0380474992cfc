/*
cache.go - Catalog cache implementations

PURPOSE:
  The catalog is reference data read on every payment; deployments with
  multiple API instances share it through Redis so an edited method name
  propagates without a restart. Single-instance and test setups use the
  in-memory cache.

DESIGN:
  The whole catalog is serialized as one JSON value under a single key.
  A miss falls through to the closed default set; the cache is an
  acceleration layer, never the source of truth.
*/
package methods

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores the serialized catalog.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

const catalogCacheKey = "finance:payment-methods"

// =============================================================================
// REDIS CACHE
// =============================================================================

// RedisCache backs the catalog with Redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// =============================================================================
// MEMORY CACHE
// =============================================================================

// MemoryCache is a process-local cache for tests and cache-less setups.
// TTL is ignored; the catalog is tiny and closed.
type MemoryCache struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: make(map[string]string)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.values[key]
	return val, ok
}

func (m *MemoryCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// =============================================================================
// CACHED CATALOG
// =============================================================================

// CachedCatalog reads the catalog through a Cache, falling back to the
// closed default set on a miss or decode failure.
type CachedCatalog struct {
	catalog *Catalog
	cache   Cache
	ttl     time.Duration
}

func NewCachedCatalog(cache Cache, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{catalog: NewCatalog(), cache: cache, ttl: ttl}
}

// All returns the catalog, preferring the cached copy.
func (cc *CachedCatalog) All(ctx context.Context) []Method {
	if raw, ok := cc.cache.Get(ctx, catalogCacheKey); ok {
		var cached []Method
		if err := json.Unmarshal([]byte(raw), &cached); err == nil && len(cached) > 0 {
			return cached
		}
	}

	all := cc.catalog.All()
	if raw, err := json.Marshal(all); err == nil {
		_ = cc.cache.Set(ctx, catalogCacheKey, string(raw), cc.ttl)
	}
	return all
}

// ValidateForFlow delegates to the underlying closed catalog. Flow rules
// are code, not cached data.
func (cc *CachedCatalog) ValidateForFlow(code string, flow Flow) (Method, error) {
	return cc.catalog.ValidateForFlow(code, flow)
}
