// Package cache provides in-memory caches used across the platform: an
// unbounded TTL cache for small, rarely-evicted datasets (the teacher's
// original shape) and a bounded LRU+TTL cache for datasets that need an
// eviction ceiling (service-token validation, detector evidence).
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is a cached value with its expiration and an invalidation version.
type Entry struct {
	Value      interface{}
	Expiration time.Time
	Version    int64
}

// Config tunes a Cache's TTL and cleanup cadence.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{DefaultTTL: 5 * time.Minute, CleanupInterval: 10 * time.Minute}
}

// Cache is an unbounded map-backed TTL cache with background cleanup and a
// version counter for bulk invalidation on rotation events (e.g. a vault key
// rotation invalidating every cached credential).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	config  Config
	version int64
}

// NewCache creates a Cache and starts its background cleanup goroutine.
func NewCache(cfg Config) *Cache {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	c := &Cache{entries: make(map[string]*Entry), config: cfg}
	go c.cleanupLoop()
	return c
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.cleanup()
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.Expiration) {
			delete(c.entries, key)
		}
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.Expiration) {
		return nil, false
	}
	return entry.Value, true
}

// Set stores value under key with ttl (or the cache's default if ttl is 0).
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &Entry{Value: value, Expiration: time.Now().Add(ttl), Version: c.version}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidatePrefix removes every key with the given prefix, used to drop a
// connection's cached credential on rotation without a global flush.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll clears the cache and bumps its version.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	c.entries = make(map[string]*Entry)
}

// Size returns the current entry count.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// BoundedTTLCache pairs an LRU eviction bound with a per-entry TTL, for
// datasets (service-token validation results, AI-provider evidence by
// descriptor hash) that must not grow unbounded even under a cache-key
// explosion.
type BoundedTTLCache[K comparable, V any] struct {
	mu    sync.Mutex
	lru   *lru.Cache[K, boundedEntry[V]]
	ttl   time.Duration
}

type boundedEntry[V any] struct {
	value      V
	expiration time.Time
}

// NewBoundedTTLCache creates a cache holding at most size entries, each
// valid for ttl.
func NewBoundedTTLCache[K comparable, V any](size int, ttl time.Duration) (*BoundedTTLCache[K, V], error) {
	l, err := lru.New[K, boundedEntry[V]](size)
	if err != nil {
		return nil, err
	}
	return &BoundedTTLCache[K, V]{lru: l, ttl: ttl}, nil
}

// Get returns the cached value for key if present and unexpired.
func (c *BoundedTTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	entry, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if time.Now().After(entry.expiration) {
		c.lru.Remove(key)
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *BoundedTTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, boundedEntry[V]{value: value, expiration: time.Now().Add(c.ttl)})
}

// Remove evicts key.
func (c *BoundedTTLCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Purge evicts every entry, used when the data a cache key is derived from
// is rotated (e.g. a service-auth public key).
func (c *BoundedTTLCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len reports the current entry count.
func (c *BoundedTTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
