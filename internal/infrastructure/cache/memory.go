package cache

import (
	"context"
	"sync"
	"time"

	"github.com/medicompare/backend/internal/domain"
)

const cleanupInterval = 10 * time.Minute

// EvictionFunc is called with every entry dropped because its TTL ran out
type EvictionFunc func(key string, value interface{})

// cacheItem represents a single item in the cache with expiration
type cacheItem struct {
	Value      interface{}
	Expiration time.Time
}

// MemoryCache is a thread-safe in-memory cache with TTL support.
// Values are stored as-is; callers must not mutate what they put in.
type MemoryCache struct {
	data  map[string]cacheItem
	mutex sync.RWMutex
	stop  chan struct{}
	once  sync.Once

	onEvict EvictionFunc
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	cache := &MemoryCache{
		data: make(map[string]cacheItem),
		stop: make(chan struct{}),
	}

	// Remove expired entries periodically until Close
	go cache.cleanupExpired(cleanupInterval)

	return cache
}

// OnEvicted registers fn for expired entries. Explicit Delete and Clear do not call it.
func (c *MemoryCache) OnEvicted(fn EvictionFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onEvict = fn
}

// Get retrieves a value from the cache. An expired entry is evicted on the spot.
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mutex.RLock()
	item, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, domain.ErrCacheMiss
	}

	if time.Now().After(item.Expiration) {
		c.evict(key)
		return nil, domain.ErrCacheMiss
	}

	return item.Value, nil
}

// Set stores a value in the cache with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = cacheItem{
		Value:      value,
		Expiration: time.Now().Add(ttl),
	}

	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Exists checks if a key exists in the cache and is not expired
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists {
		return false, nil
	}

	return !time.Now().After(item.Expiration), nil
}

// Size returns the current number of items in the cache, expired ones included
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]cacheItem)
}

// Close stops the cleanup goroutine
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mutex.Lock()
	now := time.Now()
	evicted := make(map[string]interface{})
	for key, item := range c.data {
		if now.After(item.Expiration) {
			evicted[key] = item.Value
			delete(c.data, key)
		}
	}
	fn := c.onEvict
	c.mutex.Unlock()

	if fn == nil {
		return
	}
	for key, value := range evicted {
		fn(key, value)
	}
}

// evict drops key if it is still expired; a concurrent Set may have refreshed it
func (c *MemoryCache) evict(key string) {
	c.mutex.Lock()
	item, exists := c.data[key]
	if !exists || !time.Now().After(item.Expiration) {
		c.mutex.Unlock()
		return
	}
	delete(c.data, key)
	fn := c.onEvict
	c.mutex.Unlock()

	if fn != nil {
		fn(key, item.Value)
	}
}
