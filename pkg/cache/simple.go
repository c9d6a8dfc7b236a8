package cache

import (
	"sync"
)

// simpleCache is a thread-safe cache with no eviction policy.
// It stores items indefinitely until explicitly deleted or cleared.
type simpleCache[V any] struct {
	mu      sync.RWMutex
	items   map[string]V
	stats   *Statistics
	metrics *cacheMetrics    // Optional, if metrics enabled
	evictFn EvictCallback[V] // Optional callback
}

func newSimpleCache[V any](opts *cacheOptions[V]) (*simpleCache[V], error) {
	metrics, err := newMetricsFromOptions(opts, "newSimpleCache")
	if err != nil {
		return nil, err
	}

	return &simpleCache[V]{
		items:   make(map[string]V),
		stats:   NewStatistics(),
		metrics: metrics,
		evictFn: opts.evictCallback,
	}, nil
}

// Get retrieves a value by key.
func (c *simpleCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, exists := c.items[key]
	c.mu.RUnlock()

	c.recordLookup(exists)
	return value, exists
}

// Set stores a value with the given key.
func (c *simpleCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = value
	size := len(c.items)
	c.mu.Unlock()

	c.recordSet(size)
	return !exists, nil
}

// SetIfAbsent stores value unless the key is already present.
func (c *simpleCache[V]) SetIfAbsent(key string, value V) (V, bool, error) {
	if err := validateKey(key); err != nil {
		var zero V
		return zero, false, err
	}
	c.mu.Lock()
	if existing, exists := c.items[key]; exists {
		c.mu.Unlock()
		c.recordLookup(true)
		return existing, false, nil
	}
	c.items[key] = value
	size := len(c.items)
	c.mu.Unlock()

	c.recordSet(size)
	return value, true, nil
}

// Delete removes an entry by key.
func (c *simpleCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	value, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if !exists {
		return false, nil
	}

	c.stats.Delete()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordDelete()
		c.metrics.updateSize(size)
	}
	if c.evictFn != nil {
		c.evictFn(key, value)
	}
	return true, nil
}

// Clear removes all entries from the cache.
func (c *simpleCache[V]) Clear() error {
	c.mu.Lock()
	items := c.items
	c.items = make(map[string]V)
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	if c.evictFn != nil {
		for key, value := range items {
			c.evictFn(key, value)
		}
	}
	return nil
}

// Size returns the current number of entries in the cache.
func (c *simpleCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns a slice of all keys currently in the cache.
func (c *simpleCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *simpleCache[V]) Stats() *Statistics {
	return c.stats
}

// Close is a no-op for the simple cache.
func (c *simpleCache[V]) Close() error {
	return nil
}

func (c *simpleCache[V]) recordLookup(hit bool) {
	if hit {
		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
		return
	}
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
}

func (c *simpleCache[V]) recordSet(size int) {
	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}
}
