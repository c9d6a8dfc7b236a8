package cache

import (
	"container/list"
	"sync"
)

// lruEntry represents an entry in the LRU cache.
type lruEntry[V any] struct {
	key   string
	value V
}

// lruCache is a thread-safe LRU (Least Recently Used) cache implementation.
// It evicts the least recently used items when the maximum size is exceeded.
type lruCache[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element // key -> list element
	order   *list.List               // front is most recently used
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
}

func newLRUCache[V any](maxSize int, opts *cacheOptions[V]) (*lruCache[V], error) {
	metrics, err := newMetricsFromOptions(opts, "newLRUCache")
	if err != nil {
		return nil, err
	}

	return &lruCache[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   NewStatistics(),
		metrics: metrics,
		evictFn: opts.evictCallback,
	}, nil
}

// Get retrieves a value by key and marks it as recently used.
func (c *lruCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		var zero V
		return zero, false
	}
	c.order.MoveToFront(element)
	value := element.Value.(*lruEntry[V]).value
	c.mu.Unlock()

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return value, true
}

// Set stores a value with the given key and marks it as recently used.
func (c *lruCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	if element, exists := c.items[key]; exists {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		c.mu.Unlock()

		c.stats.Set()
		if c.metrics != nil {
			c.metrics.recordSet()
		}
		return false, nil
	}
	evicted := c.insertLocked(key, value)
	size := len(c.items)
	c.mu.Unlock()

	c.afterInsert(size, evicted)
	return true, nil
}

// SetIfAbsent stores value unless the key is already present.
func (c *lruCache[V]) SetIfAbsent(key string, value V) (V, bool, error) {
	if err := validateKey(key); err != nil {
		var zero V
		return zero, false, err
	}

	c.mu.Lock()
	if element, exists := c.items[key]; exists {
		c.order.MoveToFront(element)
		existing := element.Value.(*lruEntry[V]).value
		c.mu.Unlock()

		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
		return existing, false, nil
	}
	evicted := c.insertLocked(key, value)
	size := len(c.items)
	c.mu.Unlock()

	c.afterInsert(size, evicted)
	return value, true, nil
}

// insertLocked adds a new entry and returns the entry evicted to make room, if any.
// Must be called with mutex held.
func (c *lruCache[V]) insertLocked(key string, value V) *lruEntry[V] {
	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})
	if len(c.items) <= c.maxSize {
		return nil
	}
	back := c.order.Back()
	entry := back.Value.(*lruEntry[V])
	c.removeElementLocked(back)
	return entry
}

// afterInsert records statistics and runs the eviction callback outside the lock.
func (c *lruCache[V]) afterInsert(size int, evicted *lruEntry[V]) {
	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}
	if evicted == nil {
		return
	}
	c.stats.Eviction()
	if c.metrics != nil {
		c.metrics.recordEviction()
	}
	if c.evictFn != nil {
		c.evictFn(evicted.key, evicted.value)
	}
}

// Delete removes an entry by key.
func (c *lruCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return false, nil
	}
	entry := element.Value.(*lruEntry[V])
	c.removeElementLocked(element)
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Delete()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordDelete()
		c.metrics.updateSize(size)
	}
	if c.evictFn != nil {
		c.evictFn(entry.key, entry.value)
	}
	return true, nil
}

// Clear removes all entries from the cache.
func (c *lruCache[V]) Clear() error {
	var evictItems []*lruEntry[V]

	c.mu.Lock()
	if c.evictFn != nil {
		evictItems = make([]*lruEntry[V], 0, len(c.items))
		for element := c.order.Back(); element != nil; element = element.Prev() {
			evictItems = append(evictItems, element.Value.(*lruEntry[V]))
		}
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	for _, entry := range evictItems {
		c.evictFn(entry.key, entry.value)
	}
	return nil
}

// Size returns the current number of entries in the cache.
func (c *lruCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns all keys, most recently used first.
func (c *lruCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*lruEntry[V]).key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *lruCache[V]) Stats() *Statistics {
	return c.stats
}

// Close is a no-op for the LRU cache.
func (c *lruCache[V]) Close() error {
	return nil
}

// removeElementLocked removes an element from both the list and map.
// Must be called with mutex held.
func (c *lruCache[V]) removeElementLocked(element *list.Element) {
	entry := element.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
}
