// Package cache provides generic, thread-safe cache implementations.
//
// This package offers:
//   - SimpleCache: No eviction policy (stores items indefinitely)
//   - LRUCache: Least Recently Used eviction based on size
//   - NoopCache: Always misses, used when caching is disabled
//
// All implementations are thread-safe with built-in statistics and optional
// Prometheus metrics via functional options. SetIfAbsent gives first-writer-wins
// registration, which the segment prototype store relies on: a losing writer
// gets the stored value back and discards its own.
package cache

import (
	"github.com/c360/rulenet/errors"
)

// Cache represents a generic cache interface that all cache implementations must satisfy.
// The cache is parameterized by value type V for type safety.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found, zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry was created, false if updated.
	Set(key string, value V) (bool, error)

	// SetIfAbsent stores value only when key is not present. It returns the value held
	// by the cache after the call and true when value was stored.
	SetIfAbsent(key string, value V) (V, bool, error)

	// Delete removes an entry by key. Returns true if the key existed and was deleted.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries in the cache.
	Size() int

	// Keys returns a slice of all keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics, nil for the noop cache.
	Stats() *Statistics

	// Close releases any resources held by the cache.
	Close() error
}

// EvictCallback is called when an entry is evicted or deleted from the cache.
type EvictCallback[V any] func(key string, value V)

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
