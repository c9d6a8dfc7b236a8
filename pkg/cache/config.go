package cache

import (
	"fmt"

	"github.com/c360/rulenet/errors"
)

// Strategy defines the eviction strategy for the cache.
type Strategy string

const (
	// StrategySimple uses no eviction policy.
	StrategySimple Strategy = "simple"

	// StrategyLRU uses Least Recently Used eviction based on size.
	StrategyLRU Strategy = "lru"
)

// Config contains configuration for cache creation.
type Config struct {
	// Enabled determines if caching is enabled.
	Enabled bool `json:"enabled"`

	// Strategy determines the eviction strategy.
	Strategy Strategy `json:"strategy"`

	// MaxSize is the maximum number of entries (LRU only).
	MaxSize int `json:"max_size"`
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Strategy: StrategyLRU,
		MaxSize:  1000,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Strategy {
	case StrategySimple:
	case StrategyLRU:
		if c.MaxSize <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Validate",
				fmt.Sprintf("max_size must be positive for LRU cache, got %d", c.MaxSize))
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Validate",
			fmt.Sprintf("unknown cache strategy: %s", c.Strategy))
	}
	return nil
}

// NewFromConfig creates a cache based on the provided configuration.
// Returns a disabled cache (NoopCache) if config.Enabled is false.
func NewFromConfig[V any](config Config, options ...Option[V]) (Cache[V], error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "cache", "NewFromConfig", "config validation")
	}

	if !config.Enabled {
		return NewNoop[V](), nil
	}

	switch config.Strategy {
	case StrategySimple:
		return NewSimple[V](options...)
	case StrategyLRU:
		return NewLRU[V](config.MaxSize, options...)
	default:
		msg := fmt.Sprintf("unsupported cache strategy: %s", config.Strategy)
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "cache", "NewFromConfig", msg)
	}
}

// NewLRU creates a new LRU cache with the specified maximum size.
// Stats are always enabled. Use WithMetrics() to also export them to Prometheus.
func NewLRU[V any](maxSize int, options ...Option[V]) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "cache", "NewLRU",
			fmt.Sprintf("max size %d", maxSize))
	}
	opts := applyOptions(options...)
	return newLRUCache[V](maxSize, opts)
}

// NewSimple creates a new Simple cache with no eviction policy.
// Stats are always enabled. Use WithMetrics() to also export them to Prometheus.
func NewSimple[V any](options ...Option[V]) (Cache[V], error) {
	opts := applyOptions(options...)
	return newSimpleCache[V](opts)
}

// NewNoop creates a cache that does nothing (always returns cache misses).
// This is useful when caching is disabled via configuration.
func NewNoop[V any]() Cache[V] {
	return &noopCache[V]{}
}

// noopCache is a cache implementation that does nothing.
type noopCache[V any] struct{}

func (c *noopCache[V]) Get(_ string) (V, bool) {
	var zero V
	return zero, false
}

func (c *noopCache[V]) Set(_ string, _ V) (bool, error) {
	return false, nil
}

// SetIfAbsent reports the value as stored without keeping it.
func (c *noopCache[V]) SetIfAbsent(_ string, value V) (V, bool, error) {
	return value, true, nil
}

func (c *noopCache[V]) Delete(_ string) (bool, error) {
	return false, nil
}

func (c *noopCache[V]) Clear() error {
	return nil
}

func (c *noopCache[V]) Size() int {
	return 0
}

func (c *noopCache[V]) Keys() []string {
	return nil
}

func (c *noopCache[V]) Stats() *Statistics {
	return nil
}

func (c *noopCache[V]) Close() error {
	return nil
}
