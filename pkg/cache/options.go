package cache

import (
	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/metric"
)

// Option configures cache behavior using the functional options pattern.
type Option[V any] func(*cacheOptions[V])

// cacheOptions holds internal configuration for cache instances.
// Stats are always collected; metrics are optional.
type cacheOptions[V any] struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	evictCallback EvictCallback[V]
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// A nil registry or empty prefix leaves metrics disabled.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback function that is called when items are evicted.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}

// newMetricsFromOptions registers cache metrics when requested.
func newMetricsFromOptions[V any](opts *cacheOptions[V], op string) (*cacheMetrics, error) {
	if opts.metricsReg == nil || opts.metricsPrefix == "" {
		return nil, nil
	}
	metrics, err := newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
	if err != nil {
		return nil, errors.WrapInvalid(err, "cache", op, "metrics registration")
	}
	return metrics, nil
}
