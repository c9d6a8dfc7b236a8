// Package rulenet is the segment and path memory core of a production-rule
// network.
//
// A compiled rule network is a graph of alpha, beta and end nodes. For each
// engine instance rulenet partitions that graph into segments, binds every
// segment to the paths that run through it, and tracks which nodes hold
// matchable data so a rule is only evaluated once every segment on its path
// is linked.
//
// # Packages
//
//   - network: immutable topology, node classification and YAML loading
//   - linking: per-instance segment and path memories, link state, prototypes
//   - linking/kvstore: prototypes shared through a NATS JetStream bucket
//   - agenda: listeners for path link transitions, including a NATS publisher
//   - natsclient: NATS connection with a circuit breaker and KV bucket helpers
//   - config: layered JSON and environment configuration
//   - metric: Prometheus registry and HTTP endpoint
//   - errors: error classes shared by every package
//   - pkg/cache, pkg/retry: generic cache and backoff helpers
//
// The rulenet command in cmd/rulenet loads a topology, materialises one or
// more instances and prints their layout.
package rulenet
