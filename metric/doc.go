// Package metric provides the Prometheus metrics registry and HTTP endpoint
// shared by rulenet components.
//
// A MetricsRegistry wraps a private Prometheus registry, registers the
// module-level Metrics (active engine instances, loaded networks, errors by
// class) and lets components register their own collectors under a
// "service.metric" key so that duplicate registrations are reported as
// invalid-class errors instead of panics.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	inst := linking.NewInstance(net, linking.WithMetrics(registry))
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop()
package metric
