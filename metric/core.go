package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains module-level metrics shared by every component
type Metrics struct {
	// InstancesActive counts engine instances currently holding linking state
	InstancesActive prometheus.Gauge

	// NetworksLoaded counts rule network topologies loaded by this process
	NetworksLoaded prometheus.Counter

	// ErrorsTotal counts errors by component and error class
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		InstancesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rulenet",
			Subsystem: "engine",
			Name:      "instances_active",
			Help:      "Number of engine instances holding segment memories",
		}),

		NetworksLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rulenet",
			Subsystem: "engine",
			Name:      "networks_loaded_total",
			Help:      "Total number of rule network topologies loaded",
		}),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rulenet",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Total number of errors by component and class",
			},
			[]string{"component", "class"},
		),
	}
}

// RecordError increments the error counter for a component
func (m *Metrics) RecordError(component, class string) {
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}
