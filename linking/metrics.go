package linking

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/rulenet/metric"
)

// Metrics holds the Prometheus metrics shared by every Instance built with them.
type Metrics struct {
	segmentsTotal          *prometheus.CounterVec
	prototypeLookups       *prometheus.CounterVec
	prototypeRegistrations *prometheus.CounterVec
	pathTransitions        *prometheus.CounterVec
	errorsTotal            *prometheus.CounterVec
	core                   *metric.Metrics
}

// NewMetrics creates and registers the linking metrics.
// A nil registry returns nil metrics, which every Instance accepts.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		segmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulenet",
			Subsystem: "linking",
			Name:      "segments_total",
			Help:      "Segments materialised, by origin",
		}, []string{"origin"}),

		prototypeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulenet",
			Subsystem: "linking",
			Name:      "prototype_lookups_total",
			Help:      "Segment prototype lookups, by result",
		}, []string{"result"}),

		prototypeRegistrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulenet",
			Subsystem: "linking",
			Name:      "prototype_registrations_total",
			Help:      "Segment prototype registrations, by outcome",
		}, []string{"outcome"}),

		pathTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulenet",
			Subsystem: "linking",
			Name:      "path_transitions_total",
			Help:      "Path link state transitions",
		}, []string{"transition", "kind"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulenet",
			Subsystem: "linking",
			Name:      "errors_total",
			Help:      "Linking operation failures, by error class",
		}, []string{"class"}),

		core: registry.CoreMetrics(),
	}

	vecs := []struct {
		name string
		vec  *prometheus.CounterVec
	}{
		{"segments_total", m.segmentsTotal},
		{"prototype_lookups_total", m.prototypeLookups},
		{"prototype_registrations_total", m.prototypeRegistrations},
		{"path_transitions_total", m.pathTransitions},
		{"errors_total", m.errorsTotal},
	}
	for _, v := range vecs {
		if err := registry.RegisterCounterVec("linking", v.name, v.vec); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) segment(origin string) {
	if m != nil {
		m.segmentsTotal.WithLabelValues(origin).Inc()
	}
}

func (m *Metrics) lookup(result string) {
	if m != nil {
		m.prototypeLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) registration(outcome string) {
	if m != nil {
		m.prototypeRegistrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) transition(linked, subnetwork bool) {
	if m == nil {
		return
	}
	transition, kind := "unlinked", "rule"
	if linked {
		transition = "linked"
	}
	if subnetwork {
		kind = "subnetwork"
	}
	m.pathTransitions.WithLabelValues(transition, kind).Inc()
}

func (m *Metrics) failure(class string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(class).Inc()
	m.core.RecordError("linking", class)
}

func (m *Metrics) instanceOpened() {
	if m != nil {
		m.core.InstancesActive.Inc()
	}
}

func (m *Metrics) instanceClosed() {
	if m != nil {
		m.core.InstancesActive.Dec()
	}
}
