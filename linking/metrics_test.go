package linking

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulenet/metric"
	"github.com/c360/rulenet/network"
)

func TestNewMetrics_NilRegistry(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// nil metrics are accepted everywhere
	in := NewInstance(loadClaims(t), WithMetrics(m), WithLogger(discardLogger()))
	require.NoError(t, in.MaterializeAll())
	in.Close()
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	_, err := NewMetrics(registry)
	require.NoError(t, err)
	_, err = NewMetrics(registry)
	assert.Error(t, err)
}

func TestMetrics_Instance(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)
	core := registry.CoreMetrics()

	b := network.NewBuilder("metered")
	root := b.Root()
	a := b.Add(network.NodeJoin, root)
	b.Terminal(a, "r1")
	net := build(t, b)

	in := NewInstance(net, WithMetrics(m), WithLogger(discardLogger()))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.InstancesActive))

	linkAll(t, in, root, a)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.segmentsTotal.WithLabelValues("built")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pathTransitions.WithLabelValues("linked", "rule")))

	require.NoError(t, in.UnlinkNode(a))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pathTransitions.WithLabelValues("unlinked", "rule")))

	_, err = in.GetQuerySegment("missing")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("fatal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.ErrorsTotal.WithLabelValues("linking", "fatal")))

	in.Close()
	in.Close()
	assert.Equal(t, 0.0, testutil.ToFloat64(core.InstancesActive))
}

func TestMetrics_Exposition(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)

	b := network.NewBuilder("exposed")
	root := b.Root()
	a := b.Add(network.NodeJoin, root)
	b.Terminal(a, "r1")
	in := NewInstance(build(t, b), WithMetrics(m), WithLogger(discardLogger()))
	defer in.Close()
	linkAll(t, in, root, a)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	mf, ok := byName["rulenet_linking_path_transitions_total"]
	require.True(t, ok)
	assert.Equal(t, dto.MetricType_COUNTER, mf.GetType())
	require.Len(t, mf.GetMetric(), 1)

	labels := make(map[string]string)
	for _, lp := range mf.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	assert.Equal(t, map[string]string{"transition": "linked", "kind": "rule"}, labels)
	assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())

	_, ok = byName["rulenet_linking_segments_total"]
	assert.True(t, ok)
}
