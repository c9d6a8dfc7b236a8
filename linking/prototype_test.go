package linking

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/metric"
	"github.com/c360/rulenet/network"
	"github.com/c360/rulenet/pkg/cache"
)

func newCacheStore(t *testing.T) *CacheStore {
	t.Helper()
	c, err := cache.NewSimple[*Prototype]()
	require.NoError(t, err)
	return NewCacheStore(c)
}

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(metric.NewMetricsRegistry())
	require.NoError(t, err)
	return m
}

type failingStore struct{}

func (failingStore) Lookup(string) (*Prototype, bool, error) {
	return nil, false, errors.WrapTransient(errors.ErrStorageUnavailable, "failingStore", "Lookup", "get")
}

func (failingStore) Register(string, *Prototype) (*Prototype, bool, error) {
	return nil, false, errors.WrapTransient(errors.ErrStorageUnavailable, "failingStore", "Register", "put")
}

func TestPrototype_RestoredLayoutMatches(t *testing.T) {
	nets := map[string]*network.Network{
		"claims": loadClaims(t),
		"subnet": newSubnet(t, network.NodeNot).net,
	}
	for name, net := range nets {
		t.Run(name, func(t *testing.T) {
			store := newCacheStore(t)
			m := newTestMetrics(t)

			first := newTestInstance(t, net, WithPrototypeStore(store), WithMetrics(m))
			require.NoError(t, first.MaterializeAll())
			built := testutil.ToFloat64(m.segmentsTotal.WithLabelValues("built"))
			assert.Positive(t, built)
			assert.Equal(t, built, testutil.ToFloat64(m.prototypeRegistrations.WithLabelValues("stored")))
			assert.Equal(t, built, testutil.ToFloat64(m.prototypeLookups.WithLabelValues("miss")))

			second := newTestInstance(t, net, WithPrototypeStore(store), WithMetrics(m))
			require.NoError(t, second.MaterializeAll())
			assert.Equal(t, built, testutil.ToFloat64(m.segmentsTotal.WithLabelValues("prototype")))
			assert.Equal(t, built, testutil.ToFloat64(m.prototypeLookups.WithLabelValues("hit")))
			assert.Equal(t, built, testutil.ToFloat64(m.segmentsTotal.WithLabelValues("built")), "nothing rebuilt")

			for _, s := range second.Segments() {
				assert.True(t, s.Restored || s.Root == s.EndNode, "segment %d restored", s.ID)
			}

			segsFirst, pathsFirst := layoutOf(t, first)
			segsSecond, pathsSecond := layoutOf(t, second)
			assert.Equal(t, segsFirst, segsSecond)
			assert.Equal(t, pathsFirst, pathsSecond)
		})
	}
}

func TestPrototype_RestoredSubnetworkLinks(t *testing.T) {
	sn := newSubnet(t, network.NodeNot)
	store := newCacheStore(t)

	first := newTestInstance(t, sn.net, WithPrototypeStore(store))
	require.NoError(t, first.MaterializeAll())

	rec := &recorder{}
	second := newTestInstance(t, sn.net, WithPrototypeStore(store), WithListener(rec))
	_, err := second.GetOrCreateSegment(sn.root)
	require.NoError(t, err)

	mem, ok := second.Memory(sn.n)
	require.True(t, ok)
	assert.True(t, mem.Linked, "restored not-node starts linked")
	assert.NotEqual(t, NoPath, mem.RiaPath)

	linkAll(t, second, sn.root, sn.a)
	linkAll(t, second, sn.s)
	events := rec.Events()
	require.Len(t, events, 3)
	assert.True(t, events[0].Linked)
	assert.True(t, events[1].Subnetwork)
	assert.False(t, events[2].Linked, "linked sub-network unlinks the gated not-node")
}

func TestPrototype_ConcurrentInstances(t *testing.T) {
	net := loadClaims(t)
	reference := newTestInstance(t, net)
	require.NoError(t, reference.MaterializeAll())
	wantSegs, wantPaths := layoutOf(t, reference)

	store := newCacheStore(t)
	const workers = 8
	instances := make([]*Instance, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		in := newTestInstance(t, net, WithPrototypeStore(store))
		instances[i] = in
		g.Go(in.MaterializeAll)
	}
	require.NoError(t, g.Wait())

	for i, in := range instances {
		segs, paths := layoutOf(t, in)
		if diff := cmp.Diff(wantSegs, segs); diff != "" {
			t.Errorf("instance %d segments (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(wantPaths, paths); diff != "" {
			t.Errorf("instance %d paths (-want +got):\n%s", i, diff)
		}
	}
}

func TestPrototype_IncompatibleIgnored(t *testing.T) {
	net := loadClaims(t)
	root := nodeID(t, net, "claims")
	store := newCacheStore(t)
	bogus := &Prototype{Network: net.ID(), Root: 99, Tip: 99, EndNode: network.NoNode}
	_, stored, err := store.Register(PrototypeKey(net, root), bogus)
	require.NoError(t, err)
	require.True(t, stored)

	m := newTestMetrics(t)
	in := newTestInstance(t, net, WithPrototypeStore(store), WithMetrics(m))
	id, err := in.GetOrCreateSegment(root)
	require.NoError(t, err)

	seg, _ := in.Segment(id)
	assert.False(t, seg.Restored)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.prototypeLookups.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.prototypeRegistrations.WithLabelValues("mismatch")))
}

func TestPrototype_SameLayout(t *testing.T) {
	net := loadClaims(t)
	in := newTestInstance(t, net)
	id, err := in.GetOrCreateSegment(nodeID(t, net, "claims"))
	require.NoError(t, err)
	seg, _ := in.Segment(id)
	p := in.capturePrototype(&seg)
	require.NotEmpty(t, p.Members)

	clone := *p
	clone.Members = append([]PrototypeMember(nil), p.Members...)
	assert.True(t, p.sameLayout(&clone))

	clone.Members[len(clone.Members)-1].Bit <<= 1
	assert.False(t, p.sameLayout(&clone), "member bits differ")

	clone.Members = append([]PrototypeMember(nil), p.Members...)
	clone.InitialLinkedMask ^= 1
	assert.False(t, p.sameLayout(&clone), "initial masks differ")
}

func TestPrototype_ValidateRejectsTampering(t *testing.T) {
	net := loadClaims(t)
	store := newCacheStore(t)
	first := newTestInstance(t, net, WithPrototypeStore(store))
	require.NoError(t, first.MaterializeAll())

	root := nodeID(t, net, "lapsed")
	p, ok, err := store.Lookup(PrototypeKey(net, root))
	require.NoError(t, err)
	require.True(t, ok)

	check := newTestInstance(t, net)
	require.NoError(t, check.validatePrototype(root, p))

	tampered := *p
	tampered.Members = append([]PrototypeMember(nil), p.Members...)
	tampered.Members[1].Type = network.NodeJoin
	assert.True(t, errors.IsInvalid(check.validatePrototype(root, &tampered)))

	tampered = *p
	tampered.Members = p.Members[:2]
	assert.Error(t, check.validatePrototype(root, &tampered), "truncated chain cannot reach the end node")

	assert.Error(t, check.validatePrototype(nodeID(t, net, "claims"), p))
}

func TestPrototype_StoreFailuresDoNotAbort(t *testing.T) {
	net := loadClaims(t)
	m := newTestMetrics(t)
	in := newTestInstance(t, net, WithPrototypeStore(failingStore{}), WithMetrics(m))

	require.NoError(t, in.MaterializeAll())
	assert.Len(t, in.Segments(), 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.prototypeLookups.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.prototypeRegistrations.WithLabelValues("error")))
}

func TestTieredStore(t *testing.T) {
	shared := newCacheStore(t)
	localA := newCacheStore(t)
	localB := newCacheStore(t)
	a := NewTieredStore(localA, shared)
	b := NewTieredStore(localB, shared)

	p1 := &Prototype{Network: "n", Root: 0, Tip: 1, EndNode: network.NoNode}
	p2 := &Prototype{Network: "n", Root: 0, Tip: 2, EndNode: network.NoNode}

	winner, stored, err := a.Register("n.f.0", p1)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Same(t, p1, winner)
	_, ok, _ := localA.Lookup("n.f.0")
	assert.True(t, ok)

	_, ok, _ = localB.Lookup("n.f.0")
	assert.False(t, ok)
	got, ok, err := b.Lookup("n.f.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, p1, got)
	_, ok, _ = localB.Lookup("n.f.0")
	assert.True(t, ok, "shared hits are kept locally")

	winner, stored, err = b.Register("n.f.0", p2)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Same(t, p1, winner, "first writer wins")

	_, ok, err = a.Lookup("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	failing := NewTieredStore(newCacheStore(t), failingStore{})
	_, _, err = failing.Register("n.f.0", p1)
	assert.True(t, errors.IsTransient(err))
}
