package linking

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/network"
)

func TestInstance_QueryNotFound(t *testing.T) {
	in := newTestInstance(t, loadClaims(t))

	_, err := in.GetQuerySegment("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQueryNotFound))
	assert.True(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), `Unable to find query "missing"`)
	assert.Empty(t, in.Segments(), "nothing is built for a missing query")
}

func TestInstance_LookupErrors(t *testing.T) {
	net := loadClaims(t)
	in := newTestInstance(t, net)

	_, err := in.GetOrCreateSegment(network.NoNode)
	assert.True(t, errors.Is(err, errors.ErrNodeNotFound))

	_, err = in.PathFor(nodeID(t, net, "policy"))
	assert.True(t, errors.Is(err, errors.ErrNotEndNode))

	_, err = in.CreateChildSegment(nodeID(t, net, "route"))
	assert.True(t, errors.Is(err, errors.ErrStructural), "route does not follow a fork")

	err = in.CreateChildSegments(SegmentID(7))
	assert.True(t, errors.Is(err, errors.ErrStructural))

	_, ok := in.Segment(SegmentID(0))
	assert.False(t, ok)
	_, ok = in.Path(NoPath)
	assert.False(t, ok)
	_, ok = in.Memory(nodeID(t, net, "policy"))
	assert.False(t, ok, "memories are created lazily")
}

func TestInstance_CreateChildSegment(t *testing.T) {
	net := loadClaims(t)
	in := newTestInstance(t, net)
	fraud := nodeID(t, net, "fraud-check")

	id, err := in.CreateChildSegment(fraud)
	require.NoError(t, err)
	seg, _ := in.Segment(id)
	assert.Equal(t, fraud, seg.Root)
	assert.Equal(t, 1, seg.Pos)

	again, err := in.CreateChildSegment(fraud)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestInstance_StateFactoryAndIdentity(t *testing.T) {
	net := loadClaims(t)
	rec := &recorder{}
	in := newTestInstance(t, net,
		WithInstanceID("engine-1"),
		WithListener(rec),
		WithStateFactory(func(n *network.Node) any { return n.Label() }),
	)
	assert.Equal(t, "engine-1", in.ID())
	assert.Same(t, net, in.Network())

	queryRoot := nodeID(t, net, "suspicious-root")
	linkAll(t, in, queryRoot)

	mem, ok := in.Memory(queryRoot)
	require.True(t, ok)
	assert.Equal(t, "suspicious-root", mem.State)

	require.Len(t, rec.Events(), 1)
	ev := rec.Events()[0]
	assert.Equal(t, "engine-1", ev.Instance)
	assert.Equal(t, "claims", ev.Network)
	assert.Equal(t, nodeID(t, net, "suspicious"), ev.End)
}

func TestInstance_GeneratedID(t *testing.T) {
	net := loadClaims(t)
	a := newTestInstance(t, net)
	b := newTestInstance(t, net)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

type reentrantListener struct {
	in       *Instance
	segments []int
}

func (l *reentrantListener) PathChanged(PathEvent) {
	l.segments = append(l.segments, len(l.in.Segments()))
}

func TestInstance_ListenerRunsOutsideLock(t *testing.T) {
	net := loadClaims(t)
	l := &reentrantListener{}
	in := newTestInstance(t, net, WithListener(l))
	l.in = in

	require.NoError(t, in.LinkNode(nodeID(t, net, "suspicious-root")))
	assert.Equal(t, []int{1}, l.segments)
}

func TestInstance_ConcurrentGetOrCreate(t *testing.T) {
	net := loadClaims(t)
	in := newTestInstance(t, net)
	targets := []string{"hold", "escalate", "policy", "prior-claims", "route"}

	const workers = 10
	results := make([]map[string]SegmentID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got := make(map[string]SegmentID)
			for _, name := range targets {
				id, err := in.GetOrCreateSegment(nodeID(t, net, name))
				assert.NoError(t, err)
				got[name] = id
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	assert.Len(t, in.Segments(), 4)
}
