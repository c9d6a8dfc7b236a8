package agenda

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulenet/linking"
	"github.com/c360/rulenet/network"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type chain struct {
	net  *network.Network
	root network.NodeID
	join network.NodeID
	end  network.NodeID
}

func newChain(t *testing.T) chain {
	t.Helper()
	b := network.NewBuilder("agenda")
	root := b.Root()
	join := b.Add(network.NodeJoin, root)
	end := b.Terminal(join, "approve-order")
	net, err := b.Build()
	require.NoError(t, err)
	return chain{net: net, root: root, join: join, end: end}
}

func TestRecorder_FollowsInstance(t *testing.T) {
	c := newChain(t)
	rec := &Recorder{}
	in := linking.NewInstance(c.net, linking.WithListener(rec), linking.WithLogger(discard))
	defer in.Close()

	require.NoError(t, in.LinkNode(c.root))
	assert.Empty(t, rec.Events())

	require.NoError(t, in.LinkNode(c.join))
	assert.Equal(t, []string{"approve-order"}, rec.Linked())

	require.NoError(t, in.UnlinkNode(c.join))
	assert.Empty(t, rec.Linked())

	require.NoError(t, in.LinkNode(c.join))
	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []bool{true, false, true}, []bool{events[0].Linked, events[1].Linked, events[2].Linked})
	for _, ev := range events {
		assert.Equal(t, c.end, ev.End)
		assert.Equal(t, in.ID(), ev.Instance)
		assert.False(t, ev.Subnetwork)
	}

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestRecorder_Linked(t *testing.T) {
	rec := &Recorder{}
	rec.PathChanged(linking.PathEvent{Path: 0, Rule: "a", Linked: true})
	rec.PathChanged(linking.PathEvent{Path: 1, Rule: "b", Linked: true})
	rec.PathChanged(linking.PathEvent{Path: 2, Subnetwork: true, Linked: true})
	rec.PathChanged(linking.PathEvent{Path: 0, Rule: "a", Linked: false})
	rec.PathChanged(linking.PathEvent{Path: 0, Rule: "a", Linked: true})

	assert.Equal(t, []string{"b", "a"}, rec.Linked())
}

func TestFanout(t *testing.T) {
	c := newChain(t)
	first := &Recorder{}
	var count int
	fan := Fanout{first, nil, Func(func(linking.PathEvent) { count++ })}

	in := linking.NewInstance(c.net, linking.WithListener(fan), linking.WithLogger(discard))
	defer in.Close()

	require.NoError(t, in.LinkNode(c.root))
	require.NoError(t, in.LinkNode(c.join))
	require.NoError(t, in.UnlinkNode(c.root))

	assert.Len(t, first.Events(), 2)
	assert.Equal(t, 2, count)
}
