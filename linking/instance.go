package linking

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/network"
)

// StateFactory creates the opaque per-node state attached to a new NodeMemory.
type StateFactory func(node *network.Node) any

// Option configures an Instance.
type Option func(*Instance)

// WithLogger sets the instance logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Instance) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// WithMetrics exports instance activity through shared metrics.
func WithMetrics(m *Metrics) Option {
	return func(in *Instance) { in.metrics = m }
}

// WithPrototypeStore shares segment layouts with other instances of the same topology.
func WithPrototypeStore(store PrototypeStore) Option {
	return func(in *Instance) { in.store = store }
}

// WithListener receives path link transitions.
func WithListener(l Listener) Option {
	return func(in *Instance) { in.listener = l }
}

// WithStateFactory attaches caller-owned state to every node memory.
func WithStateFactory(f StateFactory) Option {
	return func(in *Instance) { in.stateFactory = f }
}

// WithInstanceID overrides the generated instance id.
func WithInstanceID(id string) Option {
	return func(in *Instance) {
		if id != "" {
			in.id = id
		}
	}
}

// Instance is the per-engine context owning node, segment and path memories.
// All methods are safe for concurrent use; construction and linking are
// serialised by one lock per instance.
type Instance struct {
	id  string
	net *network.Network

	mu       sync.Mutex
	memories []*NodeMemory
	segments []*SegmentMemory
	paths    []*PathMemory
	pending  []PathEvent
	closed   bool

	store        PrototypeStore
	listener     Listener
	stateFactory StateFactory
	logger       *slog.Logger
	metrics      *Metrics
}

// NewInstance creates an engine instance over net.
func NewInstance(net *network.Network, opts ...Option) *Instance {
	in := &Instance{
		id:       uuid.New().String(),
		net:      net,
		memories: make([]*NodeMemory, net.Len()),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.logger == nil {
		in.logger = slog.Default().With("component", "linking")
	}
	in.logger = in.logger.With("instance", in.id, "network", net.ID())
	in.metrics.instanceOpened()
	return in
}

// ID returns the instance id.
func (in *Instance) ID() string { return in.id }

// Network returns the topology the instance was built over.
func (in *Instance) Network() *network.Network { return in.net }

// Close releases the instance. Memories stay readable.
func (in *Instance) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.closed {
		in.closed = true
		in.metrics.instanceClosed()
	}
}

// GetOrCreateSegment returns the segment containing node, building or
// restoring it on first use. Repeated calls return the same segment.
func (in *Instance) GetOrCreateSegment(node network.NodeID) (SegmentID, error) {
	var seg *SegmentMemory
	err := in.do("GetOrCreateSegment", func() error {
		var err error
		seg, err = in.getOrCreateSegment(node)
		return err
	})
	if err != nil {
		return NoSegment, err
	}
	return seg.ID, nil
}

// GetQuerySegment returns the root segment of the named query. A missing
// query yields an error matching errors.ErrQueryNotFound.
func (in *Instance) GetQuerySegment(name string) (SegmentID, error) {
	var seg *SegmentMemory
	err := in.do("GetQuerySegment", func() error {
		var err error
		seg, err = in.querySegment(name)
		return err
	})
	if err != nil {
		return NoSegment, err
	}
	return seg.ID, nil
}

// CreateChildSegments creates one child segment per sink of seg's tip,
// unless the children already exist.
func (in *Instance) CreateChildSegments(seg SegmentID) error {
	return in.do("CreateChildSegments", func() error {
		s, err := in.segment(seg)
		if err != nil {
			return err
		}
		return in.createChildSegments(s)
	})
}

// CreateChildSegment returns the segment starting at node, which must be
// the sink of a fork. End nodes get a segment of their own.
func (in *Instance) CreateChildSegment(node network.NodeID) (SegmentID, error) {
	var seg *SegmentMemory
	err := in.do("CreateChildSegment", func() error {
		if err := in.checkNode(node); err != nil {
			return err
		}
		var err error
		seg, err = in.createChildSegment(node)
		return err
	})
	if err != nil {
		return NoSegment, err
	}
	return seg.ID, nil
}

// LinkNode marks node as holding matchable data.
func (in *Instance) LinkNode(node network.NodeID) error {
	return in.do("LinkNode", func() error {
		mem, err := in.linkable(node)
		if err != nil {
			return err
		}
		in.linkNode(mem)
		return nil
	})
}

// UnlinkNode marks node as holding no matchable data.
func (in *Instance) UnlinkNode(node network.NodeID) error {
	return in.do("UnlinkNode", func() error {
		mem, err := in.linkable(node)
		if err != nil {
			return err
		}
		in.unlinkNode(mem)
		return nil
	})
}

// PathFor returns the path ended by a terminal or right input adapter.
func (in *Instance) PathFor(end network.NodeID) (PathID, error) {
	var path *PathMemory
	err := in.do("PathFor", func() error {
		if err := in.checkNode(end); err != nil {
			return err
		}
		var err error
		path, err = in.pathFor(end)
		return err
	})
	if err != nil {
		return NoPath, err
	}
	return path.ID, nil
}

// MaterializeAll builds every segment of the network, including the
// single-node segments of end nodes below a fork.
func (in *Instance) MaterializeAll() error {
	return in.do("MaterializeAll", func() error {
		for i := 0; i < in.net.Len(); i++ {
			id := network.NodeID(i)
			if !in.net.Node(id).Type.IsLeftTupleSource() {
				continue
			}
			if _, err := in.getOrCreateSegment(id); err != nil {
				return err
			}
		}
		for i := 0; i < len(in.segments); i++ {
			s := in.segments[i]
			if in.net.Node(s.Tip).Type.IsLeftTupleSource() && in.net.IsNonTerminalTip(s.Tip, network.NoNode) {
				if err := in.createChildSegments(s); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Segment returns a snapshot of a segment.
func (in *Instance) Segment(id SegmentID) (SegmentMemory, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id < 0 || int(id) >= len(in.segments) {
		return SegmentMemory{}, false
	}
	return in.segments[id].clone(), true
}

// Path returns a snapshot of a path.
func (in *Instance) Path(id PathID) (PathMemory, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id < 0 || int(id) >= len(in.paths) {
		return PathMemory{}, false
	}
	return in.paths[id].clone(), true
}

// Memory returns a snapshot of a node memory, false when none exists yet.
func (in *Instance) Memory(node network.NodeID) (NodeMemory, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.net.Has(node) || in.memories[node] == nil {
		return NodeMemory{}, false
	}
	return *in.memories[node], true
}

// Segments returns snapshots of every segment in creation order.
func (in *Instance) Segments() []SegmentMemory {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]SegmentMemory, len(in.segments))
	for i, s := range in.segments {
		out[i] = s.clone()
	}
	return out
}

// Paths returns snapshots of every path in creation order.
func (in *Instance) Paths() []PathMemory {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]PathMemory, len(in.paths))
	for i, p := range in.paths {
		out[i] = p.clone()
	}
	return out
}

// do runs op under the instance lock and dispatches the path events it
// produced once the lock is released.
func (in *Instance) do(op string, fn func() error) error {
	in.mu.Lock()
	err := fn()
	events := in.pending
	in.pending = nil
	in.mu.Unlock()

	if in.listener != nil {
		for _, ev := range events {
			in.listener.PathChanged(ev)
		}
	}
	if err != nil {
		class := errors.Classify(err)
		in.metrics.failure(class.String())
		in.logger.Error("linking operation failed", "operation", op, "class", class.String(), "error", err)
	}
	return err
}

func (in *Instance) checkNode(id network.NodeID) error {
	if !in.net.Has(id) {
		return errors.WrapFatal(errors.ErrNodeNotFound, "Instance", "checkNode",
			fmt.Sprintf("look up node %d", id))
	}
	return nil
}

func (in *Instance) segment(id SegmentID) (*SegmentMemory, error) {
	if id < 0 || int(id) >= len(in.segments) {
		return nil, errors.WrapFatal(errors.ErrStructural, "Instance", "segment",
			fmt.Sprintf("look up segment %d", id))
	}
	return in.segments[id], nil
}

// memory returns the node memory, creating it on first access.
func (in *Instance) memory(id network.NodeID) *NodeMemory {
	if mem := in.memories[id]; mem != nil {
		return mem
	}
	mem := &NodeMemory{
		Node:         id,
		Segment:      NoSegment,
		RiaPath:      NoPath,
		QuerySegment: NoSegment,
		Path:         NoPath,
	}
	if in.stateFactory != nil {
		mem.State = in.stateFactory(in.net.Node(id))
	}
	in.memories[id] = mem
	return mem
}

func (in *Instance) newSegment(root network.NodeID) *SegmentMemory {
	seg := &SegmentMemory{
		ID:      SegmentID(len(in.segments)),
		Root:    root,
		Tip:     root,
		EndNode: network.NoNode,
		PosBit:  1,
	}
	in.segments = append(in.segments, seg)
	return seg
}

// pathFor returns the path ended by end, creating it from the path spec.
func (in *Instance) pathFor(end network.NodeID) (*PathMemory, error) {
	if mem := in.memories[end]; mem != nil && mem.Path != NoPath {
		return in.paths[mem.Path], nil
	}
	spec, err := in.net.PathSpec(end, network.NoNode)
	if err != nil {
		return nil, err
	}
	mem := in.memory(end)
	node := in.net.Node(end)
	path := &PathMemory{
		ID:                PathID(len(in.paths)),
		End:               end,
		Rule:              node.Rule,
		Subnetwork:        node.Type == network.NodeRightInputAdapter,
		Segments:          make([]SegmentID, spec.SegmentCount),
		AllLinkedTestMask: spec.AllLinkedTestMask,
	}
	for i := range path.Segments {
		path.Segments[i] = NoSegment
	}
	in.paths = append(in.paths, path)
	mem.Path = path.ID
	return path, nil
}
