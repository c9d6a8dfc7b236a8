package linking

import (
	"fmt"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/network"
)

// linkable resolves the memory of a node that records link state,
// building its segment on first use.
func (in *Instance) linkable(id network.NodeID) (*NodeMemory, error) {
	if _, err := in.getOrCreateSegment(id); err != nil {
		return nil, err
	}
	mem := in.memories[id]
	if mem.Bit == 0 {
		return nil, errors.WrapFatal(errors.ErrStructural, "Instance", "linkable",
			fmt.Sprintf("change link state of %s", in.net.Node(id).Label()))
	}
	return mem, nil
}

// linkNode sets the node's bit even when the node is already linked, since
// an unlink of a saturated neighbour may have cleared the shared bit. Only
// the segment's transition notifies its paths.
func (in *Instance) linkNode(mem *NodeMemory) {
	mem.Linked = true
	seg := in.segments[mem.Segment]
	wasLinked := seg.IsLinked()
	seg.LinkedMask |= mem.Bit
	if wasLinked || !seg.IsLinked() {
		return
	}
	for _, p := range seg.Paths {
		in.linkSegmentInPath(in.paths[p], seg.PosBit)
	}
}

// unlinkNode clears the node's bit. Saturated members share a bit, so
// unlinking one of them unlinks the shared position until any of them links
// again.
func (in *Instance) unlinkNode(mem *NodeMemory) {
	mem.Linked = false
	seg := in.segments[mem.Segment]
	wasLinked := seg.IsLinked()
	seg.LinkedMask &^= mem.Bit
	if !wasLinked || seg.IsLinked() {
		return
	}
	for _, p := range seg.Paths {
		in.unlinkSegmentInPath(in.paths[p], seg.PosBit)
	}
}

func (in *Instance) linkSegmentInPath(path *PathMemory, bit uint64) {
	path.LinkedSegmentMask |= bit
	if path.Linked || !path.IsRuleLinked() {
		return
	}
	path.Linked = true
	in.pathChanged(path)
}

func (in *Instance) unlinkSegmentInPath(path *PathMemory, bit uint64) {
	path.LinkedSegmentMask &^= bit
	if !path.Linked || path.IsRuleLinked() {
		return
	}
	path.Linked = false
	in.pathChanged(path)
}

// pathChanged queues the transition for the listener and pushes the new
// state of a sub-network path into the nodes it gates.
func (in *Instance) pathChanged(path *PathMemory) {
	in.pending = append(in.pending, PathEvent{
		Instance:   in.id,
		Network:    in.net.ID(),
		Path:       path.ID,
		End:        path.End,
		Rule:       path.Rule,
		Subnetwork: path.Subnetwork,
		Linked:     path.Linked,
	})
	in.metrics.transition(path.Linked, path.Subnetwork)
	in.logger.Debug("path link state changed",
		"path", path.ID,
		"end", in.net.Node(path.End).Label(),
		"linked", path.Linked)

	if !path.Subnetwork {
		return
	}
	for _, gate := range in.net.Node(path.End).Gates {
		if mem := in.memories[gate]; mem != nil {
			in.applyRiaState(mem, in.net.Node(gate), path.Linked)
		}
	}
}

// applyRiaState links a gated node when its sub-network links. An
// unconstrained not-node inverts: it matches only while the sub-network
// has nothing.
func (in *Instance) applyRiaState(mem *NodeMemory, node *network.Node, riaLinked bool) {
	if node.RightPassive || mem.Segment == NoSegment || mem.Bit == 0 {
		return
	}
	want := riaLinked
	if node.Type == network.NodeNot && len(node.Constraints) == 0 {
		want = !riaLinked
	}
	if want {
		in.linkNode(mem)
	} else {
		in.unlinkNode(mem)
	}
}
