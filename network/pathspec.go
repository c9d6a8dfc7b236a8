package network

import (
	"fmt"

	"github.com/c360/rulenet/errors"
)

// PathSpec is the shape of the path ending at a terminal or right input adapter.
type PathSpec struct {
	// SegmentCount is the length of the path's segment slot array.
	SegmentCount int
	// AllLinkedTestMask has the bit of every segment that must be linked.
	AllLinkedTestMask uint64
}

// PathSpec walks up from an end node and computes its segment count and
// path-level test mask. A segment needs linking when it holds a beta node
// that can go unlinked; accumulates never can, not-nodes only without
// constraints, and nodes gated by a sub-network only when that sub-network
// path can. Nothing at or above a conditional branch contributes. Terminal
// paths always test their root segment; sub-network paths ignore everything
// from the sub-network start upwards.
func (n *Network) PathSpec(end, removing NodeID) (PathSpec, error) {
	return n.pathSpec(end, removing, 0)
}

func (n *Network) pathSpec(end, removing NodeID, depth int) (PathSpec, error) {
	if !n.Has(end) || !n.nodes[end].Type.IsEnd() {
		return PathSpec{}, errors.WrapFatal(errors.ErrNotEndNode, "Network", "PathSpec",
			fmt.Sprintf("compute path of node %d", end))
	}
	if depth > len(n.nodes) {
		return PathSpec{}, errors.WrapFatal(errors.ErrStructural, "Network", "PathSpec",
			"sub-network nesting does not terminate")
	}
	endNode := &n.nodes[end]
	isRIA := endNode.Type == NodeRightInputAdapter

	// contributes[i] is the segment i steps above the end node's segment
	contributes := []bool{false}
	lt := endNode.Source
	if n.IsNonTerminalTip(lt, removing) {
		// the end node sits alone in a child segment of the fork
		contributes = append(contributes, false)
	}

	testing := true
	for {
		node := &n.nodes[lt]
		if isRIA && lt == endNode.SubnetworkStart {
			testing = false
		}
		if node.Type == NodeConditionalBranch {
			testing = false
		}
		if testing && node.Type.IsBeta() && node.Type != NodeAccumulate {
			seg := len(contributes) - 1
			switch {
			case node.RightInput != NoNode:
				sub, err := n.pathSpec(node.RightInput, removing, depth+1)
				if err != nil {
					return PathSpec{}, err
				}
				if sub.AllLinkedTestMask > 0 {
					contributes[seg] = true
				}
			case node.Type != NodeNot || len(node.Constraints) == 0:
				contributes[seg] = true
			}
		}
		if node.Type == NodeRootAdapter {
			break
		}
		if n.IsNonTerminalTip(node.Source, removing) {
			contributes = append(contributes, false)
		}
		lt = node.Source
	}

	count := len(contributes)
	var mask uint64
	for i, c := range contributes {
		if c {
			mask |= PosBit(count - 1 - i)
		}
	}
	if !isRIA {
		mask |= 1
	}
	return PathSpec{SegmentCount: count, AllLinkedTestMask: mask}, nil
}
