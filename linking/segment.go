package linking

import (
	"fmt"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/network"
)

// getOrCreateSegment returns the segment holding id, restoring it from a
// prototype or building it on first use.
func (in *Instance) getOrCreateSegment(id network.NodeID) (*SegmentMemory, error) {
	if err := in.checkNode(id); err != nil {
		return nil, err
	}
	if mem := in.memories[id]; mem != nil && mem.Segment != NoSegment {
		return in.segments[mem.Segment], nil
	}

	node := in.net.Node(id)
	if node.Type.IsEnd() {
		if in.net.IsNonTerminalTip(node.Source, network.NoNode) {
			return in.createChildSegmentForEnd(id)
		}
		if _, err := in.getOrCreateSegment(node.Source); err != nil {
			return nil, err
		}
		mem := in.memory(id)
		if mem.Segment == NoSegment {
			return nil, errors.WrapFatal(errors.ErrStructural, "Instance", "getOrCreateSegment",
				fmt.Sprintf("attach end node %s", node.Label()))
		}
		return in.segments[mem.Segment], nil
	}

	root := id
	for !in.net.IsSegmentRoot(root, network.NoNode) {
		root = in.net.Node(root).Source
	}
	// a sub-network may reach back into a segment that is still being built
	if mem := in.memories[root]; mem != nil && mem.Segment != NoSegment {
		return in.segments[mem.Segment], nil
	}

	seg, restored, err := in.restoreFromPrototype(root)
	if err != nil || restored {
		return seg, err
	}
	return in.buildSegment(root)
}

// buildSegment walks forward from root along the single-sink chain and
// creates the segment and the memories of its members.
func (in *Instance) buildSegment(root network.NodeID) (*SegmentMemory, error) {
	seg := in.newSegment(root)

	var (
		types    network.TypeMask
		posMask  uint64 = 1
		testMask uint64
		update   = true
		lt       = root
	)
	for {
		node := in.net.Node(lt)
		types = types.With(node)
		mem := in.memory(lt)
		mem.Segment = seg.ID
		seg.Members = append(seg.Members, lt)

		switch {
		case node.Type.IsBeta():
			var err error
			if testMask, err = in.processBeta(seg, mem, node, posMask, testMask, update); err != nil {
				return nil, err
			}
		case node.Type == network.NodeRootAdapter:
			mem.Bit = posMask
			testMask |= posMask
		case node.Type == network.NodeConditionalBranch:
			// later nodes still notify but no longer take part in linking
			update = false
		case node.Type == network.NodeQueryElement:
			var err error
			if update, err = in.processQuery(mem, node, posMask); err != nil {
				return nil, err
			}
		case node.Type.RecordsBit():
			mem.Bit = posMask
		}
		posMask = network.NextPosMask(posMask)

		if len(node.Sinks) != 1 {
			seg.Tip = lt
			break
		}
		sink := node.Sinks[0]
		sinkNode := in.net.Node(sink)
		if sinkNode.Type.IsLeftTupleSource() {
			lt = sink
			continue
		}

		in.memory(sink).Segment = seg.ID
		seg.EndNode = sink
		seg.Tip = sink
		if sinkNode.Type == network.NodeRightInputAdapter {
			for _, gate := range sinkNode.Gates {
				if _, err := in.getOrCreateSegment(gate); err != nil {
					return nil, err
				}
			}
		}
		break
	}

	seg.AllLinkedTestMask = testMask
	seg.NodeTypes = types
	seg.Pos, seg.PosBit = in.segmentPosition(root)

	if err := in.bindPaths(lt, lt, seg, types); err != nil {
		return nil, err
	}
	in.registerPrototype(seg)
	in.metrics.segment("built")
	in.logger.Debug("segment built",
		"segment", seg.ID,
		"root", in.net.Node(root).Label(),
		"tip", in.net.Node(seg.Tip).Label(),
		"pos", seg.Pos,
		"linked_mask", seg.LinkedMask,
		"test_mask", seg.AllLinkedTestMask)

	if err := in.eagerChildren(seg, lt); err != nil {
		return nil, err
	}
	return seg, nil
}

// processBeta assigns a beta node its bit and decides whether the bit joins
// the segment test mask. A gated sub-network is materialised first so its
// path test mask is known.
func (in *Instance) processBeta(seg *SegmentMemory, mem *NodeMemory, node *network.Node,
	posMask, testMask uint64, update bool,
) (uint64, error) {
	mem.Bit = posMask
	if node.Type == network.NodeNot {
		// not-nodes start linked; the sub-network below may unlink it again
		seg.LinkedMask |= posMask
		mem.Linked = true
	}

	if node.RightInput == network.NoNode {
		if update && in.net.CanBeDisabled(node.ID) {
			testMask |= posMask
		}
		return testMask, nil
	}

	path, err := in.createRiaSegment(node.RightInput)
	if err != nil {
		return testMask, err
	}
	mem.RiaPath = path.ID
	if update && in.net.CanBeDisabled(node.ID) && path.AllLinkedTestMask > 0 {
		testMask |= posMask
	}
	if path.Linked {
		in.applyRiaState(mem, node, true)
	}
	return testMask, nil
}

// createRiaSegment materialises the first segment of a right input
// adapter's sub-network and returns the adapter's path.
func (in *Instance) createRiaSegment(ria network.NodeID) (*PathMemory, error) {
	start := in.net.SubnetworkRoot(ria)
	if mem := in.memories[start]; mem == nil || mem.Segment == NoSegment {
		if _, err := in.getOrCreateSegment(start); err != nil {
			return nil, err
		}
	}
	return in.pathFor(ria)
}

// processQuery links a query element to the root segment of the query it
// calls. Abductive queries keep later nodes out of the test mask.
func (in *Instance) processQuery(mem *NodeMemory, node *network.Node, posMask uint64) (bool, error) {
	qseg, err := in.querySegment(node.Query)
	if err != nil {
		return false, err
	}
	mem.Bit = posMask
	mem.QuerySegment = qseg.ID
	return !node.Abductive, nil
}

func (in *Instance) querySegment(name string) (*SegmentMemory, error) {
	root, ok := in.net.QueryRoot(name)
	if !ok {
		return nil, errors.WrapFatal(errors.ErrQueryNotFound, "Instance", "querySegment",
			fmt.Sprintf("Unable to find query %q", name))
	}
	return in.getOrCreateSegment(root)
}

// segmentPosition counts the forks between root and its root adapter.
func (in *Instance) segmentPosition(root network.NodeID) (int, uint64) {
	pos, bit := 0, uint64(1)
	for lt := root; in.net.Node(lt).Type != network.NodeRootAdapter; {
		parent := in.net.Node(lt).Source
		if in.net.IsNonTerminalTip(parent, network.NoNode) {
			pos++
			bit = network.NextPosMask(bit)
		}
		lt = parent
	}
	return pos, bit
}

// bindPaths registers seg with every path ending below lt. Sub-network
// paths only take the segment when origin lies inside the sub-network.
func (in *Instance) bindPaths(lt, origin network.NodeID, seg *SegmentMemory, types network.TypeMask) error {
	types, err := in.checkSegmentBoundary(lt, types)
	if err != nil {
		return err
	}

	for _, sink := range in.net.Node(lt).Sinks {
		sinkNode := in.net.Node(sink)

		var path *PathMemory
		switch {
		case sinkNode.Type.IsLeftTupleSource():
			if err := in.bindPaths(sink, origin, seg, types); err != nil {
				return err
			}
			continue
		case sinkNode.Type == network.NodeRightInputAdapter:
			if !in.net.InSubnetwork(sink, origin) {
				continue
			}
			if path, err = in.pathFor(sink); err != nil {
				return err
			}
			for _, gate := range sinkNode.Gates {
				if _, err := in.getOrCreateSegment(gate); err != nil {
					return err
				}
			}
		default:
			if path, err = in.pathFor(sink); err != nil {
				return err
			}
		}

		if seg.Pos >= len(path.Segments) {
			continue
		}
		seg.addPath(path.ID)
		path.Segments[seg.Pos] = seg.ID
		if seg.IsLinked() {
			in.linkSegmentInPath(path, seg.PosBit)
		}
		if err := in.checkEager(lt, types); err != nil {
			return err
		}
	}
	return nil
}

// checkSegmentBoundary resets the type mask when lt starts a new segment,
// first giving the finished segment its eager check.
func (in *Instance) checkSegmentBoundary(lt network.NodeID, types network.TypeMask) (network.TypeMask, error) {
	if in.net.IsSegmentRoot(lt, network.NoNode) {
		if err := in.checkEager(in.net.Node(lt).Source, types); err != nil {
			return types, err
		}
		types = 0
	}
	return types.With(in.net.Node(lt)), nil
}

// checkEager builds the segment of lt when types holds a not-node without
// a join or reactive exists node.
func (in *Instance) checkEager(lt network.NodeID, types network.TypeMask) error {
	if lt == network.NoNode || !types.NeedsEager() {
		return nil
	}
	if mem := in.memories[lt]; mem != nil && mem.Segment != NoSegment {
		return nil
	}
	in.logger.Debug("eager segment creation", "node", in.net.Node(lt).Label())
	_, err := in.getOrCreateSegment(lt)
	return err
}

// eagerChildren builds the segments beyond a forking tip when seg starts
// linked because of a not-node.
func (in *Instance) eagerChildren(seg *SegmentMemory, last network.NodeID) error {
	if !seg.NodeTypes.NeedsEager() || !in.net.IsNonTerminalTip(last, network.NoNode) {
		return nil
	}
	in.logger.Debug("eager child segment creation", "segment", seg.ID)
	return in.createChildSegments(seg)
}

// createChildSegments creates one segment per sink of seg's tip.
func (in *Instance) createChildSegments(seg *SegmentMemory) error {
	if len(seg.Children) > 0 {
		return nil
	}
	tip := in.net.Node(seg.Tip)
	for _, sink := range tip.Sinks {
		child, err := in.createChildSegment(sink)
		if err != nil {
			return err
		}
		child.Pos = seg.Pos + 1
		child.PosBit = network.NextPosMask(seg.PosBit)
		seg.Children = append(seg.Children, child.ID)
	}
	return nil
}

func (in *Instance) createChildSegment(node network.NodeID) (*SegmentMemory, error) {
	if !in.net.IsSegmentRoot(node, network.NoNode) {
		return nil, errors.WrapFatal(errors.ErrStructural, "Instance", "createChildSegment",
			fmt.Sprintf("start child segment at %s", in.net.Node(node).Label()))
	}
	if mem := in.memories[node]; mem != nil && mem.Segment != NoSegment {
		return in.segments[mem.Segment], nil
	}
	if in.net.Node(node).Type.IsEnd() {
		return in.createChildSegmentForEnd(node)
	}
	return in.getOrCreateSegment(node)
}

// createChildSegmentForEnd gives an end node below a fork a segment of its
// own, placed in the last slot of its path.
func (in *Instance) createChildSegmentForEnd(end network.NodeID) (*SegmentMemory, error) {
	path, err := in.pathFor(end)
	if err != nil {
		return nil, err
	}

	seg := in.newSegment(end)
	seg.EndNode = end
	seg.Pos = len(path.Segments) - 1
	seg.PosBit = network.PosBit(seg.Pos)
	in.memory(end).Segment = seg.ID

	path.Segments[seg.Pos] = seg.ID
	seg.addPath(path.ID)
	in.metrics.segment("end")
	in.logger.Debug("end segment created",
		"segment", seg.ID,
		"end", in.net.Node(end).Label(),
		"pos", seg.Pos)

	if seg.IsLinked() {
		in.linkSegmentInPath(path, seg.PosBit)
	}
	return seg, nil
}
