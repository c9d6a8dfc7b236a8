package network

// Segmentation predicates. Each takes a removing terminal: when it is not
// NoNode, sink counts are evaluated as if that terminal's rule had already
// been removed from the network.

// IsSegmentRoot reports whether id starts a segment: a root adapter, or a
// node whose source forks.
func (n *Network) IsSegmentRoot(id, removing NodeID) bool {
	node := &n.nodes[id]
	return node.Type == NodeRootAdapter || n.IsNonTerminalTip(node.Source, removing)
}

// IsSegmentTip reports whether id ends a segment: an end node, or a node
// with more than one sink.
func (n *Network) IsSegmentTip(id, removing NodeID) bool {
	return n.nodes[id].Type.IsEnd() || n.IsNonTerminalTip(id, removing)
}

// IsNonTerminalTip reports whether id forks into more than one sink.
func (n *Network) IsNonTerminalTip(id, removing NodeID) bool {
	if id == NoNode {
		return false
	}
	sinks := n.nodes[id].Sinks
	if removing == NoNode {
		return len(sinks) > 1
	}
	if len(sinks) <= 1 {
		return false
	}

	count := 0
	for _, sink := range sinks {
		if n.survivesRemoval(removing, sink) {
			count++
			if count > 1 {
				return true
			}
		}
	}
	return false
}

// survivesRemoval reports whether sink still exists once the rule of the
// removing terminal is gone.
func (n *Network) survivesRemoval(removing, sink NodeID) bool {
	rule := n.nodes[removing].Rule
	node := &n.nodes[sink]
	return len(node.Rules) > 1 ||
		!node.HasRule(rule) ||
		!n.reaches(sink, removing) ||
		n.reachesOtherTerminal(sink, removing)
}

// reaches reports whether target is downstream of from, following sinks
// and the beta nodes gated by right input adapters.
func (n *Network) reaches(from, target NodeID) bool {
	seen := make(map[NodeID]bool)
	var walk func(id NodeID) bool
	walk = func(id NodeID) bool {
		if id == target {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		node := &n.nodes[id]
		next := node.Sinks
		if node.Type == NodeRightInputAdapter {
			next = node.Gates
		}
		for _, s := range next {
			if walk(s) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

func (n *Network) reachesOtherTerminal(from, terminal NodeID) bool {
	for _, sink := range n.nodes[from].Sinks {
		if n.nodes[sink].Type == NodeTerminal {
			if sink != terminal {
				return true
			}
		} else if n.reachesOtherTerminal(sink, terminal) {
			return true
		}
	}
	return false
}

// CanBeDisabled reports whether a beta node's link state can ever go false.
// Accumulates, not-nodes with constraints and passive right inputs cannot,
// so they stay out of a segment's all-linked test mask.
func (n *Network) CanBeDisabled(id NodeID) bool {
	node := &n.nodes[id]
	if !node.Type.IsBeta() {
		return true
	}
	return !(node.Type == NodeNot && len(node.Constraints) > 0) &&
		node.Type != NodeAccumulate &&
		!node.RightPassive
}

// SubnetworkRoot returns the first node of a right input adapter's sub-network.
func (n *Network) SubnetworkRoot(ria NodeID) NodeID {
	adapter := &n.nodes[ria]
	lt := adapter.Source
	for n.nodes[lt].Source != adapter.SubnetworkStart {
		lt = n.nodes[lt].Source
	}
	return lt
}

// InSubnetwork reports whether lt lies between a right input adapter and
// the start of its sub-network.
func (n *Network) InSubnetwork(ria, lt NodeID) bool {
	adapter := &n.nodes[ria]
	for parent := adapter.Source; parent != adapter.SubnetworkStart && parent != NoNode; parent = n.nodes[parent].Source {
		if parent == lt {
			return true
		}
	}
	return false
}

// TypeMask accumulates the node kinds seen in a segment. It decides eager
// materialisation only.
type TypeMask uint8

const (
	MaskNot TypeMask = 1 << iota
	MaskJoin
	MaskReactiveExists
	MaskPassiveExists
)

// With adds the kind of node to the mask.
func (m TypeMask) With(node *Node) TypeMask {
	switch node.Type {
	case NodeJoin:
		m |= MaskJoin
	case NodeExists:
		if node.RightPassive {
			m |= MaskPassiveExists
		} else {
			m |= MaskReactiveExists
		}
	case NodeNot:
		m |= MaskNot
	}
	return m
}

// NeedsEager reports a segment holding a not-node without any join or
// reactive exists node. Such a segment starts linked, so it must exist
// before any path through it is evaluated.
func (m TypeMask) NeedsEager() bool {
	return m&MaskNot != 0 && m&(MaskJoin|MaskReactiveExists) == 0
}

// NodeTypesMask adds id's kind to mask.
func (n *Network) NodeTypesMask(id NodeID, mask TypeMask) TypeMask {
	if id == NoNode {
		return mask
	}
	return mask.With(&n.nodes[id])
}

// NextPosMask moves a one-bit mask to the next position. Bit 63 is final:
// every later position shares it.
func NextPosMask(mask uint64) uint64 {
	next := mask << 1
	if next == 0 {
		return mask
	}
	return next
}

// PosBit returns the bit of position pos, saturated at bit 63.
func PosBit(pos int) uint64 {
	if pos >= 63 {
		return 1 << 63
	}
	return 1 << uint(pos)
}
