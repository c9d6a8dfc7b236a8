package linking

import (
	"github.com/c360/rulenet/network"
)

// SegmentID addresses a segment inside an Instance arena.
type SegmentID int32

// NoSegment marks an absent segment reference.
const NoSegment SegmentID = -1

// PathID addresses a path inside an Instance arena.
type PathID int32

// NoPath marks an absent path reference.
const NoPath PathID = -1

// NodeMemory is the per-instance state of one node. The linking core only
// annotates it; State belongs to whoever installed the StateFactory.
type NodeMemory struct {
	Node    network.NodeID
	Segment SegmentID
	// Bit is the node's position in its segment's linked mask, 0 when the
	// node kind records no link state.
	Bit    uint64
	Linked bool

	// RiaPath is the sub-network path gating a beta node's right input.
	RiaPath PathID
	// QuerySegment is the root segment of the query a query element calls.
	QuerySegment SegmentID
	// Path is the path ended by a terminal or right input adapter.
	Path PathID

	State any
}

// SegmentMemory is a maximal unbranched run of nodes sharing one linking test.
type SegmentMemory struct {
	ID      SegmentID
	Root    network.NodeID
	Tip     network.NodeID
	EndNode network.NodeID
	Members []network.NodeID

	LinkedMask        uint64
	AllLinkedTestMask uint64

	Pos    int
	PosBit uint64

	Paths    []PathID
	Children []SegmentID

	NodeTypes network.TypeMask
	Restored  bool
}

// IsLinked reports whether every tested node bit is set.
func (s *SegmentMemory) IsLinked() bool {
	return s.LinkedMask&s.AllLinkedTestMask == s.AllLinkedTestMask
}

func (s *SegmentMemory) addPath(id PathID) {
	for _, p := range s.Paths {
		if p == id {
			return
		}
	}
	s.Paths = append(s.Paths, id)
}

func (s SegmentMemory) clone() SegmentMemory {
	s.Members = append([]network.NodeID(nil), s.Members...)
	s.Paths = append([]PathID(nil), s.Paths...)
	s.Children = append([]SegmentID(nil), s.Children...)
	return s
}

// PathMemory is the chain of segments from a root adapter to one end node.
type PathMemory struct {
	ID         PathID
	End        network.NodeID
	Rule       string
	Subnetwork bool

	// Segments is indexed by segment position; NoSegment until registered.
	Segments          []SegmentID
	AllLinkedTestMask uint64
	LinkedSegmentMask uint64
	Linked            bool
}

// IsRuleLinked reports whether every tested segment bit is set.
func (p *PathMemory) IsRuleLinked() bool {
	return p.LinkedSegmentMask&p.AllLinkedTestMask == p.AllLinkedTestMask
}

func (p PathMemory) clone() PathMemory {
	p.Segments = append([]SegmentID(nil), p.Segments...)
	return p
}
