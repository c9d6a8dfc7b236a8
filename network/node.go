package network

import (
	"fmt"
	"strings"
)

// NodeID addresses a node inside its Network arena.
type NodeID int32

// NoNode marks an absent node reference.
const NoNode NodeID = -1

// NodeType is the closed set of node kinds a rule network is built from.
type NodeType int

const (
	// NodeUnknown is the zero value and never valid in a built network
	NodeUnknown NodeType = iota
	// NodeRootAdapter starts every path (left input adapter)
	NodeRootAdapter
	// NodeJoin joins left tuples with right facts
	NodeJoin
	// NodeNot matches when no right fact matches
	NodeNot
	// NodeExists matches when at least one right fact matches
	NodeExists
	// NodeAccumulate folds matching right facts into a result
	NodeAccumulate
	// NodeEval filters with an arbitrary expression
	NodeEval
	// NodeFrom pulls facts from a static expression
	NodeFrom
	// NodeReactiveFrom pulls facts from an expression that is re-evaluated on change
	NodeReactiveFrom
	// NodeConditionalBranch routes tuples to named consequences
	NodeConditionalBranch
	// NodeTimer delays propagation on a schedule
	NodeTimer
	// NodeAsyncSend hands tuples to an asynchronous channel
	NodeAsyncSend
	// NodeAsyncReceive receives tuples from an asynchronous channel
	NodeAsyncReceive
	// NodeQueryElement calls a named query
	NodeQueryElement
	// NodeRightInputAdapter ends a sub-network feeding a beta node's right input
	NodeRightInputAdapter
	// NodeTerminal ends a rule
	NodeTerminal
)

var nodeTypeNames = map[NodeType]string{
	NodeRootAdapter:       "root",
	NodeJoin:              "join",
	NodeNot:               "not",
	NodeExists:            "exists",
	NodeAccumulate:        "accumulate",
	NodeEval:              "eval",
	NodeFrom:              "from",
	NodeReactiveFrom:      "reactive-from",
	NodeConditionalBranch: "branch",
	NodeTimer:             "timer",
	NodeAsyncSend:         "async-send",
	NodeAsyncReceive:      "async-receive",
	NodeQueryElement:      "query-element",
	NodeRightInputAdapter: "ria",
	NodeTerminal:          "terminal",
}

// String returns the document name of the node type
func (t NodeType) String() string {
	if name, ok := nodeTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseNodeType converts a document name into a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range nodeTypeNames {
		if n == name {
			return t, nil
		}
	}
	return NodeUnknown, fmt.Errorf("unknown node type %q", s)
}

// IsBeta reports whether nodes of this type have a right input.
func (t NodeType) IsBeta() bool {
	switch t {
	case NodeJoin, NodeNot, NodeExists, NodeAccumulate:
		return true
	default:
		return false
	}
}

// IsEnd reports whether the type ends a path.
func (t NodeType) IsEnd() bool {
	return t == NodeTerminal || t == NodeRightInputAdapter
}

// IsLeftTupleSource reports whether nodes of this type propagate to sinks.
func (t NodeType) IsLeftTupleSource() bool {
	return t != NodeUnknown && !t.IsEnd()
}

// RecordsBit reports whether a member of this type owns a bit in its segment's linked mask.
// Eval, from, async-send and conditional-branch members consume a position but record nothing.
func (t NodeType) RecordsBit() bool {
	switch t {
	case NodeRootAdapter, NodeReactiveFrom, NodeTimer, NodeAsyncReceive, NodeQueryElement:
		return true
	default:
		return t.IsBeta()
	}
}

// Node is one vertex of the rule network. Nodes are immutable once the
// network is built; callers must treat every field as read-only.
type Node struct {
	ID   NodeID
	Type NodeType
	Name string

	// Source is the single upstream node, NoNode for root adapters.
	Source NodeID
	// Sinks are the downstream nodes in propagation order.
	Sinks []NodeID

	// RightInput is the right input adapter feeding a beta node, or NoNode
	// when the right input comes straight from the fact side.
	RightInput NodeID
	// RightPassive marks a right input that never triggers re-evaluation.
	RightPassive bool
	// Constraints are the beta constraints. Only their presence matters here.
	Constraints []string

	// Query is the query a root adapter roots, or the query a query element calls.
	Query string
	// Abductive marks a query element whose results are asserted facts.
	Abductive bool

	// Rule names the rule of a terminal node.
	Rule string

	// SubnetworkStart is the node a right input adapter's sub-network
	// branches off from.
	SubnetworkStart NodeID

	// Gates lists the beta nodes a right input adapter feeds. Derived.
	Gates []NodeID
	// Rules lists the rules whose terminal is reachable from this node. Derived.
	Rules []string
}

// HasRule reports whether the node is associated with the named rule.
func (n *Node) HasRule(rule string) bool {
	for _, r := range n.Rules {
		if r == rule {
			return true
		}
	}
	return false
}

// Label returns the node name, falling back to type and id.
func (n *Node) Label() string {
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("%s#%d", n.Type, n.ID)
}
