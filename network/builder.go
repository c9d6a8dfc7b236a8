package network

import (
	"fmt"

	"github.com/c360/rulenet/errors"
)

// NodeOption configures a node added through a Builder.
type NodeOption func(*Node)

// WithName sets a human readable node name.
func WithName(name string) NodeOption {
	return func(n *Node) { n.Name = name }
}

// WithRightInput feeds a beta node's right input from a right input adapter.
func WithRightInput(ria NodeID) NodeOption {
	return func(n *Node) { n.RightInput = ria }
}

// WithPassiveRight marks the right input as passive.
func WithPassiveRight() NodeOption {
	return func(n *Node) { n.RightPassive = true }
}

// WithConstraints attaches beta constraints.
func WithConstraints(constraints ...string) NodeOption {
	return func(n *Node) { n.Constraints = append(n.Constraints, constraints...) }
}

// WithQuery names the query a root adapter roots or a query element calls.
func WithQuery(name string) NodeOption {
	return func(n *Node) { n.Query = name }
}

// WithAbductive marks a query element as abductive.
func WithAbductive() NodeOption {
	return func(n *Node) { n.Abductive = true }
}

// Builder assembles a Network node by node. Sources must be added before
// their sinks, and sinks keep the order in which they were added.
type Builder struct {
	id    string
	nodes []Node
	err   error
}

// NewBuilder starts a network with the given id.
func NewBuilder(id string) *Builder {
	return &Builder{id: id}
}

// Root adds a root adapter.
func (b *Builder) Root(opts ...NodeOption) NodeID {
	return b.add(NodeRootAdapter, NoNode, opts...)
}

// Add adds a node of type t below source.
func (b *Builder) Add(t NodeType, source NodeID, opts ...NodeOption) NodeID {
	switch t {
	case NodeRootAdapter, NodeTerminal, NodeRightInputAdapter:
		b.fail("use the dedicated builder method for %s nodes", t)
		return NoNode
	}
	return b.add(t, source, opts...)
}

// Terminal adds the terminal node of rule below source.
func (b *Builder) Terminal(source NodeID, rule string, opts ...NodeOption) NodeID {
	id := b.add(NodeTerminal, source, opts...)
	if id != NoNode {
		b.nodes[id].Rule = rule
	}
	return id
}

// RightInputAdapter ends a sub-network at source. start is the node the
// sub-network branches off from.
func (b *Builder) RightInputAdapter(source, start NodeID, opts ...NodeOption) NodeID {
	id := b.add(NodeRightInputAdapter, source, opts...)
	if id != NoNode {
		b.nodes[id].SubnetworkStart = start
	}
	return id
}

// Build validates the assembled nodes and returns the network.
func (b *Builder) Build() (*Network, error) {
	if b.err != nil {
		return nil, b.err
	}
	nodes := make([]Node, len(b.nodes))
	copy(nodes, b.nodes)
	for i := range nodes {
		nodes[i].Sinks = append([]NodeID(nil), b.nodes[i].Sinks...)
		nodes[i].Constraints = append([]string(nil), b.nodes[i].Constraints...)
	}
	return newNetwork(b.id, nodes)
}

func (b *Builder) add(t NodeType, source NodeID, opts ...NodeOption) NodeID {
	if b.err != nil {
		return NoNode
	}
	if t != NodeRootAdapter && (source < 0 || int(source) >= len(b.nodes)) {
		b.fail("source %d of new %s node does not exist", source, t)
		return NoNode
	}

	id := NodeID(len(b.nodes))
	node := Node{
		ID:              id,
		Type:            t,
		Source:          source,
		RightInput:      NoNode,
		SubnetworkStart: NoNode,
	}
	for _, opt := range opts {
		opt(&node)
	}
	b.nodes = append(b.nodes, node)
	if source != NoNode {
		b.nodes[source].Sinks = append(b.nodes[source].Sinks, id)
	}
	return id
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = errors.WrapFatal(errors.ErrStructural, "Builder", "Add", fmt.Sprintf(format, args...))
	}
}
