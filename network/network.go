package network

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"

	"github.com/c360/rulenet/errors"
)

var networkIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Network is an immutable rule network. Nodes live in an arena addressed by NodeID.
type Network struct {
	id          string
	nodes       []Node
	queries     map[string]NodeID
	fingerprint string
}

// ID returns the network identifier.
func (n *Network) ID() string { return n.id }

// Len returns the number of nodes.
func (n *Network) Len() int { return len(n.nodes) }

// Node returns the node with the given id, or nil when out of range.
func (n *Network) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(n.nodes) {
		return nil
	}
	return &n.nodes[id]
}

// Has reports whether id addresses a node of this network.
func (n *Network) Has(id NodeID) bool {
	return id >= 0 && int(id) < len(n.nodes)
}

// QueryRoot returns the root adapter of the named query.
func (n *Network) QueryRoot(name string) (NodeID, bool) {
	id, ok := n.queries[name]
	return id, ok
}

// Fingerprint identifies the topology. Two networks with equal fingerprints
// segment identically, so segment prototypes can be shared between them.
func (n *Network) Fingerprint() string {
	return n.fingerprint
}

// ByName returns the first node with the given name.
func (n *Network) ByName(name string) (NodeID, bool) {
	for i := range n.nodes {
		if n.nodes[i].Name == name {
			return NodeID(i), true
		}
	}
	return NoNode, false
}

// Filter returns the ids of nodes matching keep, in id order.
func (n *Network) Filter(keep func(*Node) bool) []NodeID {
	var ids []NodeID
	for i := range n.nodes {
		if keep(&n.nodes[i]) {
			ids = append(ids, NodeID(i))
		}
	}
	return ids
}

// EndNodes returns every terminal and right input adapter.
func (n *Network) EndNodes() []NodeID {
	return n.Filter(func(node *Node) bool { return node.Type.IsEnd() })
}

// newNetwork derives Gates, Rules, the query index and the fingerprint, then validates.
func newNetwork(id string, nodes []Node) (*Network, error) {
	net := &Network{
		id:      id,
		nodes:   nodes,
		queries: make(map[string]NodeID),
	}
	for i := range net.nodes {
		net.nodes[i].Gates = nil
		net.nodes[i].Rules = nil
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}

	for i := range net.nodes {
		node := &net.nodes[i]
		if node.Type.IsBeta() && node.RightInput != NoNode {
			ria := &net.nodes[node.RightInput]
			ria.Gates = append(ria.Gates, node.ID)
		}
		if node.Type == NodeRootAdapter && node.Query != "" {
			net.queries[node.Query] = node.ID
		}
	}
	if err := net.validateGates(); err != nil {
		return nil, err
	}
	net.deriveRules()
	net.fingerprint = net.computeFingerprint()
	return net, nil
}

func structural(msg string, args ...any) error {
	return errors.WrapFatal(errors.ErrStructural, "Network", "Validate", fmt.Sprintf(msg, args...))
}

// Validate checks the structural rules every network must satisfy.
func (n *Network) Validate() error {
	if !networkIDPattern.MatchString(n.id) {
		return structural("network id %q must match %s", n.id, networkIDPattern)
	}
	if len(n.nodes) == 0 {
		return structural("network %q has no nodes", n.id)
	}

	queries := make(map[string]bool)
	for i := range n.nodes {
		node := &n.nodes[i]
		if node.ID != NodeID(i) {
			return structural("node at index %d carries id %d", i, node.ID)
		}
		if err := n.validateNode(node); err != nil {
			return err
		}
		if node.Type == NodeRootAdapter && node.Query != "" {
			if queries[node.Query] {
				return structural("query %q is rooted twice", node.Query)
			}
			queries[node.Query] = true
		}
	}

	for i := range n.nodes {
		node := &n.nodes[i]
		if node.Type == NodeQueryElement && !queries[node.Query] {
			return errors.WrapFatal(errors.ErrQueryNotFound, "Network", "Validate",
				fmt.Sprintf("node %s calls unknown query %q", node.Label(), node.Query))
		}
	}
	return n.validateAcyclic()
}

func (n *Network) validateNode(node *Node) error {
	if node.Type == NodeUnknown || node.Type > NodeTerminal {
		return structural("node %d has invalid type %d", node.ID, node.Type)
	}

	if node.Type == NodeRootAdapter {
		if node.Source != NoNode {
			return structural("root adapter %s must not have a source", node.Label())
		}
	} else {
		if !n.Has(node.Source) {
			return structural("node %s has no valid source", node.Label())
		}
		if !n.nodes[node.Source].Type.IsLeftTupleSource() {
			return structural("node %s has end node %s as source", node.Label(), n.nodes[node.Source].Label())
		}
		if !containsID(n.nodes[node.Source].Sinks, node.ID) {
			return structural("node %s is missing from the sinks of its source", node.Label())
		}
	}

	for _, sink := range node.Sinks {
		if !n.Has(sink) || n.nodes[sink].Source != node.ID {
			return structural("node %s lists sink %d that does not point back", node.Label(), sink)
		}
	}
	if node.Type.IsEnd() && len(node.Sinks) > 0 {
		return structural("end node %s must not have sinks", node.Label())
	}

	if node.RightInput != NoNode {
		if !node.Type.IsBeta() {
			return structural("non-beta node %s has a right input", node.Label())
		}
		if !n.Has(node.RightInput) || n.nodes[node.RightInput].Type != NodeRightInputAdapter {
			return structural("node %s right input is not a right input adapter", node.Label())
		}
	}

	switch node.Type {
	case NodeTerminal:
		if node.Rule == "" {
			return structural("terminal %s has no rule", node.Label())
		}
	case NodeQueryElement:
		if node.Query == "" {
			return structural("query element %s names no query", node.Label())
		}
	case NodeRightInputAdapter:
		if !n.Has(node.SubnetworkStart) {
			return structural("right input adapter %s has no sub-network start", node.Label())
		}
		if !n.isStrictAncestor(node.SubnetworkStart, node.Source) {
			return structural("sub-network start of %s is not upstream of its source", node.Label())
		}
	}
	return nil
}

// validateAcyclic walks every node to its root with a step bound.
func (n *Network) validateAcyclic() error {
	for i := range n.nodes {
		id := NodeID(i)
		for steps := 0; id != NoNode; steps++ {
			if steps > len(n.nodes) {
				return structural("node %s is part of a cycle", n.nodes[i].Label())
			}
			id = n.nodes[id].Source
		}
	}
	return nil
}

func (n *Network) validateGates() error {
	for i := range n.nodes {
		node := &n.nodes[i]
		if node.Type != NodeRightInputAdapter {
			continue
		}
		if len(node.Gates) == 0 {
			return structural("right input adapter %s feeds no beta node", node.Label())
		}
		for _, gated := range node.Gates {
			if n.isStrictAncestor(gated, node.ID) {
				return structural("right input adapter %s feeds its own ancestor %s", node.Label(), n.nodes[gated].Label())
			}
		}
	}
	return nil
}

// isStrictAncestor reports whether anc is upstream of id.
func (n *Network) isStrictAncestor(anc, id NodeID) bool {
	if !n.Has(id) {
		return false
	}
	for steps, cur := 0, n.nodes[id].Source; cur != NoNode && steps <= len(n.nodes); steps++ {
		if cur == anc {
			return true
		}
		cur = n.nodes[cur].Source
	}
	return false
}

// deriveRules associates every node with the rules whose terminals it reaches,
// following sinks and, from a right input adapter, the beta nodes it gates.
func (n *Network) deriveRules() {
	done := make([]bool, len(n.nodes))
	var visit func(id NodeID) []string
	visit = func(id NodeID) []string {
		node := &n.nodes[id]
		if done[id] {
			return node.Rules
		}
		done[id] = true

		set := make(map[string]struct{})
		if node.Type == NodeTerminal {
			set[node.Rule] = struct{}{}
		}
		next := node.Sinks
		if node.Type == NodeRightInputAdapter {
			next = node.Gates
		}
		for _, s := range next {
			for _, r := range visit(s) {
				set[r] = struct{}{}
			}
		}
		rules := make([]string, 0, len(set))
		for r := range set {
			rules = append(rules, r)
		}
		sort.Strings(rules)
		node.Rules = rules
		return rules
	}
	for i := range n.nodes {
		visit(NodeID(i))
	}
}

func (n *Network) computeFingerprint() string {
	h := sha256.New()
	for i := range n.nodes {
		node := &n.nodes[i]
		fmt.Fprintf(h, "%d|%d|%d|%v|%d|%t|%t|%s|%t|%s|%d;",
			node.ID, node.Type, node.Source, node.Sinks, node.RightInput, node.RightPassive,
			len(node.Constraints) > 0, node.Query, node.Abductive, node.Rule, node.SubnetworkStart)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
