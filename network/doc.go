// Package network models the immutable node graph of a production-rule
// network and answers the structural questions segmentation depends on.
//
// # Overview
//
// A Network is an arena of Nodes addressed by NodeID. Every node except a
// root adapter has exactly one source and an ordered list of sinks. Terminal
// nodes end rules; right input adapters end sub-networks that feed the right
// input of a not, exists or accumulate node.
//
// Networks are assembled with a Builder or loaded from YAML:
//
//	b := network.NewBuilder("orders")
//	root := b.Root()
//	customer := b.Add(network.NodeJoin, root)
//	b.Terminal(customer, "greet-customer")
//	net, err := b.Build()
//
// The YAML form references nodes by name:
//
//	id: orders
//	nodes:
//	  - {name: orders, type: root}
//	  - {name: customer, type: join, source: orders}
//	  - {name: greet, type: terminal, source: customer, rule: greet-customer}
//
// # Classifier
//
// IsSegmentRoot, IsSegmentTip, IsNonTerminalTip, CanBeDisabled, TypeMask and
// PathSpec are pure functions of the topology. All of them accept a removing
// terminal so a caller can ask how the network segments once that rule is
// gone, before the removal is applied.
package network
