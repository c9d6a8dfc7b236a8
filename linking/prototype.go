package linking

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/network"
	"github.com/c360/rulenet/pkg/cache"
)

// Prototype is the instance-independent layout of one segment. Instances
// built over the same topology restore segments from it instead of walking
// the network again.
type Prototype struct {
	Network           string            `json:"network"`
	Root              network.NodeID    `json:"root"`
	Tip               network.NodeID    `json:"tip"`
	EndNode           network.NodeID    `json:"end_node"`
	Members           []PrototypeMember `json:"members"`
	AllLinkedTestMask uint64            `json:"all_linked_test_mask"`
	// InitialLinkedMask holds the bits of members that start linked.
	InitialLinkedMask uint64           `json:"initial_linked_mask"`
	Pos               int              `json:"pos"`
	PosBit            uint64           `json:"pos_bit"`
	NodeTypes         network.TypeMask `json:"node_types"`
}

// PrototypeMember is one member node of a prototype and its bit.
type PrototypeMember struct {
	Node network.NodeID   `json:"node"`
	Type network.NodeType `json:"type"`
	Bit  uint64           `json:"bit"`
}

// PrototypeStore shares prototypes between instances. Register is
// first-writer-wins: it returns the stored prototype and whether p was the
// one stored.
type PrototypeStore interface {
	Lookup(key string) (*Prototype, bool, error)
	Register(key string, p *Prototype) (*Prototype, bool, error)
}

// PrototypeKey identifies the prototype of the segment rooted at root.
func PrototypeKey(net *network.Network, root network.NodeID) string {
	return fmt.Sprintf("%s.%s.%d", net.ID(), net.Fingerprint(), root)
}

// CacheStore keeps prototypes in a process-local cache.
type CacheStore struct {
	cache cache.Cache[*Prototype]
}

// NewCacheStore creates a store over c.
func NewCacheStore(c cache.Cache[*Prototype]) *CacheStore {
	return &CacheStore{cache: c}
}

// Lookup implements PrototypeStore.
func (s *CacheStore) Lookup(key string) (*Prototype, bool, error) {
	p, ok := s.cache.Get(key)
	return p, ok, nil
}

// Register implements PrototypeStore.
func (s *CacheStore) Register(key string, p *Prototype) (*Prototype, bool, error) {
	return s.cache.SetIfAbsent(key, p)
}

// TieredStore reads through a local store to a shared one.
type TieredStore struct {
	local  PrototypeStore
	shared PrototypeStore
}

// NewTieredStore creates a store that consults local before shared.
func NewTieredStore(local, shared PrototypeStore) *TieredStore {
	return &TieredStore{local: local, shared: shared}
}

// Lookup implements PrototypeStore. Shared hits are copied into the local store.
func (s *TieredStore) Lookup(key string) (*Prototype, bool, error) {
	if p, ok, err := s.local.Lookup(key); err == nil && ok {
		return p, true, nil
	}
	p, ok, err := s.shared.Lookup(key)
	if err != nil || !ok {
		return nil, false, err
	}
	if winner, _, err := s.local.Register(key, p); err == nil {
		p = winner
	}
	return p, true, nil
}

// Register implements PrototypeStore. The shared store decides the winner.
func (s *TieredStore) Register(key string, p *Prototype) (*Prototype, bool, error) {
	winner, stored, err := s.shared.Register(key, p)
	if err != nil {
		return nil, false, err
	}
	if _, _, err := s.local.Register(key, winner); err != nil {
		return nil, false, err
	}
	return winner, stored, nil
}

func (in *Instance) capturePrototype(seg *SegmentMemory) *Prototype {
	p := &Prototype{
		Network:           in.net.ID(),
		Root:              seg.Root,
		Tip:               seg.Tip,
		EndNode:           seg.EndNode,
		Members:           make([]PrototypeMember, 0, len(seg.Members)),
		AllLinkedTestMask: seg.AllLinkedTestMask,
		Pos:               seg.Pos,
		PosBit:            seg.PosBit,
		NodeTypes:         seg.NodeTypes,
	}
	for _, id := range seg.Members {
		node := in.net.Node(id)
		bit := in.memories[id].Bit
		p.Members = append(p.Members, PrototypeMember{Node: id, Type: node.Type, Bit: bit})
		if node.Type == network.NodeNot {
			p.InitialLinkedMask |= bit
		}
	}
	return p
}

// sameLayout reports whether two prototypes describe the same segment.
func (p *Prototype) sameLayout(other *Prototype) bool {
	return cmp.Equal(p, other)
}

func (in *Instance) registerPrototype(seg *SegmentMemory) {
	if in.store == nil {
		return
	}
	key := PrototypeKey(in.net, seg.Root)
	p := in.capturePrototype(seg)
	winner, stored, err := in.store.Register(key, p)
	switch {
	case err != nil:
		in.metrics.registration("error")
		in.logger.Warn("prototype registration failed", "key", key, "error", err)
	case stored:
		in.metrics.registration("stored")
		in.logger.Debug("prototype registered", "key", key)
	case !winner.sameLayout(p):
		in.metrics.registration("mismatch")
		in.logger.Warn("discarding prototype with a different layout", "key", key)
	default:
		in.metrics.registration("discarded")
		in.logger.Debug("prototype already registered", "key", key)
	}
}

// restoreFromPrototype restores the segment rooted at root when the store
// holds a usable prototype for it.
func (in *Instance) restoreFromPrototype(root network.NodeID) (*SegmentMemory, bool, error) {
	if in.store == nil {
		return nil, false, nil
	}
	key := PrototypeKey(in.net, root)
	p, ok, err := in.store.Lookup(key)
	if err != nil {
		in.metrics.lookup("error")
		in.logger.Warn("prototype lookup failed", "key", key, "error", err)
		return nil, false, nil
	}
	if !ok {
		in.metrics.lookup("miss")
		return nil, false, nil
	}
	if err := in.validatePrototype(root, p); err != nil {
		in.metrics.lookup("invalid")
		in.logger.Warn("ignoring prototype", "key", key, "error", err)
		return nil, false, nil
	}
	in.metrics.lookup("hit")

	seg, err := in.restore(p)
	return seg, true, err
}

// validatePrototype checks that p matches the chain starting at root.
func (in *Instance) validatePrototype(root network.NodeID, p *Prototype) error {
	invalid := func(format string, args ...any) error {
		return errors.WrapInvalid(errors.ErrInvalidData, "Instance", "validatePrototype",
			fmt.Sprintf(format, args...))
	}
	if p.Root != root || len(p.Members) == 0 || p.Members[0].Node != root {
		return invalid("prototype root %d does not match %d", p.Root, root)
	}
	prev := network.NoNode
	for i, m := range p.Members {
		node := in.net.Node(m.Node)
		if node == nil || node.Type != m.Type {
			return invalid("member %d is not a %s", m.Node, m.Type)
		}
		if i > 0 && node.Source != prev {
			return invalid("member %d does not follow %d", m.Node, prev)
		}
		prev = m.Node
	}
	last := in.net.Node(prev)
	switch {
	case p.EndNode != network.NoNode:
		if len(last.Sinks) != 1 || last.Sinks[0] != p.EndNode || p.Tip != p.EndNode {
			return invalid("end node %d does not follow %d", p.EndNode, prev)
		}
	case p.Tip != prev || len(last.Sinks) == 1:
		return invalid("tip %d is not a fork", p.Tip)
	}
	return nil
}

// restore creates a segment from p. Member memories come first so the
// sub-networks they gate can reach back into this segment.
func (in *Instance) restore(p *Prototype) (*SegmentMemory, error) {
	seg := in.newSegment(p.Root)
	seg.Tip = p.Tip
	seg.EndNode = p.EndNode
	seg.AllLinkedTestMask = p.AllLinkedTestMask
	seg.LinkedMask = p.InitialLinkedMask
	seg.Pos = p.Pos
	seg.PosBit = p.PosBit
	seg.NodeTypes = p.NodeTypes
	seg.Restored = true

	for _, m := range p.Members {
		mem := in.memory(m.Node)
		mem.Segment = seg.ID
		mem.Bit = m.Bit
		mem.Linked = m.Type == network.NodeNot
		seg.Members = append(seg.Members, m.Node)
	}
	if p.EndNode != network.NoNode {
		in.memory(p.EndNode).Segment = seg.ID
	}

	for _, id := range seg.Members {
		node := in.net.Node(id)
		mem := in.memories[id]
		switch {
		case node.Type.IsBeta() && node.RightInput != network.NoNode:
			path, err := in.createRiaSegment(node.RightInput)
			if err != nil {
				return nil, err
			}
			mem.RiaPath = path.ID
			if path.Linked {
				in.applyRiaState(mem, node, true)
			}
		case node.Type == network.NodeQueryElement:
			qseg, err := in.querySegment(node.Query)
			if err != nil {
				return nil, err
			}
			mem.QuerySegment = qseg.ID
		}
	}
	if p.EndNode != network.NoNode {
		for _, gate := range in.net.Node(p.EndNode).Gates {
			if _, err := in.getOrCreateSegment(gate); err != nil {
				return nil, err
			}
		}
	}

	if err := in.bindPaths(p.Root, p.Root, seg, 0); err != nil {
		return nil, err
	}
	in.metrics.segment("prototype")
	in.logger.Debug("segment restored from prototype",
		"segment", seg.ID,
		"root", in.net.Node(p.Root).Label(),
		"pos", seg.Pos)

	last := seg.Members[len(seg.Members)-1]
	if err := in.eagerChildren(seg, last); err != nil {
		return nil, err
	}
	return seg, nil
}
