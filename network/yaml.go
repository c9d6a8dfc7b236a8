package network

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/c360/rulenet/errors"
)

// Document is the YAML form of a network. Nodes reference each other by
// name and sinks follow document order.
type Document struct {
	ID    string         `yaml:"id,omitempty"`
	Nodes []NodeDocument `yaml:"nodes"`
}

// NodeDocument is the YAML form of a single node.
type NodeDocument struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Source      string   `yaml:"source,omitempty"`
	Right       string   `yaml:"right,omitempty"`
	Passive     bool     `yaml:"passive,omitempty"`
	Constraints []string `yaml:"constraints,omitempty"`
	Query       string   `yaml:"query,omitempty"`
	Abductive   bool     `yaml:"abductive,omitempty"`
	Rule        string   `yaml:"rule,omitempty"`
	Start       string   `yaml:"start,omitempty"`
}

// LoadFile reads a YAML network document from path.
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "network", "LoadFile", fmt.Sprintf("open %s", path))
	}
	defer f.Close()
	return LoadYAML(f)
}

// LoadYAML decodes a network document. A document without an id gets a random one.
func LoadYAML(r io.Reader) (*Network, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"network", "LoadYAML", "decode document")
	}
	return doc.Network()
}

// Network resolves names and builds the network described by the document.
func (d Document) Network() (*Network, error) {
	id := d.ID
	if id == "" {
		id = uuid.New().String()
	}

	index := make(map[string]NodeID, len(d.Nodes))
	for i, nd := range d.Nodes {
		if nd.Name == "" {
			return nil, invalidDoc("node %d has no name", i)
		}
		if _, dup := index[nd.Name]; dup {
			return nil, invalidDoc("node name %q is used twice", nd.Name)
		}
		index[nd.Name] = NodeID(i)
	}
	ref := func(owner, field, name string) (NodeID, error) {
		if name == "" {
			return NoNode, nil
		}
		id, ok := index[name]
		if !ok {
			return NoNode, invalidDoc("node %q: %s refers to unknown node %q", owner, field, name)
		}
		return id, nil
	}

	nodes := make([]Node, len(d.Nodes))
	for i, nd := range d.Nodes {
		t, err := ParseNodeType(nd.Type)
		if err != nil {
			return nil, invalidDoc("node %q: %v", nd.Name, err)
		}
		node := Node{
			ID:           NodeID(i),
			Type:         t,
			Name:         nd.Name,
			RightPassive: nd.Passive,
			Constraints:  append([]string(nil), nd.Constraints...),
			Query:        nd.Query,
			Abductive:    nd.Abductive,
			Rule:         nd.Rule,
		}
		if node.Source, err = ref(nd.Name, "source", nd.Source); err != nil {
			return nil, err
		}
		if node.RightInput, err = ref(nd.Name, "right", nd.Right); err != nil {
			return nil, err
		}
		if node.SubnetworkStart, err = ref(nd.Name, "start", nd.Start); err != nil {
			return nil, err
		}
		nodes[i] = node
	}
	for i := range nodes {
		if src := nodes[i].Source; src != NoNode {
			nodes[src].Sinks = append(nodes[src].Sinks, nodes[i].ID)
		}
	}

	net, err := newNetwork(id, nodes)
	if err != nil {
		return nil, errors.WrapInvalid(err, "network", "LoadYAML", fmt.Sprintf("validate network %q", id))
	}
	return net, nil
}

// Document converts the network back into its YAML form.
func (n *Network) Document() Document {
	doc := Document{ID: n.id, Nodes: make([]NodeDocument, len(n.nodes))}
	name := func(id NodeID) string {
		if id == NoNode {
			return ""
		}
		return n.nodes[id].Label()
	}
	for i := range n.nodes {
		node := &n.nodes[i]
		doc.Nodes[i] = NodeDocument{
			Name:        node.Label(),
			Type:        node.Type.String(),
			Source:      name(node.Source),
			Right:       name(node.RightInput),
			Passive:     node.RightPassive,
			Constraints: node.Constraints,
			Query:       node.Query,
			Abductive:   node.Abductive,
			Rule:        node.Rule,
			Start:       name(node.SubnetworkStart),
		}
	}
	return doc
}

// EncodeYAML encodes the network as a YAML document.
func (n *Network) EncodeYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n.Document()); err != nil {
		return nil, errors.WrapInvalid(err, "network", "EncodeYAML", "encode document")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.WrapInvalid(err, "network", "EncodeYAML", "flush document")
	}
	return buf.Bytes(), nil
}

func invalidDoc(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidData, fmt.Sprintf(format, args...)),
		"network", "LoadYAML", "resolve document")
}
