package network

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulenet/errors"
)

func TestLoadFile(t *testing.T) {
	net, err := LoadFile("testdata/orders.yaml")
	require.NoError(t, err)

	assert.Equal(t, "orders", net.ID())
	assert.Equal(t, 11, net.Len())

	customer, ok := net.ByName("customer")
	require.True(t, ok)
	node := net.Node(customer)
	assert.Equal(t, NodeJoin, node.Type)
	assert.Len(t, node.Sinks, 3)
	assert.Equal(t, []string{"approve-order", "vip-discount"}, node.Rules)

	ria, _ := net.ByName("invoice-ria")
	gated, _ := net.ByName("no-open-invoice")
	assert.Equal(t, []NodeID{gated}, net.Node(ria).Gates)

	vipRoot, _ := net.ByName("vip-root")
	root, ok := net.QueryRoot("vip-customers")
	assert.True(t, ok)
	assert.Equal(t, vipRoot, root)
}

func TestLoadYAML_GeneratesID(t *testing.T) {
	doc := `
nodes:
  - name: r
    type: root
  - name: t
    type: terminal
    source: r
    rule: only
`
	net, err := LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)
	_, err = uuid.Parse(net.ID())
	assert.NoError(t, err)
}

func TestLoadYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		is   error
	}{
		{"malformed", "nodes: [", errors.ErrParsingFailed},
		{"unknown field", "nodes:\n  - name: r\n    type: root\n    colour: red\n", errors.ErrParsingFailed},
		{"unknown type", "nodes:\n  - name: r\n    type: alpha\n", errors.ErrInvalidData},
		{"unknown source", "nodes:\n  - name: r\n    type: root\n  - name: t\n    type: terminal\n    source: x\n    rule: a\n", errors.ErrInvalidData},
		{"duplicate name", "nodes:\n  - name: r\n    type: root\n  - name: r\n    type: root\n", errors.ErrInvalidData},
		{"missing name", "nodes:\n  - type: root\n", errors.ErrInvalidData},
		{"structural", "nodes:\n  - name: r\n    type: root\n  - name: t\n    type: terminal\n    source: r\n", errors.ErrStructural},
		{"missing query", "nodes:\n  - name: r\n    type: root\n  - name: q\n    type: query-element\n    source: r\n    query: nope\n", errors.ErrQueryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "documents fail as invalid input: %v", err)
			assert.True(t, errors.Is(err, tt.is), "expected %v in %v", tt.is, err)
		})
	}
}

func TestEncodeYAML_RoundTrip(t *testing.T) {
	net, err := LoadFile("testdata/orders.yaml")
	require.NoError(t, err)

	data, err := net.EncodeYAML()
	require.NoError(t, err)

	again, err := LoadYAML(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, net.Fingerprint(), again.Fingerprint())
	assert.Equal(t, net.ID(), again.ID())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("testdata/does-not-exist.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
