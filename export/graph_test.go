package export

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/graph"
)

func testGraph() *graph.Graph {
	return &graph.Graph{
		Nodes: []graph.Node{
			{ID: "n1", Kind: graph.NodePerson, Label: "Alice", Confidence: 0.9},
			{ID: "n2", Kind: graph.NodePlace, Label: `Pont "Neuf"`, Confidence: 0.8},
		},
		Edges: []graph.Edge{
			{ID: "e1", Type: "located_in", From: "n1", To: "n2", Confidence: 0.7},
		},
	}
}

func testLocked() *graph.Locked {
	return &graph.Locked{
		Graph: testGraph(),
		Locks: constraint.Locks{constraint.LockIdentity: true},
		Annotations: []graph.LockAnnotation{
			{Lock: constraint.LockIdentity, ElementID: "n1", Surface: "Alice"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("TURTLE")
	require.NoError(t, err)
	assert.Equal(t, FormatTurtle, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}

func TestGetFormatInfo(t *testing.T) {
	info, ok := GetFormatInfo(FormatDOT)
	require.True(t, ok)
	assert.Equal(t, ".dot", info.Extension)
	assert.Equal(t, "text/vnd.graphviz", info.MIMEType)

	_, ok = GetFormatInfo(Format("csv"))
	assert.False(t, ok)
}

func TestExportTurtle(t *testing.T) {
	out, err := NewLockedExporter(testLocked()).Export(FormatTurtle)
	require.NoError(t, err)

	assert.Contains(t, out, "@prefix lnaes: <"+Namespace+"> .")
	assert.Contains(t, out, "lnaes:n1")
	assert.Contains(t, out, "rdf:type lnaes:person")
	assert.Contains(t, out, `rdfs:label "Alice"`)
	assert.Contains(t, out, `lnaes:lockedBy "identity"`)
	assert.Contains(t, out, `rdfs:label "Pont \"Neuf\""`)
	assert.Contains(t, out, "lnaes:n1 lnaes:located_in lnaes:n2 .")
}

func TestExportNTriples(t *testing.T) {
	out, err := NewGraphExporter(testGraph()).Export(FormatNTriples)
	require.NoError(t, err)

	assert.Contains(t, out,
		"<"+Namespace+"n1> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <"+Namespace+"person> .")
	assert.Contains(t, out,
		"<"+Namespace+"n1> <"+Namespace+"located_in> <"+Namespace+"n2> .")
}

func TestExportDOT(t *testing.T) {
	out, err := NewLockedExporter(testLocked()).Export(FormatDOT)
	require.NoError(t, err)

	assert.Contains(t, out, "digraph semantic {")
	assert.Contains(t, out, "rankdir=LR")
	assert.Contains(t, out, `label="Alice\n(person)", peripheries=2`)
	assert.Contains(t, out, `"n1" -> "n2" [label="located_in"];`)
	// The unlocked node has no double border.
	assert.Contains(t, out, `label="Pont \"Neuf\"\n(place)"];`)
}

func TestExportJSON(t *testing.T) {
	out, err := NewLockedExporter(testLocked()).Export(FormatJSON)
	require.NoError(t, err)

	var doc struct {
		Nodes  []graph.Node `json:"nodes"`
		Edges  []graph.Edge `json:"edges"`
		Locked []struct {
			ElementID string                `json:"element_id"`
			Locks     []constraint.LockName `json:"locks"`
			Surface   string                `json:"surface"`
		} `json:"locked"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	require.Len(t, doc.Nodes, 2)
	require.Len(t, doc.Edges, 1)
	require.Len(t, doc.Locked, 1)
	assert.Equal(t, "n1", doc.Locked[0].ElementID)
	assert.Equal(t, "Alice", doc.Locked[0].Surface)
	assert.Equal(t, []constraint.LockName{constraint.LockIdentity}, doc.Locked[0].Locks)
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := NewGraphExporter(testGraph()).Export(Format("csv"))
	assert.Error(t, err)
}
