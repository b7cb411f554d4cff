// Package graph defines the semantic graph built by the extraction stages:
// typed nodes and directed edges carrying confidence scores and ontology
// dimension weights.
package graph

import (
	"fmt"
	"sort"
)

// NodeKind classifies a node.
type NodeKind string

const (
	NodeEntity   NodeKind = "entity"
	NodePerson   NodeKind = "person"
	NodePlace    NodeKind = "place"
	NodeConcept  NodeKind = "concept"
	NodeNarrator NodeKind = "narrator"
)

// Node is a graph vertex. ID is unique within a graph instance.
type Node struct {
	ID         string             `json:"id"`
	Kind       NodeKind           `json:"kind"`
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Weights    map[string]float64 `json:"weights,omitempty"`
}

// Edge is a typed, directed edge between two nodes. ID is unique within a
// graph instance; From and To must reference existing node IDs.
type Edge struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	From       string             `json:"from"`
	To         string             `json:"to"`
	Confidence float64            `json:"confidence"`
	Weights    map[string]float64 `json:"weights,omitempty"`
}

// Graph is a set of nodes and typed directed edges.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Validate checks the structural invariants: unique node and edge identifiers,
// edges referencing only existing nodes, confidences in [0,1].
func (g *Graph) Validate() error {
	nodeIDs := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if nodeIDs[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		nodeIDs[n.ID] = true
		if n.Confidence < 0 || n.Confidence > 1 {
			return fmt.Errorf("node %q confidence out of range: %g", n.ID, n.Confidence)
		}
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID == "" {
			return fmt.Errorf("edge with empty id")
		}
		if edgeIDs[e.ID] {
			return fmt.Errorf("duplicate edge id %q", e.ID)
		}
		edgeIDs[e.ID] = true
		if !nodeIDs[e.From] {
			return fmt.Errorf("edge %q references unknown node %q", e.ID, e.From)
		}
		if !nodeIDs[e.To] {
			return fmt.Errorf("edge %q references unknown node %q", e.ID, e.To)
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return fmt.Errorf("edge %q confidence out of range: %g", e.ID, e.Confidence)
		}
	}
	return nil
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Edge returns the edge with the given id, or nil.
func (g *Graph) Edge(id string) *Edge {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return &g.Edges[i]
		}
	}
	return nil
}

// NodesOfKind returns nodes of the given kind in declaration order.
func (g *Graph) NodesOfKind(kind NodeKind) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		c.Nodes[i] = n
		c.Nodes[i].Weights = cloneWeights(n.Weights)
	}
	for i, e := range g.Edges {
		c.Edges[i] = e
		c.Edges[i].Weights = cloneWeights(e.Weights)
	}
	return c
}

func cloneWeights(w map[string]float64) map[string]float64 {
	if w == nil {
		return nil
	}
	c := make(map[string]float64, len(w))
	for k, v := range w {
		c[k] = v
	}
	return c
}

// NodeIDs returns all node identifiers in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	sort.Strings(ids)
	return ids
}

// EdgeIDs returns all edge identifiers in sorted order.
func (g *Graph) EdgeIDs() []string {
	ids := make([]string, len(g.Edges))
	for i, e := range g.Edges {
		ids[i] = e.ID
	}
	sort.Strings(ids)
	return ids
}
