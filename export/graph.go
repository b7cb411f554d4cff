package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/graph"
)

// Namespace is the IRI prefix for exported graph elements.
const Namespace = "https://lnaes.dev/graph#"

// GraphExporter serializes a semantic graph, optionally carrying its lock
// annotations so consumers can see which elements were constrained.
type GraphExporter struct {
	graph       *graph.Graph
	annotations []graph.LockAnnotation
	prefixes    map[string]string
}

// NewGraphExporter creates an exporter over g.
func NewGraphExporter(g *graph.Graph) *GraphExporter {
	return &GraphExporter{
		graph: g,
		prefixes: map[string]string{
			"rdf":   "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
			"rdfs":  "http://www.w3.org/2000/01/rdf-schema#",
			"lnaes": Namespace,
		},
	}
}

// NewLockedExporter creates an exporter over a locked graph, including its
// lock annotations in the output.
func NewLockedExporter(locked *graph.Locked) *GraphExporter {
	e := NewGraphExporter(locked.Graph)
	e.annotations = locked.Annotations
	return e
}

// Export serializes the graph to the specified format.
func (e *GraphExporter) Export(format Format) (string, error) {
	switch format {
	case FormatTurtle:
		return e.toTurtle(), nil
	case FormatNTriples:
		return e.toNTriples(), nil
	case FormatDOT:
		return e.toDOT(), nil
	case FormatJSON:
		return e.toJSON()
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func (e *GraphExporter) toTurtle() string {
	var sb strings.Builder
	for _, prefix := range []string{"rdf", "rdfs", "lnaes"} {
		fmt.Fprintf(&sb, "@prefix %s: <%s> .\n", prefix, e.prefixes[prefix])
	}
	sb.WriteString("\n")

	locked := e.lockedElements()
	for _, id := range e.graph.NodeIDs() {
		n := e.graph.Node(id)
		fmt.Fprintf(&sb, "lnaes:%s\n", id)
		fmt.Fprintf(&sb, "    rdf:type lnaes:%s ;\n", n.Kind)
		fmt.Fprintf(&sb, "    rdfs:label \"%s\" ;\n", escapeLiteral(n.Label))
		if names := locked[id]; len(names) > 0 {
			fmt.Fprintf(&sb, "    lnaes:lockedBy \"%s\" ;\n", joinLockNames(names))
		}
		fmt.Fprintf(&sb, "    lnaes:confidence %g .\n\n", n.Confidence)
	}
	for _, id := range e.graph.EdgeIDs() {
		ed := e.graph.Edge(id)
		fmt.Fprintf(&sb, "lnaes:%s lnaes:%s lnaes:%s .\n", ed.From, ed.Type, ed.To)
	}
	return sb.String()
}

func (e *GraphExporter) toNTriples() string {
	var sb strings.Builder
	iri := func(local string) string { return "<" + Namespace + local + ">" }

	for _, id := range e.graph.NodeIDs() {
		n := e.graph.Node(id)
		fmt.Fprintf(&sb, "%s <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> %s .\n",
			iri(id), iri(string(n.Kind)))
		fmt.Fprintf(&sb, "%s <http://www.w3.org/2000/01/rdf-schema#label> \"%s\" .\n",
			iri(id), escapeLiteral(n.Label))
	}
	for _, id := range e.graph.EdgeIDs() {
		ed := e.graph.Edge(id)
		fmt.Fprintf(&sb, "%s %s %s .\n", iri(ed.From), iri(ed.Type), iri(ed.To))
	}
	return sb.String()
}

// toDOT renders the graph for Graphviz. Locked nodes are drawn with a double
// border.
func (e *GraphExporter) toDOT() string {
	var sb strings.Builder
	sb.WriteString("digraph semantic {\n")
	sb.WriteString("    rankdir=LR;\n    node [shape=box];\n\n")

	locked := e.lockedElements()
	for _, id := range e.graph.NodeIDs() {
		n := e.graph.Node(id)
		attrs := fmt.Sprintf("label=\"%s\\n(%s)\"", escapeDOT(n.Label), n.Kind)
		if len(locked[id]) > 0 {
			attrs += ", peripheries=2"
		}
		fmt.Fprintf(&sb, "    %q [%s];\n", id, attrs)
	}
	sb.WriteString("\n")
	for _, id := range e.graph.EdgeIDs() {
		ed := e.graph.Edge(id)
		fmt.Fprintf(&sb, "    %q -> %q [label=%q];\n", ed.From, ed.To, escapeDOT(ed.Type))
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (e *GraphExporter) toJSON() (string, error) {
	type lockedElement struct {
		ElementID string                `json:"element_id"`
		Locks     []constraint.LockName `json:"locks"`
		Surface   string                `json:"surface,omitempty"`
	}
	doc := struct {
		Nodes  []graph.Node    `json:"nodes"`
		Edges  []graph.Edge    `json:"edges"`
		Locked []lockedElement `json:"locked,omitempty"`
	}{}

	for _, id := range e.graph.NodeIDs() {
		doc.Nodes = append(doc.Nodes, *e.graph.Node(id))
	}
	for _, id := range e.graph.EdgeIDs() {
		doc.Edges = append(doc.Edges, *e.graph.Edge(id))
	}
	for _, a := range e.annotations {
		doc.Locked = append(doc.Locked, lockedElement{
			ElementID: a.ElementID,
			Locks:     []constraint.LockName{a.Lock},
			Surface:   a.Surface,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal graph: %w", err)
	}
	return string(data), nil
}

// lockedElements indexes lock annotations by element ID.
func (e *GraphExporter) lockedElements() map[string][]constraint.LockName {
	out := make(map[string][]constraint.LockName)
	for _, a := range e.annotations {
		out[a.ElementID] = append(out[a.ElementID], a.Lock)
	}
	return out
}

func joinLockNames(names []constraint.LockName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ",")
}
