package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/lnaes/engine/graph"
	"github.com/lnaes/engine/operator"
)

// resolveBoost is added to a candidate's confidence for each merged duplicate,
// capped at 1.
const resolveBoost = 0.2

// Resolver merges duplicate candidates into a resolved graph: case-insensitive
// label matches collapse into the first-seen node, and edges are remapped and
// deduplicated.
type Resolver struct{}

// NewResolver creates the built-in resolver.
func NewResolver() *Resolver { return &Resolver{} }

// Resolve deduplicates the candidate graph.
func (r *Resolver) Resolve(_ context.Context, in operator.ResolveInput) (*operator.ResolveOutput, error) {
	if in.Candidates == nil {
		return nil, fmt.Errorf("nil candidate graph")
	}
	if err := in.Candidates.Validate(); err != nil {
		return nil, fmt.Errorf("candidate graph invalid: %w", err)
	}

	out := &graph.Graph{}
	canonical := make(map[string]string) // lowered label -> canonical node id
	remap := make(map[string]string)     // old node id -> canonical node id

	for _, n := range in.Candidates.Nodes {
		key := strings.ToLower(n.Label)
		if id, seen := canonical[key]; seen {
			remap[n.ID] = id
			if kept := out.Node(id); kept != nil {
				kept.Confidence = min(1, kept.Confidence+resolveBoost)
			}
			continue
		}
		canonical[key] = n.ID
		remap[n.ID] = n.ID
		out.Nodes = append(out.Nodes, n)
	}

	seenEdges := make(map[string]bool)
	for _, e := range in.Candidates.Edges {
		e.From = remap[e.From]
		e.To = remap[e.To]
		if e.From == e.To {
			continue
		}
		key := e.From + "|" + e.Type + "|" + e.To
		if seenEdges[key] {
			continue
		}
		seenEdges[key] = true
		out.Edges = append(out.Edges, e)
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("resolved graph invalid: %w", err)
	}
	return &operator.ResolveOutput{Graph: out}, nil
}
