package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/lnaes/engine/graph"
	"github.com/lnaes/engine/ontology"
	"github.com/lnaes/engine/operator"
)

// Weighter applies ontology-dimension weights to graph elements through the
// read-only knowledge-base handle injected at construction. The handle is
// shared by concurrent runs; the weighter never writes through it.
type Weighter struct {
	kb ontology.KnowledgeBase
}

// NewWeighter creates the built-in weighter over a knowledge base.
func NewWeighter(kb ontology.KnowledgeBase) *Weighter {
	return &Weighter{kb: kb}
}

// Weight annotates nodes with ontology weights and refines node kinds from
// ontology classification. Terms without an entry are left unweighted.
func (w *Weighter) Weight(_ context.Context, in operator.WeightInput) (*operator.WeightOutput, error) {
	if in.Graph == nil {
		return nil, fmt.Errorf("nil graph")
	}

	out := in.Graph.Clone()
	for i := range out.Nodes {
		entry, err := w.kb.Lookup(out.Nodes[i].Label)
		if err != nil {
			if errors.Is(err, ontology.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("ontology lookup %q: %w", out.Nodes[i].Label, err)
		}
		out.Nodes[i].Weights = cloneWeights(entry.Weights)
		if entry.Kind != "" {
			out.Nodes[i].Kind = graph.NodeKind(entry.Kind)
		}
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("weighted graph invalid: %w", err)
	}
	return &operator.WeightOutput{Graph: out}, nil
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
