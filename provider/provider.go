// Package provider defines the generation boundary: the orchestrator hands an
// adapter a provider-agnostic style signal and a generation request, and gets
// back a draft. Prompt formatting is the adapter's business; the engine never
// sees it.
package provider

import (
	"context"

	"github.com/lnaes/engine/draft"
	"github.com/lnaes/engine/graph"
	"github.com/lnaes/engine/operator"
)

// Request is a generation request. Everything in it is provider-agnostic.
type Request struct {
	RunID  string               `json:"run_id"`
	Source string               `json:"source"`
	Signal operator.StyleSignal `json:"signal"`
	Locked *graph.Locked        `json:"locked"`
}

// Generator produces the initial draft for a run. Implementations that call
// external services must honor ctx deadlines; the orchestrator classifies any
// failure as a provider error and applies its bounded retry policy.
type Generator interface {
	Generate(ctx context.Context, req Request) (*draft.Draft, error)
}

// Passthrough is a deterministic generator that drafts the source text
// directly, substituting locked surface forms where the source already
// mentions them. It keeps the engine runnable without an external model and
// anchors provider-boundary tests.
type Passthrough struct{}

// Generate splits the source into paragraph spans.
func (Passthrough) Generate(_ context.Context, req Request) (*draft.Draft, error) {
	return draft.New(req.Source), nil
}
