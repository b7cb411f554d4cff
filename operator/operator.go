// Package operator defines the closed set of pipeline operators, their typed
// input/output payloads, and the data-driven contract schemas validated before
// dispatch and after return. New operator versions register schemas without
// touching orchestration logic.
package operator

import (
	"context"

	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/draft"
	"github.com/lnaes/engine/graph"
)

// Op identifies one of the seven pipeline operators. The set is closed:
// dispatch is compile-time checked through the typed interfaces below, and Op
// names stages in schemas, audit entries, and errors.
type Op string

const (
	OpExtract Op = "EXTRACT"
	OpResolve Op = "RESOLVE"
	OpWeight  Op = "WEIGHT"
	OpLock    Op = "LOCK"
	OpStyle   Op = "STYLE"
	OpVerify  Op = "VERIFY"
	OpRewrite Op = "REWRITE"
)

// Ops lists all operators in pipeline order.
func Ops() []Op {
	return []Op{OpExtract, OpResolve, OpWeight, OpLock, OpStyle, OpVerify, OpRewrite}
}

// StyleSignal is STYLE's provider-agnostic output: the generation conditioning
// handed across the provider boundary. The orchestrator never inspects how a
// provider turns it into prompt formatting.
type StyleSignal struct {
	Tone      string   `json:"tone"`
	Intensity float64  `json:"intensity"`
	Fidelity  float64  `json:"fidelity"`
	Targets   []string `json:"targets,omitempty"`
	Brief     string   `json:"brief,omitempty"`
}

// ExtractInput feeds normalized text into EXTRACT.
type ExtractInput struct {
	Text string `json:"text"`
}

// ExtractOutput carries the candidate graph populated by extraction.
type ExtractOutput struct {
	Candidates *graph.Graph `json:"candidates"`
}

// ResolveInput feeds extraction candidates into RESOLVE.
type ResolveInput struct {
	Candidates *graph.Graph `json:"candidates"`
}

// ResolveOutput carries the deduplicated, resolved graph.
type ResolveOutput struct {
	Graph *graph.Graph `json:"graph"`
}

// WeightInput feeds the resolved graph into WEIGHT together with the ontology
// version the run pinned.
type WeightInput struct {
	Graph           *graph.Graph `json:"graph"`
	OntologyVersion string       `json:"ontology_version,omitempty"`
}

// WeightOutput carries the graph with ontology-dimension weights applied.
type WeightOutput struct {
	Graph *graph.Graph `json:"graph"`
}

// LockInput feeds the weighted graph plus the run's locks and invariants into
// LOCK.
type LockInput struct {
	Graph      *graph.Graph           `json:"graph"`
	Locks      constraint.Locks       `json:"locks"`
	Invariants []constraint.Invariant `json:"invariants,omitempty"`
}

// LockOutput carries the constraint-locked graph. It is never produced when a
// lock/invariant conflict exists.
type LockOutput struct {
	Locked *graph.Locked `json:"locked"`
}

// StyleInput feeds dials and targets into STYLE.
type StyleInput struct {
	Dials        constraint.Dials `json:"dials"`
	StyleTargets []string         `json:"style_targets,omitempty"`
	EditorBrief  string           `json:"editor_brief,omitempty"`
}

// StyleOutput carries the provider-agnostic style signal.
type StyleOutput struct {
	Signal StyleSignal `json:"signal"`
}

// VerifyInput feeds the current draft and locked graph into VERIFY.
type VerifyInput struct {
	Draft        *draft.Draft  `json:"draft"`
	Locked       *graph.Locked `json:"locked"`
	EditorBrief  string        `json:"editor_brief,omitempty"`
	StyleTargets []string      `json:"style_targets,omitempty"`
}

// VerifyOutput carries violations and observational metrics. Violations is an
// empty slice, never nil, when the draft is clean.
type VerifyOutput struct {
	Violations []constraint.Violation `json:"violations"`
	Metrics    []constraint.Metric    `json:"metrics,omitempty"`
}

// RewriteInput feeds the draft and the precedence-ordered violation list into
// REWRITE.
type RewriteInput struct {
	Draft      *draft.Draft           `json:"draft"`
	Violations []constraint.Violation `json:"violations"`
}

// RewriteOutput carries the minimally edited draft.
type RewriteOutput struct {
	Draft *draft.Draft `json:"draft"`
}

// The seven operator interfaces. Implementations live behind the registry;
// the orchestrator dispatches through these, never through runtime lookup.

type Extractor interface {
	Extract(ctx context.Context, in ExtractInput) (*ExtractOutput, error)
}

type Resolver interface {
	Resolve(ctx context.Context, in ResolveInput) (*ResolveOutput, error)
}

type Weighter interface {
	Weight(ctx context.Context, in WeightInput) (*WeightOutput, error)
}

type Locker interface {
	Lock(ctx context.Context, in LockInput) (*LockOutput, error)
}

type Styler interface {
	Style(ctx context.Context, in StyleInput) (*StyleOutput, error)
}

type Verifier interface {
	Verify(ctx context.Context, in VerifyInput) (*VerifyOutput, error)
}

type Rewriter interface {
	Rewrite(ctx context.Context, in RewriteInput) (*RewriteOutput, error)
}

// Registry holds the active implementation for each operator plus the schema
// registry their contracts are validated against.
type Registry struct {
	Extractor Extractor
	Resolver  Resolver
	Weighter  Weighter
	Locker    Locker
	Styler    Styler
	Verifier  Verifier
	Rewriter  Rewriter

	Schemas *SchemaRegistry
}

// Complete reports whether every operator has an implementation.
func (r *Registry) Complete() bool {
	return r.Extractor != nil && r.Resolver != nil && r.Weighter != nil &&
		r.Locker != nil && r.Styler != nil && r.Verifier != nil && r.Rewriter != nil
}
