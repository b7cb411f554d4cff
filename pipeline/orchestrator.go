package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lnaes/engine/audit"
	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/draft"
	"github.com/lnaes/engine/graph"
	"github.com/lnaes/engine/metrics"
	"github.com/lnaes/engine/ontology"
	"github.com/lnaes/engine/operator"
	"github.com/lnaes/engine/provider"
)

// StageGenerate names the external generation step in audit entries and
// errors; the seven operator stages use their operator names.
const StageGenerate = "GENERATE"

// defaultCallTimeout bounds one call into an external operator or provider.
const defaultCallTimeout = 60 * time.Second

// defaultMaxIterations is the convergence budget: rewrite attempts before a
// run is declared exhausted.
const defaultMaxIterations = 5

// Orchestrator owns a pipeline's global control flow: the strict
// EXTRACT→RESOLVE→WEIGHT→LOCK→STYLE→generation sequence, then the
// verify/rewrite convergence loop. Each stage consumes only the prior stage's
// declared output plus the run-wide dials/locks/invariants context, every
// payload is contract-validated on both sides of the call, and the audit
// recorder observes every transition.
type Orchestrator struct {
	registry  *operator.Registry
	generator provider.Generator
	kb        ontology.KnowledgeBase

	publisher     *audit.Publisher
	metrics       *metrics.Metrics
	retry         RetryConfig
	callTimeout   time.Duration
	maxIterations int
	logger        *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRetryConfig sets the provider retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithCallTimeout bounds each external operator call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

// WithMaxIterations sets the convergence budget.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) { o.maxIterations = n }
}

// WithPublisher publishes finalized audit cards.
func WithPublisher(p *audit.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator wires an orchestrator over an operator registry, a
// generation provider, and a read-only knowledge base. The knowledge base is
// injected per-orchestrator, never global, so concurrent runs share it
// without coordination.
func NewOrchestrator(registry *operator.Registry, gen provider.Generator, kb ontology.KnowledgeBase, opts ...Option) (*Orchestrator, error) {
	if registry == nil || !registry.Complete() {
		return nil, fmt.Errorf("operator registry incomplete")
	}
	if registry.Schemas == nil {
		return nil, fmt.Errorf("operator registry has no schema registry")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if kb == nil {
		return nil, fmt.Errorf("knowledge base is required")
	}

	o := &Orchestrator{
		registry:      registry,
		generator:     gen,
		kb:            kb,
		retry:         DefaultRetryConfig(),
		callTimeout:   defaultCallTimeout,
		maxIterations: defaultMaxIterations,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RunRequest is one pipeline run's input.
type RunRequest struct {
	// Text is the normalized source text fed to EXTRACT.
	Text string

	// OntologyVersion pins the knowledge-base version. Empty accepts the
	// configured handle's version.
	OntologyVersion string

	Dials        constraint.Dials
	Locks        constraint.Locks
	Invariants   []constraint.Invariant
	EditorBrief  string
	StyleTargets []string
}

// RunResult is a pipeline run's output. On failure Draft may be the
// best-effort draft (convergence exhaustion) or nil, and Card is always the
// finalized, possibly partial, audit card.
type RunResult struct {
	Draft *draft.Draft
	Card  *audit.Card
	Graph *graph.Locked
}

// run carries one run's mutable state.
type run struct {
	id       string
	req      RunRequest
	recorder *audit.Recorder
}

// Run executes the full protocol for one document. Independent runs may
// execute concurrently; they share only the read-only knowledge base and the
// schema registry.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Dials == nil {
		req.Dials = constraint.Dials{}
	}
	if req.Locks == nil {
		req.Locks = constraint.Locks{}
	}
	if err := o.validateRequest(req); err != nil {
		// No audit trail exists yet; the run never started.
		o.metrics.RunCompleted(string(audit.OutcomeFailed))
		return nil, err
	}

	runID := uuid.NewString()
	r := &run{
		id:       runID,
		req:      req,
		recorder: audit.NewRecorder(runID, o.kb.Version(), req.Dials),
	}

	o.logger.Info("Pipeline run started",
		"run_id", r.id,
		"locks", req.Locks.Active(),
		"ontology_version", o.kb.Version())

	result, err := o.runStages(ctx, r)
	if err != nil {
		outcome := audit.OutcomeFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = audit.OutcomeCancelled
		}
		var pe *Error
		stage, detail := "", err.Error()
		if errors.As(err, &pe) {
			stage = pe.Stage
			if pe.Kind == KindRuleConflict && result != nil && result.Draft != nil {
				outcome = audit.OutcomeExhausted
			}
			pe.WithAudit(AuditRef{RunID: r.id, Entries: r.recorder.Len()})
		}
		card := r.recorder.Finalize(outcome, stage, detail)
		o.publish(ctx, card)
		o.metrics.RunCompleted(string(outcome))
		if result == nil {
			result = &RunResult{}
		}
		result.Card = card
		o.logger.Warn("Pipeline run failed",
			"run_id", r.id, "outcome", outcome, "stage", stage, "error", err)
		return result, err
	}

	card := r.recorder.Finalize(audit.OutcomeConverged, "", "")
	o.publish(ctx, card)
	o.metrics.RunCompleted(string(audit.OutcomeConverged))
	result.Card = card

	o.logger.Info("Pipeline run converged", "run_id", r.id, "entries", len(card.Entries))
	return result, nil
}

// validateRequest rejects malformed run input before any stage executes.
func (o *Orchestrator) validateRequest(req RunRequest) error {
	if req.Text == "" {
		return NewInvalidInput("request", fmt.Errorf("text is required"))
	}
	if err := req.Dials.Validate(); err != nil {
		return NewInvalidInput("request", err)
	}
	if err := req.Locks.Validate(); err != nil {
		return NewInvalidInput("request", err)
	}
	for _, inv := range req.Invariants {
		if inv.Severity != constraint.SeverityHard && inv.Severity != constraint.SeveritySoft {
			return NewInvalidInput("request", fmt.Errorf("invariant %q has unknown severity %q", inv.Name, inv.Severity))
		}
	}
	if err := ontology.CheckVersion(o.kb, req.OntologyVersion); err != nil {
		return NewInvalidInput("request", err)
	}
	return nil
}

// runStages executes the stage sequence and the convergence loop.
func (o *Orchestrator) runStages(ctx context.Context, r *run) (*RunResult, error) {
	extractOut, err := invoke(ctx, o, r, operator.OpExtract,
		operator.ExtractInput{Text: r.req.Text}, o.registry.Extractor.Extract)
	if err != nil {
		return nil, err
	}

	resolveOut, err := invoke(ctx, o, r, operator.OpResolve,
		operator.ResolveInput{Candidates: extractOut.Candidates}, o.registry.Resolver.Resolve)
	if err != nil {
		return nil, err
	}

	weightOut, err := invoke(ctx, o, r, operator.OpWeight,
		operator.WeightInput{Graph: resolveOut.Graph, OntologyVersion: r.req.OntologyVersion},
		o.registry.Weighter.Weight)
	if err != nil {
		return nil, err
	}

	lockOut, err := invoke(ctx, o, r, operator.OpLock,
		operator.LockInput{Graph: weightOut.Graph, Locks: r.req.Locks, Invariants: r.req.Invariants},
		o.registry.Locker.Lock)
	if err != nil {
		return nil, err
	}
	locked := lockOut.Locked

	styleOut, err := invoke(ctx, o, r, operator.OpStyle,
		operator.StyleInput{Dials: r.req.Dials, StyleTargets: r.req.StyleTargets, EditorBrief: r.req.EditorBrief},
		o.registry.Styler.Style)
	if err != nil {
		return nil, err
	}

	initial, err := o.generate(ctx, r, locked, styleOut.Signal)
	if err != nil {
		return nil, err
	}

	conv, err := o.converge(ctx, r, initial, locked)
	result := &RunResult{Graph: locked}
	if conv != nil {
		result.Draft = conv.Draft
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// generate obtains the initial draft across the provider boundary.
func (o *Orchestrator) generate(ctx context.Context, r *run, locked *graph.Locked, signal operator.StyleSignal) (*draft.Draft, error) {
	genReq := provider.Request{
		RunID:  r.id,
		Source: r.req.Text,
		Signal: signal,
		Locked: locked,
	}

	start := time.Now()
	var d *draft.Draft
	err := withRetry(ctx, o.retry, o.logger, StageGenerate, o.metrics.CountRetry, func() error {
		cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		out, genErr := o.generator.Generate(cctx, genReq)
		if genErr != nil {
			return NewProviderError(StageGenerate, genErr)
		}
		if out == nil || len(out.Spans) == 0 {
			return NewProviderError(StageGenerate, fmt.Errorf("provider returned empty draft"))
		}
		if vErr := out.Validate(); vErr != nil {
			return NewProviderError(StageGenerate, fmt.Errorf("provider returned invalid draft: %w", vErr))
		}
		d = out
		return nil
	})
	o.metrics.ObserveStage(StageGenerate, time.Since(start).Seconds())
	if err != nil {
		return nil, o.classified(StageGenerate, r, err)
	}

	o.record(r, audit.Entry{
		Stage:     StageGenerate,
		InputHash: audit.Hash(genReq),
		Dials:     r.req.Dials,
		Locks:     r.req.Locks.Active(),
		Note:      fmt.Sprintf("draft generated: %d spans, tone %s", len(d.Spans), signal.Tone),
	})
	return d, nil
}

// invoke dispatches one operator call: input contract check, bounded retry
// with per-call timeout, output contract check, audit entry. A structurally
// invalid operator output is a provider failure, never trusted.
func invoke[I, O any](ctx context.Context, o *Orchestrator, r *run, op operator.Op, in I, fn func(context.Context, I) (*O, error)) (*O, error) {
	stage := string(op)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.registry.Schemas.ValidateInput(op, in); err != nil {
		return nil, o.classified(stage, r, NewInvalidInput(stage, err))
	}

	start := time.Now()
	var out *O
	err := withRetry(ctx, o.retry, o.logger, stage, o.metrics.CountRetry, func() error {
		cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		res, callErr := fn(cctx, in)
		if callErr != nil {
			return o.classifyOperatorError(stage, callErr)
		}
		if vErr := o.registry.Schemas.ValidateOutput(op, res); vErr != nil {
			return NewProviderError(stage, fmt.Errorf("invalid output: %w", vErr))
		}
		out = res
		return nil
	})
	o.metrics.ObserveStage(stage, time.Since(start).Seconds())
	if err != nil {
		return nil, o.classified(stage, r, err)
	}

	o.record(r, audit.Entry{
		Stage:     stage,
		InputHash: audit.Hash(in),
		Dials:     r.req.Dials,
		Locks:     r.req.Locks.Active(),
	})
	return out, nil
}

// classifyOperatorError maps an operator's failure into the taxonomy. A
// constraint conflict is a rule conflict; anything already classified passes
// through; the rest is a provider failure.
func (o *Orchestrator) classifyOperatorError(stage string, err error) error {
	var conflict constraint.Conflict
	if errors.As(err, &conflict) {
		return NewRuleConflict(stage, conflict)
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(stage, fmt.Errorf("operator timed out: %w", err))
	}
	return NewProviderError(stage, err)
}

// classified ensures an error reaching the caller is a classified *Error with
// its audit reference set.
func (o *Orchestrator) classified(stage string, r *run, err error) error {
	var pe *Error
	if !errors.As(err, &pe) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		pe = NewProviderError(stage, err)
	}
	return pe.WithAudit(AuditRef{RunID: r.id, Entries: r.recorder.Len()})
}

// record appends an audit entry; a failure to append past finalization is a
// programming error surfaced in logs, not to callers.
func (o *Orchestrator) record(r *run, e audit.Entry) {
	if err := r.recorder.Record(e); err != nil {
		o.logger.Error("Audit append rejected", "run_id", r.id, "stage", e.Stage, "error", err)
	}
}

// publish sends the finalized card, best effort.
func (o *Orchestrator) publish(ctx context.Context, card *audit.Card) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(context.WithoutCancel(ctx), card); err != nil {
		o.logger.Warn("Audit card publish failed", "run_id", card.RunID, "error", err)
	}
}
