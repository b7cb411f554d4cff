package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/lnaes/engine/audit"
	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/draft"
	"github.com/lnaes/engine/graph"
	"github.com/lnaes/engine/operator"
)

// phase is the convergence loop's explicit state. Transitions are
// verifying -> rewriting -> verifying until converged or exhausted.
type phase int

const (
	phaseVerifying phase = iota
	phaseRewriting
	phaseConverged
	phaseExhausted
)

func (p phase) String() string {
	switch p {
	case phaseVerifying:
		return "verifying"
	case phaseRewriting:
		return "rewriting"
	case phaseConverged:
		return "converged"
	case phaseExhausted:
		return "exhausted"
	}
	return "unknown"
}

// convergenceResult is the loop's terminal state. Draft is the last accepted
// draft regardless of outcome, so callers can return a best-effort document
// alongside an exhaustion error.
type convergenceResult struct {
	Draft      *draft.Draft
	Rewrites   int
	Violations []constraint.Violation
}

// converge drives the verify/rewrite loop until no HARD violation remains or
// the rewrite budget is spent. Each iteration verifies the current draft,
// selects a precedence-ordered batch of remediable violations (one per span,
// higher tiers claim first), rewrites, and accepts the result only when the
// edit is minimal and strictly non-regressive on HARD violations.
func (o *Orchestrator) converge(ctx context.Context, r *run, initial *draft.Draft, locked *graph.Locked) (*convergenceResult, error) {
	current := initial
	rewrites := 0
	state := phaseVerifying

	for {
		if err := ctx.Err(); err != nil {
			return &convergenceResult{Draft: current, Rewrites: rewrites}, err
		}

		verifyOut, err := o.verify(ctx, r, current, locked, rewrites+1)
		if err != nil {
			return &convergenceResult{Draft: current, Rewrites: rewrites}, err
		}
		ordered := constraint.OrderViolations(verifyOut.Violations)
		hard := constraint.HardCount(ordered)
		o.metrics.CountViolations(string(constraint.SeverityHard), hard)
		o.metrics.CountViolations(string(constraint.SeveritySoft), len(ordered)-hard)

		if hard == 0 {
			state = phaseConverged
			o.metrics.ObserveIterations(rewrites)
			o.logger.Info("Convergence reached",
				"run_id", r.id, "state", state.String(), "rewrites", rewrites,
				"soft_remaining", len(ordered))
			return &convergenceResult{Draft: current, Rewrites: rewrites, Violations: ordered}, nil
		}

		if rewrites >= o.maxIterations {
			state = phaseExhausted
			o.metrics.ObserveIterations(rewrites)
			o.logger.Warn("Convergence budget exhausted",
				"run_id", r.id, "state", state.String(), "rewrites", rewrites,
				"hard_remaining", hard)
			err := NewRuleConflict(string(operator.OpVerify),
				fmt.Errorf("%d hard violations remain after %d rewrites", hard, rewrites))
			return &convergenceResult{Draft: current, Rewrites: rewrites, Violations: ordered}, err
		}

		state = phaseRewriting
		batch := selectBatch(ordered)
		next, diff, err := o.rewrite(ctx, r, current, locked, batch, hard, rewrites+1)
		if err != nil {
			return &convergenceResult{Draft: current, Rewrites: rewrites}, err
		}
		o.logger.Debug("Rewrite accepted",
			"run_id", r.id, "iteration", rewrites+1, "state", state.String(),
			"batch", len(batch), "spans_changed", len(diff.Changes))

		current = next
		rewrites++
	}
}

// verify runs one VERIFY pass and records it. The iteration number ties the
// entry to its position in the loop.
func (o *Orchestrator) verify(ctx context.Context, r *run, d *draft.Draft, locked *graph.Locked, iteration int) (*operator.VerifyOutput, error) {
	stage := string(operator.OpVerify)
	in := operator.VerifyInput{
		Draft:        d,
		Locked:       locked,
		EditorBrief:  r.req.EditorBrief,
		StyleTargets: r.req.StyleTargets,
	}
	if err := o.registry.Schemas.ValidateInput(operator.OpVerify, in); err != nil {
		return nil, o.classified(stage, r, NewInvalidInput(stage, err))
	}

	start := time.Now()
	var out *operator.VerifyOutput
	err := withRetry(ctx, o.retry, o.logger, stage, o.metrics.CountRetry, func() error {
		cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		res, callErr := o.registry.Verifier.Verify(cctx, in)
		if callErr != nil {
			return o.classifyOperatorError(stage, callErr)
		}
		if vErr := o.registry.Schemas.ValidateOutput(operator.OpVerify, res); vErr != nil {
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
		Stage:      stage,
		Iteration:  iteration,
		InputHash:  audit.Hash(in),
		Dials:      r.req.Dials,
		Locks:      r.req.Locks.Active(),
		Violations: out.Violations,
		Metrics:    out.Metrics,
	})
	return out, nil
}

// rewrite runs one REWRITE pass over the batch and enforces the acceptance
// contract before the output becomes the current draft: span structure intact,
// no edits outside implicated spans, and the HARD violation count must not
// rise. A breach rejects the output as a provider failure inside the retry
// loop, so a flaky rewriter gets bounded further chances.
func (o *Orchestrator) rewrite(ctx context.Context, r *run, current *draft.Draft, locked *graph.Locked, batch []constraint.Violation, baseline, iteration int) (*draft.Draft, *draft.Diff, error) {
	stage := string(operator.OpRewrite)
	in := operator.RewriteInput{Draft: current, Violations: batch}
	if err := o.registry.Schemas.ValidateInput(operator.OpRewrite, in); err != nil {
		return nil, nil, o.classified(stage, r, NewInvalidInput(stage, err))
	}

	allowed := implicatedSpans(batch)

	start := time.Now()
	var accepted *draft.Draft
	var diff *draft.Diff
	err := withRetry(ctx, o.retry, o.logger, stage, o.metrics.CountRetry, func() error {
		cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		res, callErr := o.registry.Rewriter.Rewrite(cctx, in)
		if callErr != nil {
			return o.classifyOperatorError(stage, callErr)
		}
		if vErr := o.registry.Schemas.ValidateOutput(operator.OpRewrite, res); vErr != nil {
			return NewProviderError(stage, fmt.Errorf("invalid output: %w", vErr))
		}

		d, cmpErr := draft.Compare(current, res.Draft)
		if cmpErr != nil {
			return NewProviderError(stage, fmt.Errorf("rewrite broke span structure: %w", cmpErr))
		}
		if !d.UnchangedOutside(allowed) {
			return NewProviderError(stage,
				fmt.Errorf("rewrite touched spans outside the violation batch: %v", d.ChangedSpanIDs()))
		}
		if regressed, n := o.regresses(cctx, r, res.Draft, locked, baseline); regressed {
			return NewProviderError(stage,
				fmt.Errorf("rewrite raised hard violation count from %d to %d", baseline, n))
		}
		accepted = res.Draft
		diff = d
		return nil
	})
	o.metrics.ObserveStage(stage, time.Since(start).Seconds())
	if err != nil {
		return nil, nil, o.classified(stage, r, err)
	}

	o.record(r, audit.Entry{
		Stage:      stage,
		Iteration:  iteration,
		InputHash:  audit.Hash(in),
		Dials:      r.req.Dials,
		Locks:      r.req.Locks.Active(),
		Violations: batch,
		Diff:       diff,
	})
	return accepted, diff, nil
}

// regresses re-verifies a candidate draft off the record and reports whether
// its HARD count exceeds the pre-rewrite baseline. A failed probe counts as a
// regression; an unverifiable draft is never adopted.
func (o *Orchestrator) regresses(ctx context.Context, r *run, candidate *draft.Draft, locked *graph.Locked, baseline int) (bool, int) {
	probe, err := o.registry.Verifier.Verify(ctx, operator.VerifyInput{
		Draft:        candidate,
		Locked:       locked,
		EditorBrief:  r.req.EditorBrief,
		StyleTargets: r.req.StyleTargets,
	})
	if err != nil {
		return true, -1
	}
	n := constraint.HardCount(probe.Violations)
	return n > baseline, n
}

// selectBatch picks the violations one rewrite may remediate: precedence
// order, first violation per span wins, span-less violations always ride
// along. Lower-tier violations on a claimed span wait for the next iteration.
func selectBatch(ordered []constraint.Violation) []constraint.Violation {
	claimed := make(map[string]bool)
	batch := make([]constraint.Violation, 0, len(ordered))
	for _, v := range ordered {
		if v.SpanID == "" {
			batch = append(batch, v)
			continue
		}
		if claimed[v.SpanID] {
			continue
		}
		claimed[v.SpanID] = true
		batch = append(batch, v)
	}
	return batch
}

// implicatedSpans collects the span IDs a rewrite batch may touch.
func implicatedSpans(batch []constraint.Violation) map[string]bool {
	spans := make(map[string]bool, len(batch))
	for _, v := range batch {
		if v.SpanID != "" {
			spans[v.SpanID] = true
		}
	}
	return spans
}
