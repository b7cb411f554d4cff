// Package pipeline orchestrates the seven-operator protocol: strict stage
// sequencing, the verify/rewrite convergence loop, precedence-ordered
// remediation, typed error classification, and audit recording at every
// transition.
package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindInvalidInput marks malformed or out-of-range input to any operator.
	// Non-retryable; the caller must fix the input.
	KindInvalidInput Kind = "invalid_input"

	// KindRuleConflict marks contradictory locks/invariants or convergence
	// exhaustion. Never retried automatically; the caller must relax
	// constraints and resubmit.
	KindRuleConflict Kind = "rule_conflict"

	// KindProviderError marks an external operator failure, a structurally
	// invalid operator output, or a timeout. Retried with backoff up to a
	// bounded attempt count before surfacing.
	KindProviderError Kind = "provider_error"
)

// AuditRef points a failure at the audit trail produced so far.
type AuditRef struct {
	RunID   string `json:"run_id"`
	Entries int    `json:"entries"`
}

// Error is a classified pipeline failure. It always carries the stage that
// failed and a reference to the audit entries recorded up to that point.
type Error struct {
	Kind  Kind
	Stage string
	Audit AuditRef
	err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// NewInvalidInput wraps err as a non-retryable input failure at stage.
func NewInvalidInput(stage string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Stage: stage, err: err}
}

// NewRuleConflict wraps err as a constraint conflict at stage.
func NewRuleConflict(stage string, err error) *Error {
	return &Error{Kind: KindRuleConflict, Stage: stage, err: err}
}

// NewProviderError wraps err as an external operator failure at stage.
func NewProviderError(stage string, err error) *Error {
	return &Error{Kind: KindProviderError, Stage: stage, err: err}
}

// WithAudit attaches the audit reference and returns the error.
func (e *Error) WithAudit(ref AuditRef) *Error {
	e.Audit = ref
	return e
}

// Classify extracts the Kind from any error chain. Unclassified errors report
// as provider failures, the conservative retryable default for boundary code.
func Classify(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindProviderError
}

// IsInvalidInput reports whether err classifies as malformed input.
func IsInvalidInput(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindInvalidInput
}

// IsRuleConflict reports whether err classifies as a constraint conflict.
func IsRuleConflict(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindRuleConflict
}

// IsProviderError reports whether err classifies as an external failure.
func IsProviderError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindProviderError
}

// Retryable reports whether the orchestrator may retry the failed call.
// Only provider failures are retryable.
func Retryable(err error) bool {
	return Classify(err) == KindProviderError
}
