// Package audit records why a draft looks the way it does: one append-only
// entry per pipeline stage and convergence iteration, frozen into an immutable
// card when the run terminates. The card renders to both a structured document
// and a human-readable report from the same underlying data.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/draft"
)

// ErrFinalized is returned when an append is attempted after finalization.
var ErrFinalized = errors.New("audit card finalized")

// Outcome states how a run terminated.
type Outcome string

const (
	OutcomeConverged Outcome = "converged"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Entry is one stage transition: what went in, which controls were active,
// what came out.
type Entry struct {
	Stage      string                 `json:"stage"`
	Iteration  int                    `json:"iteration,omitempty"`
	At         time.Time              `json:"at"`
	InputHash  string                 `json:"input_hash"`
	Dials      constraint.Dials       `json:"dials,omitempty"`
	Locks      []constraint.LockName  `json:"locks,omitempty"`
	Violations []constraint.Violation `json:"violations,omitempty"`
	Metrics    []constraint.Metric    `json:"metrics,omitempty"`
	Diff       *draft.Diff            `json:"diff,omitempty"`
	Note       string                 `json:"note,omitempty"`
}

// Card is the immutable audit record of one pipeline run.
type Card struct {
	RunID             string    `json:"run_id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Outcome           Outcome   `json:"outcome"`
	FailureStage      string    `json:"failure_stage,omitempty"`
	FailureDetail     string    `json:"failure_detail,omitempty"`
	OntologyVersion   string    `json:"ontology_version,omitempty"`

	// SoulModeDisclosed is the compliance tag: always present, true whenever
	// the soul dial was above zero for the run.
	SoulModeDisclosed bool `json:"soul_mode_disclosed"`

	Entries []Entry `json:"entries"`
}

// Recorder accumulates entries for one run and freezes them into a Card.
// Record and Finalize are safe for concurrent use, though a run's stages are
// sequential by construction.
type Recorder struct {
	mu        sync.Mutex
	card      Card
	finalized bool
}

// NewRecorder starts the audit trail for a run.
func NewRecorder(runID, ontologyVersion string, dials constraint.Dials) *Recorder {
	return &Recorder{
		card: Card{
			RunID:             runID,
			StartedAt:         time.Now().UTC(),
			OntologyVersion:   ontologyVersion,
			SoulModeDisclosed: dials.Get(constraint.DialSoul) > 0,
		},
	}
}

// Record appends a stage entry. Returns ErrFinalized once the card is frozen.
func (r *Recorder) Record(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return ErrFinalized
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	r.card.Entries = append(r.card.Entries, e)
	return nil
}

// Len returns the number of entries recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.card.Entries)
}

// RunID returns the run identifier.
func (r *Recorder) RunID() string {
	return r.card.RunID
}

// Finalize freezes the trail and returns the card. Subsequent Record calls
// fail and subsequent Finalize calls return the same card.
func (r *Recorder) Finalize(outcome Outcome, failureStage, failureDetail string) *Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.finalized = true
		r.card.FinishedAt = time.Now().UTC()
		r.card.Outcome = outcome
		r.card.FailureStage = failureStage
		r.card.FailureDetail = failureDetail
	}
	c := r.card
	return &c
}

// Finalized reports whether the card has been frozen.
func (r *Recorder) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Hash returns the canonical input hash for a stage payload: sha256 over its
// JSON form.
func Hash(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("unhashable:%v", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
