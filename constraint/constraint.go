// Package constraint defines the control surface of a pipeline run: numeric
// dials, boolean locks, HARD/SOFT invariants, and the violations produced when
// a draft breaches them. It also owns the fixed precedence order used to
// sequence remediation and the pairwise conflict detector run before a graph
// is locked.
package constraint

import (
	"fmt"
	"sort"
)

// DialName identifies a numeric control.
type DialName string

const (
	DialSoul     DialName = "soul"
	DialEditor   DialName = "editor"
	DialFidelity DialName = "fidelity"
)

// Dials maps dial names to values in [0,1]. Dials influence style and the
// SOFT-invariant tier only; they never override a lock.
type Dials map[DialName]float64

// Validate checks that every dial value is within [0,1] and every name is known.
func (d Dials) Validate() error {
	for name, v := range d {
		switch name {
		case DialSoul, DialEditor, DialFidelity:
		default:
			return fmt.Errorf("unknown dial %q", name)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("dial %q out of range: %g (want [0,1])", name, v)
		}
	}
	return nil
}

// Get returns a dial value, defaulting to 0 when unset.
func (d Dials) Get(name DialName) float64 {
	return d[name]
}

// LockName identifies a boolean hard constraint.
type LockName string

const (
	LockIdentity LockName = "identity"
	LockToponym  LockName = "toponym"
	LockRelation LockName = "relation"
	LockPOV      LockName = "pov"
)

// Locks is the set of locks active for a run. Once a lock is set for a run it
// is immutable for that run; callers hand the orchestrator a copy.
type Locks map[LockName]bool

// Validate checks that every lock name is known.
func (l Locks) Validate() error {
	for name := range l {
		switch name {
		case LockIdentity, LockToponym, LockRelation, LockPOV:
		default:
			return fmt.Errorf("unknown lock %q", name)
		}
	}
	return nil
}

// Active returns the names of locks set true, in stable order.
func (l Locks) Active() []LockName {
	names := make([]LockName, 0, len(l))
	for name, on := range l {
		if on {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Clone returns an independent copy of the lock set.
func (l Locks) Clone() Locks {
	c := make(Locks, len(l))
	for k, v := range l {
		c[k] = v
	}
	return c
}

// Severity tags an invariant or violation as mandatory or preferred.
type Severity string

const (
	SeverityHard Severity = "HARD"
	SeveritySoft Severity = "SOFT"
)

// Invariant is a named predicate over the graph or draft. HARD invariants must
// hold in the final draft; SOFT invariants are preferences consulted only when
// no HARD constraint dictates an outcome.
type Invariant struct {
	Name        string   `json:"name"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description,omitempty"`

	// Requires and Forbids are triple-shaped assertions the invariant makes
	// about the graph. They drive conflict detection against locks.
	Requires []Assertion `json:"requires,omitempty"`
	Forbids  []Assertion `json:"forbids,omitempty"`
}

// Violation is produced by VERIFY. It references the offending constraint, the
// span or graph element implicated, and a severity.
type Violation struct {
	// Constraint names the breached lock or invariant.
	Constraint string `json:"constraint"`

	// Tier is the precedence tier the constraint belongs to.
	Tier Tier `json:"tier"`

	Severity Severity `json:"severity"`

	// SpanID locates the offending draft span, when the violation is textual.
	SpanID string `json:"span_id,omitempty"`

	// ElementID locates the offending graph node or edge, when structural.
	ElementID string `json:"element_id,omitempty"`

	// Detail is a human-readable account of the breach.
	Detail string `json:"detail"`

	// Suggested is the replacement text for the implicated span, when the
	// verifier can propose one. REWRITE may use it but is not required to.
	Suggested string `json:"suggested,omitempty"`
}

// Metric is a named numeric measurement attached to a VERIFY result. Purely
// observational; it never gates pipeline success by itself.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// HardCount returns the number of HARD-severity violations in vs.
func HardCount(vs []Violation) int {
	n := 0
	for _, v := range vs {
		if v.Severity == SeverityHard {
			n++
		}
	}
	return n
}
