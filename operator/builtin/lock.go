package builtin

import (
	"context"
	"fmt"

	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/graph"
	"github.com/lnaes/engine/operator"
)

// Locker freezes a graph against the run's locks. Before any annotation is
// committed it expands all active locks and HARD invariants into assertions
// and runs pairwise conflict detection; a contradictory pair fails the whole
// operation with both constraint names, and no partially locked graph is ever
// returned.
type Locker struct{}

// NewLocker creates the built-in locker.
func NewLocker() *Locker { return &Locker{} }

// Lock validates, conflict-checks, and annotates the graph. The output graph's
// node and edge sets are exactly the input's; only annotations are added.
func (l *Locker) Lock(_ context.Context, in operator.LockInput) (*operator.LockOutput, error) {
	if in.Graph == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if err := in.Graph.Validate(); err != nil {
		return nil, fmt.Errorf("graph invalid: %w", err)
	}
	if err := in.Locks.Validate(); err != nil {
		return nil, err
	}

	sources := expandSources(in.Graph, in.Locks, in.Invariants)
	if conflicts := constraint.DetectConflicts(sources); len(conflicts) > 0 {
		return nil, conflicts[0]
	}

	locked := &graph.Locked{
		Graph:      in.Graph.Clone(),
		Locks:      in.Locks.Clone(),
		Invariants: in.Invariants,
	}
	for _, name := range in.Locks.Active() {
		locked.Annotations = append(locked.Annotations, annotate(in.Graph, name)...)
	}
	return &operator.LockOutput{Locked: locked}, nil
}

// expandSources turns active locks and HARD invariants into assertion sources
// for conflict detection. SOFT invariants never participate; they cannot
// contradict a lock by definition.
func expandSources(g *graph.Graph, locks constraint.Locks, invariants []constraint.Invariant) []constraint.Source {
	var sources []constraint.Source

	for _, name := range locks.Active() {
		sources = append(sources, constraint.Source{
			Name:       "lock:" + string(name),
			Tier:       constraint.TierLock,
			Assertions: lockAssertions(g, name),
		})
	}

	for _, inv := range invariants {
		if inv.Severity != constraint.SeverityHard {
			continue
		}
		src := constraint.Source{
			Name: "invariant:" + inv.Name,
			Tier: constraint.TierVerifyRule,
		}
		src.Assertions = append(src.Assertions, inv.Requires...)
		for _, a := range inv.Forbids {
			a.Negated = true
			src.Assertions = append(src.Assertions, a)
		}
		sources = append(sources, src)
	}

	return sources
}

// lockAssertions states what a lock requires of the graph.
func lockAssertions(g *graph.Graph, name constraint.LockName) []constraint.Assertion {
	var out []constraint.Assertion
	switch name {
	case constraint.LockIdentity:
		for _, n := range g.NodesOfKind(graph.NodePerson) {
			out = append(out, constraint.Assertion{Subject: n.ID, Predicate: "label", Object: n.Label})
		}
	case constraint.LockToponym:
		for _, n := range g.NodesOfKind(graph.NodePlace) {
			out = append(out, constraint.Assertion{Subject: n.ID, Predicate: "label", Object: n.Label})
		}
	case constraint.LockRelation:
		for _, e := range g.Edges {
			out = append(out, constraint.Assertion{Subject: e.From, Predicate: e.Type, Object: e.To})
		}
	case constraint.LockPOV:
		out = append(out, constraint.Assertion{Subject: "narrator", Predicate: "pov", Object: povOf(g)})
	}
	return out
}

// annotate produces the surface-form annotations VERIFY holds drafts to.
func annotate(g *graph.Graph, name constraint.LockName) []graph.LockAnnotation {
	var out []graph.LockAnnotation
	switch name {
	case constraint.LockIdentity:
		for _, n := range g.NodesOfKind(graph.NodePerson) {
			out = append(out, graph.LockAnnotation{Lock: name, ElementID: n.ID, Surface: n.Label})
		}
	case constraint.LockToponym:
		for _, n := range g.NodesOfKind(graph.NodePlace) {
			out = append(out, graph.LockAnnotation{Lock: name, ElementID: n.ID, Surface: n.Label})
		}
	case constraint.LockRelation:
		for _, e := range g.Edges {
			out = append(out, graph.LockAnnotation{Lock: name, ElementID: e.ID})
		}
	case constraint.LockPOV:
		out = append(out, graph.LockAnnotation{Lock: name, ElementID: "narrator", Surface: povOf(g)})
	}
	return out
}

// povOf derives the narrative point of view from the graph: a narrator node
// means first person, otherwise third.
func povOf(g *graph.Graph) string {
	if len(g.NodesOfKind(graph.NodeNarrator)) > 0 {
		return "first-person"
	}
	return "third-person"
}
