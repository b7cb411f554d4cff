package builtin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/draft"
	"github.com/lnaes/engine/graph"
	"github.com/lnaes/engine/ontology"
	"github.com/lnaes/engine/operator"
)

func testKB() *ontology.InMemory {
	return ontology.NewInMemory("2024.1", []ontology.Entry{
		{Term: "Alice", Kind: "person", Weights: map[string]float64{"salience": 0.9}},
		{Term: "Paris", Kind: "place", Weights: map[string]float64{"salience": 0.7}},
	})
}

func TestExtractorFindsCapitalizedRuns(t *testing.T) {
	out, err := NewExtractor().Extract(context.Background(), operator.ExtractInput{
		Text: "Alice walked through Paris. The rain caught Alice near Notre Dame.",
	})
	require.NoError(t, err)

	labels := make(map[string]bool)
	for _, n := range out.Candidates.Nodes {
		labels[n.Label] = true
	}
	assert.True(t, labels["Alice"])
	assert.True(t, labels["Paris"])
	assert.True(t, labels["Notre Dame"], "adjacent capitalized words form one mention")
	assert.False(t, labels["The"], "sentence-initial stopwords are not mentions")

	require.NotEmpty(t, out.Candidates.Edges)
	assert.Equal(t, "co_occurs", out.Candidates.Edges[0].Type)
}

func TestExtractorRejectsEmptyText(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), operator.ExtractInput{Text: "   "})
	assert.Error(t, err)
}

func TestResolverMergesDuplicates(t *testing.T) {
	candidates := &graph.Graph{
		Nodes: []graph.Node{
			{ID: "n1", Kind: graph.NodeEntity, Label: "Alice", Confidence: 0.6},
			{ID: "n2", Kind: graph.NodeEntity, Label: "Paris", Confidence: 0.6},
			{ID: "n3", Kind: graph.NodeEntity, Label: "alice", Confidence: 0.6},
		},
		Edges: []graph.Edge{
			{ID: "e1", Type: "co_occurs", From: "n1", To: "n2", Confidence: 0.5},
			{ID: "e2", Type: "co_occurs", From: "n3", To: "n2", Confidence: 0.5},
		},
	}

	out, err := NewResolver().Resolve(context.Background(), operator.ResolveInput{Candidates: candidates})
	require.NoError(t, err)

	require.Len(t, out.Graph.Nodes, 2)
	merged := out.Graph.Node("n1")
	require.NotNil(t, merged)
	assert.InDelta(t, 0.8, merged.Confidence, 1e-9, "merge boosts confidence")

	// Remapped duplicate edge collapses.
	require.Len(t, out.Graph.Edges, 1)
	assert.Equal(t, "n1", out.Graph.Edges[0].From)
}

func TestResolverDropsSelfLoops(t *testing.T) {
	candidates := &graph.Graph{
		Nodes: []graph.Node{
			{ID: "n1", Label: "Alice", Confidence: 0.6},
			{ID: "n2", Label: "ALICE", Confidence: 0.6},
		},
		Edges: []graph.Edge{
			{ID: "e1", Type: "co_occurs", From: "n1", To: "n2", Confidence: 0.5},
		},
	}

	out, err := NewResolver().Resolve(context.Background(), operator.ResolveInput{Candidates: candidates})
	require.NoError(t, err)
	assert.Empty(t, out.Graph.Edges)
}

func TestWeighterAppliesOntology(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.Node{
			{ID: "n1", Kind: graph.NodeEntity, Label: "Alice", Confidence: 0.8},
			{ID: "n2", Kind: graph.NodeEntity, Label: "Unknown Thing", Confidence: 0.8},
		},
	}

	out, err := NewWeighter(testKB()).Weight(context.Background(), operator.WeightInput{Graph: g})
	require.NoError(t, err)

	alice := out.Graph.Node("n1")
	assert.Equal(t, graph.NodePerson, alice.Kind, "ontology refines node kind")
	assert.Equal(t, 0.9, alice.Weights["salience"])

	unknown := out.Graph.Node("n2")
	assert.Equal(t, graph.NodeEntity, unknown.Kind, "missing terms pass through")
	assert.Nil(t, unknown.Weights)

	// Input graph untouched.
	assert.Equal(t, graph.NodeEntity, g.Nodes[0].Kind)
}

func lockedFixture(t *testing.T, locks constraint.Locks, invariants []constraint.Invariant) *graph.Locked {
	t.Helper()
	g := &graph.Graph{
		Nodes: []graph.Node{
			{ID: "n1", Kind: graph.NodePerson, Label: "Alice", Confidence: 0.9},
			{ID: "n2", Kind: graph.NodePlace, Label: "Paris", Confidence: 0.8},
		},
		Edges: []graph.Edge{
			{ID: "e1", Type: "located_in", From: "n1", To: "n2", Confidence: 0.7},
		},
	}
	out, err := NewLocker().Lock(context.Background(), operator.LockInput{
		Graph: g, Locks: locks, Invariants: invariants,
	})
	require.NoError(t, err)
	return out.Locked
}

func TestLockerAnnotatesWithoutMutatingGraph(t *testing.T) {
	locked := lockedFixture(t, constraint.Locks{
		constraint.LockIdentity: true,
		constraint.LockToponym:  true,
	}, nil)

	assert.Equal(t, []string{"n1", "n2"}, locked.Graph.NodeIDs())
	assert.Equal(t, []string{"e1"}, locked.Graph.EdgeIDs())

	ids := locked.AnnotationsFor(constraint.LockIdentity)
	require.Len(t, ids, 1)
	assert.Equal(t, "Alice", ids[0].Surface)

	places := locked.AnnotationsFor(constraint.LockToponym)
	require.Len(t, places, 1)
	assert.Equal(t, "Paris", places[0].Surface)
}

func TestLockerRejectsContradiction(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.Node{
			{ID: "n1", Kind: graph.NodePerson, Label: "Alice", Confidence: 0.9},
			{ID: "n2", Kind: graph.NodePlace, Label: "Paris", Confidence: 0.8},
		},
		Edges: []graph.Edge{
			{ID: "e1", Type: "located_in", From: "n1", To: "n2", Confidence: 0.7},
		},
	}
	forbids := []constraint.Invariant{{
		Name:     "never-in-paris",
		Severity: constraint.SeverityHard,
		Forbids: []constraint.Assertion{
			{Subject: "n1", Predicate: "located_in", Object: "n2"},
		},
	}}

	_, err := NewLocker().Lock(context.Background(), operator.LockInput{
		Graph:      g,
		Locks:      constraint.Locks{constraint.LockRelation: true},
		Invariants: forbids,
	})
	require.Error(t, err)

	var conflict constraint.Conflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "lock:relation", conflict.First)
	assert.Equal(t, "invariant:never-in-paris", conflict.Second)
}

func TestStylerTone(t *testing.T) {
	tests := []struct {
		soul float64
		tone string
	}{
		{0, "plain"},
		{0.3, "plain"},
		{0.5, "warm"},
		{0.9, "lyric"},
	}

	for _, tt := range tests {
		out, err := NewStyler().Style(context.Background(), operator.StyleInput{
			Dials: constraint.Dials{constraint.DialSoul: tt.soul, constraint.DialFidelity: 0.8},
		})
		require.NoError(t, err)
		assert.Equal(t, tt.tone, out.Signal.Tone, "soul=%g", tt.soul)
		assert.Equal(t, tt.soul, out.Signal.Intensity)
		assert.Equal(t, 0.8, out.Signal.Fidelity)
	}
}

func TestVerifierCleanDraft(t *testing.T) {
	locked := lockedFixture(t, constraint.Locks{
		constraint.LockIdentity: true,
		constraint.LockToponym:  true,
		constraint.LockRelation: true,
	}, nil)

	out, err := NewVerifier().Verify(context.Background(), operator.VerifyInput{
		Draft:  draft.New("Alice wandered into Paris at dusk."),
		Locked: locked,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Violations)
	assert.Empty(t, out.Violations)

	for _, m := range out.Metrics {
		assert.Equal(t, 1.0, m.Value, m.Name)
	}
}

func TestVerifierNearMissSuggestsFix(t *testing.T) {
	locked := lockedFixture(t, constraint.Locks{constraint.LockIdentity: true}, nil)

	out, err := NewVerifier().Verify(context.Background(), operator.VerifyInput{
		Draft:  draft.New("Alicia wandered into the city at dusk."),
		Locked: locked,
	})
	require.NoError(t, err)
	require.Len(t, out.Violations, 1)

	v := out.Violations[0]
	assert.Equal(t, "lock:identity", v.Constraint)
	assert.Equal(t, constraint.SeverityHard, v.Severity)
	assert.Equal(t, constraint.TierLock, v.Tier)
	assert.Equal(t, "s1", v.SpanID)
	assert.Equal(t, "Alice wandered into the city at dusk.", v.Suggested)
}

func TestVerifierPOV(t *testing.T) {
	locked := lockedFixture(t, constraint.Locks{constraint.LockPOV: true}, nil)

	out, err := NewVerifier().Verify(context.Background(), operator.VerifyInput{
		Draft:  draft.New("She watched the river.\n\nI could not look away."),
		Locked: locked,
	})
	require.NoError(t, err)
	require.Len(t, out.Violations, 1)
	assert.Equal(t, "s2", out.Violations[0].SpanID)
	assert.Contains(t, out.Violations[0].Detail, "first person")
}

func TestVerifierEditorAndStyleAreSoft(t *testing.T) {
	locked := lockedFixture(t, constraint.Locks{}, nil)

	out, err := NewVerifier().Verify(context.Background(), operator.VerifyInput{
		Draft:        draft.New("The city was very quiet."),
		Locked:       locked,
		EditorBrief:  "mention:river",
		StyleTargets: []string{"avoid:very"},
	})
	require.NoError(t, err)
	require.Len(t, out.Violations, 2)
	for _, v := range out.Violations {
		assert.Equal(t, constraint.SeveritySoft, v.Severity, v.Constraint)
	}
	assert.Equal(t, 0, constraint.HardCount(out.Violations))
}

func TestRewriterAppliesSuggestionsOnly(t *testing.T) {
	d := draft.New("Alicia stood still.\n\nThe rain kept falling.")

	out, err := NewRewriter().Rewrite(context.Background(), operator.RewriteInput{
		Draft: d,
		Violations: []constraint.Violation{
			{SpanID: "s1", Suggested: "Alice stood still."},
			{SpanID: "s2", Detail: "no suggestion, left standing"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Alice stood still.", out.Draft.Spans[0].Text)
	assert.Equal(t, "The rain kept falling.", out.Draft.Spans[1].Text)
	// Input draft untouched.
	assert.Equal(t, "Alicia stood still.", d.Spans[0].Text)
}

func TestRewriterUnknownSpan(t *testing.T) {
	_, err := NewRewriter().Rewrite(context.Background(), operator.RewriteInput{
		Draft:      draft.New("One."),
		Violations: []constraint.Violation{{SpanID: "s9", Suggested: "x"}},
	})
	assert.ErrorContains(t, err, "unknown span")
}

func TestNewRegistryComplete(t *testing.T) {
	r := NewRegistry(testKB())
	assert.True(t, r.Complete())
	assert.NotNil(t, r.Schemas)
}
