package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnaes/engine/constraint"
)

func TestRecorderAppendThenFreeze(t *testing.T) {
	r := NewRecorder("run-1", "2024.1", constraint.Dials{constraint.DialSoul: 0.5})

	require.NoError(t, r.Record(Entry{Stage: "EXTRACT", InputHash: "abc"}))
	require.NoError(t, r.Record(Entry{Stage: "VERIFY", Iteration: 1}))
	assert.Equal(t, 2, r.Len())
	assert.False(t, r.Finalized())

	card := r.Finalize(OutcomeConverged, "", "")
	assert.True(t, r.Finalized())
	assert.Equal(t, "run-1", card.RunID)
	assert.Equal(t, OutcomeConverged, card.Outcome)
	assert.Equal(t, "2024.1", card.OntologyVersion)
	assert.True(t, card.SoulModeDisclosed)
	assert.Len(t, card.Entries, 2)
	assert.False(t, card.FinishedAt.IsZero())

	// Frozen means frozen.
	assert.ErrorIs(t, r.Record(Entry{Stage: "REWRITE"}), ErrFinalized)
	assert.Equal(t, 2, r.Len())
}

func TestFinalizeIdempotent(t *testing.T) {
	r := NewRecorder("run-2", "", nil)
	require.NoError(t, r.Record(Entry{Stage: "EXTRACT"}))

	first := r.Finalize(OutcomeFailed, "LOCK", "contradiction")
	second := r.Finalize(OutcomeConverged, "", "")

	assert.Equal(t, OutcomeFailed, second.Outcome)
	assert.Equal(t, "LOCK", second.FailureStage)
	assert.Equal(t, first.FinishedAt, second.FinishedAt)
}

func TestSoulModeDisclosure(t *testing.T) {
	assert.False(t, NewRecorder("r", "", nil).Finalize(OutcomeConverged, "", "").SoulModeDisclosed)
	assert.False(t, NewRecorder("r", "", constraint.Dials{constraint.DialSoul: 0}).
		Finalize(OutcomeConverged, "", "").SoulModeDisclosed)
	assert.True(t, NewRecorder("r", "", constraint.Dials{constraint.DialSoul: 0.01}).
		Finalize(OutcomeConverged, "", "").SoulModeDisclosed)
}

func TestRecordSetsTimestamp(t *testing.T) {
	r := NewRecorder("run-3", "", nil)
	require.NoError(t, r.Record(Entry{Stage: "EXTRACT"}))
	card := r.Finalize(OutcomeConverged, "", "")
	assert.False(t, card.Entries[0].At.IsZero())
}

func TestHashDeterministic(t *testing.T) {
	type payload struct {
		Text string `json:"text"`
	}

	a := Hash(payload{Text: "Alice"})
	b := Hash(payload{Text: "Alice"})
	c := Hash(payload{Text: "Alicia"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestPublisherUnconfiguredIsNoOp(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.Publish(context.Background(), &Card{RunID: "run-x"}))
	assert.NoError(t, NewPublisher(nil).Publish(context.Background(), &Card{RunID: "run-x"}))
}

func TestRenderCarriesOutcomeAndViolations(t *testing.T) {
	r := NewRecorder("run-4", "2024.1", constraint.Dials{constraint.DialSoul: 0.9})
	require.NoError(t, r.Record(Entry{
		Stage:     "VERIFY",
		Iteration: 1,
		InputHash: "0123456789abcdef0123",
		Dials:     constraint.Dials{constraint.DialSoul: 0.9},
		Locks:     []constraint.LockName{constraint.LockIdentity},
		Violations: []constraint.Violation{{
			Constraint: "lock:identity",
			Tier:       constraint.TierLock,
			Severity:   constraint.SeverityHard,
			SpanID:     "s1",
			Detail:     `span uses "Alicia" where lock requires "Alice"`,
		}},
		Metrics: []constraint.Metric{{Name: "invariant_adherence", Value: 0.5}},
	}))
	card := r.Finalize(OutcomeExhausted, "VERIFY", "1 hard violations remain after 3 rewrites")

	out := card.Render()
	assert.Contains(t, out, "Audit Card run-4")
	assert.Contains(t, out, "outcome:  exhausted")
	assert.Contains(t, out, "failure:  1 hard violations remain after 3 rewrites (VERIFY)")
	assert.Contains(t, out, "soul-mode disclosed: true")
	assert.Contains(t, out, "VERIFY (iteration 1)")
	assert.Contains(t, out, "0123456789ab", "hashes are shortened")
	assert.Contains(t, out, "lock:identity at s1")
	assert.Contains(t, out, "invariant_adherence = 0.500")
	assert.Contains(t, out, "identity")

	structured, err := card.MarshalStructured()
	require.NoError(t, err)
	assert.Contains(t, string(structured), `"outcome": "exhausted"`)
	assert.Contains(t, string(structured), `"soul_mode_disclosed": true`)
}
