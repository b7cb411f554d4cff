package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lnaes/engine/constraint"
)

func TestSelectBatchOneViolationPerSpan(t *testing.T) {
	ordered := []constraint.Violation{
		{Constraint: "lock:identity", SpanID: "s1", Tier: constraint.TierLock},
		{Constraint: "style:very", SpanID: "s1", Tier: constraint.TierStyle},
		{Constraint: "editor:river", SpanID: "s2", Tier: constraint.TierEditor},
		{Constraint: "invariant:tone", SpanID: "", Tier: constraint.TierVerifyRule},
	}

	batch := selectBatch(ordered)

	names := make([]string, 0, len(batch))
	for _, v := range batch {
		names = append(names, v.Constraint)
	}
	// s1 is claimed by the higher tier; the span-less violation always rides.
	assert.Equal(t, []string{"lock:identity", "editor:river", "invariant:tone"}, names)
}

func TestSelectBatchEmpty(t *testing.T) {
	assert.Empty(t, selectBatch(nil))
}

func TestImplicatedSpans(t *testing.T) {
	spans := implicatedSpans([]constraint.Violation{
		{SpanID: "s1"}, {SpanID: "s3"}, {SpanID: ""},
	})
	assert.Equal(t, map[string]bool{"s1": true, "s3": true}, spans)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "verifying", phaseVerifying.String())
	assert.Equal(t, "rewriting", phaseRewriting.String())
	assert.Equal(t, "converged", phaseConverged.String())
	assert.Equal(t, "exhausted", phaseExhausted.String())
}
