package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierOutranks(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Tier
		wants bool
	}{
		{"lock outranks verify rule", TierLock, TierVerifyRule, true},
		{"lock outranks soft", TierLock, TierSoft, true},
		{"verify rule outranks rewrite", TierVerifyRule, TierRewrite, true},
		{"rewrite outranks editor", TierRewrite, TierEditor, true},
		{"editor outranks style", TierEditor, TierStyle, true},
		{"style outranks soft", TierStyle, TierSoft, true},
		{"soft outranks nothing", TierSoft, TierLock, false},
		{"tier never outranks itself", TierLock, TierLock, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wants, tt.a.Outranks(tt.b))
		})
	}
}

func TestResolve(t *testing.T) {
	winner, ok := Resolve(TierStyle, TierLock)
	require.True(t, ok)
	assert.Equal(t, TierLock, winner)

	winner, ok = Resolve(TierVerifyRule, TierRewrite)
	require.True(t, ok)
	assert.Equal(t, TierVerifyRule, winner)

	_, ok = Resolve(TierEditor, TierEditor)
	assert.False(t, ok, "equal tiers have no winner")
}

func TestOrderViolations(t *testing.T) {
	vs := []Violation{
		{Constraint: "style:b", Tier: TierStyle, Severity: SeveritySoft},
		{Constraint: "editor:a", Tier: TierEditor, Severity: SeveritySoft},
		{Constraint: "inv:soft", Tier: TierSoft, Severity: SeveritySoft},
		{Constraint: "lock:identity", Tier: TierLock, Severity: SeverityHard},
		{Constraint: "inv:hard", Tier: TierVerifyRule, Severity: SeverityHard},
	}

	ordered := OrderViolations(vs)
	require.Len(t, ordered, 5)

	got := make([]string, len(ordered))
	for i, v := range ordered {
		got[i] = v.Constraint
	}
	assert.Equal(t, []string{
		"lock:identity",
		"inv:hard",
		"editor:a",
		"style:b",
		"inv:soft",
	}, got)

	// Input order is preserved.
	assert.Equal(t, "style:b", vs[0].Constraint)
}

func TestOrderViolationsHardBeforeSoftWithinTier(t *testing.T) {
	vs := []Violation{
		{Constraint: "inv:soft", Tier: TierVerifyRule, Severity: SeveritySoft},
		{Constraint: "inv:hard", Tier: TierVerifyRule, Severity: SeverityHard},
	}
	ordered := OrderViolations(vs)
	assert.Equal(t, "inv:hard", ordered[0].Constraint)
	assert.Equal(t, "inv:soft", ordered[1].Constraint)
}

func TestHardCount(t *testing.T) {
	vs := []Violation{
		{Severity: SeverityHard},
		{Severity: SeveritySoft},
		{Severity: SeverityHard},
	}
	assert.Equal(t, 2, HardCount(vs))
	assert.Equal(t, 0, HardCount(nil))
}
