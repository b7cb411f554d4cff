package constraint

import "sort"

// Tier is a precedence tier. Lower values win: when two constraints conflict,
// the one in the lower tier dictates the outcome, and remediation is ordered
// tier-first.
type Tier int

const (
	// TierLock covers HARD locks.
	TierLock Tier = iota
	// TierVerifyRule covers HARD verification rules.
	TierVerifyRule
	// TierRewrite covers constraints REWRITE itself introduces (minimal-edit
	// discipline).
	TierRewrite
	// TierEditor covers editor-brief targets.
	TierEditor
	// TierStyle covers style targets.
	TierStyle
	// TierSoft covers SOFT invariants.
	TierSoft
)

var tierNames = map[Tier]string{
	TierLock:       "lock",
	TierVerifyRule: "verify-rule",
	TierRewrite:    "rewrite",
	TierEditor:     "editor",
	TierStyle:      "style",
	TierSoft:       "soft-invariant",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// Outranks reports whether t takes precedence over other.
func (t Tier) Outranks(other Tier) bool {
	return t < other
}

// OrderViolations sorts violations by precedence tier, then severity (HARD
// before SOFT), then constraint name for a stable order. REWRITE receives the
// resulting list and must address it in order.
func OrderViolations(vs []Violation) []Violation {
	out := make([]Violation, len(vs))
	copy(out, vs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier.Outranks(out[j].Tier)
		}
		if out[i].Severity != out[j].Severity {
			return out[i].Severity == SeverityHard
		}
		return out[i].Constraint < out[j].Constraint
	})
	return out
}

// Resolve decides which of two conflicting constraints wins. It returns the
// winner's tier and true, or false when the tiers are equal and the conflict
// is unresolvable by precedence alone.
func Resolve(a, b Tier) (Tier, bool) {
	if a == b {
		return a, false
	}
	if a.Outranks(b) {
		return a, true
	}
	return b, true
}
