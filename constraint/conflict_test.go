package constraint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConflicts(t *testing.T) {
	requires := Source{
		Name: "invariant:alice-in-paris",
		Tier: TierVerifyRule,
		Assertions: []Assertion{
			{Subject: "n1", Predicate: "located_in", Object: "n2"},
		},
	}
	forbids := Source{
		Name: "invariant:alice-never-paris",
		Tier: TierVerifyRule,
		Assertions: []Assertion{
			{Subject: "n1", Predicate: "located_in", Object: "n2", Negated: true},
		},
	}

	conflicts := DetectConflicts([]Source{requires, forbids})
	require.Len(t, conflicts, 1)
	assert.Equal(t, "invariant:alice-in-paris", conflicts[0].First)
	assert.Equal(t, "invariant:alice-never-paris", conflicts[0].Second)
	assert.False(t, conflicts[0].Assertion.Negated, "conflict reports the positive form")
}

func TestDetectConflictsSymmetric(t *testing.T) {
	a := Source{Name: "a", Assertions: []Assertion{{Subject: "x", Predicate: "p", Object: "y"}}}
	b := Source{Name: "b", Assertions: []Assertion{{Subject: "x", Predicate: "p", Object: "y", Negated: true}}}

	forward := DetectConflicts([]Source{a, b})
	reverse := DetectConflicts([]Source{b, a})
	require.Len(t, forward, 1)
	require.Len(t, reverse, 1)
	assert.Equal(t, forward[0].Assertion, reverse[0].Assertion)
}

func TestDetectConflictsNoFalsePositives(t *testing.T) {
	tests := []struct {
		name string
		a, b Assertion
	}{
		{
			name: "different triples",
			a:    Assertion{Subject: "x", Predicate: "p", Object: "y"},
			b:    Assertion{Subject: "x", Predicate: "p", Object: "z", Negated: true},
		},
		{
			name: "same polarity",
			a:    Assertion{Subject: "x", Predicate: "p", Object: "y"},
			b:    Assertion{Subject: "x", Predicate: "p", Object: "y"},
		},
		{
			name: "both negated",
			a:    Assertion{Subject: "x", Predicate: "p", Object: "y", Negated: true},
			b:    Assertion{Subject: "x", Predicate: "p", Object: "y", Negated: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicts := DetectConflicts([]Source{
				{Name: "a", Assertions: []Assertion{tt.a}},
				{Name: "b", Assertions: []Assertion{tt.b}},
			})
			assert.Empty(t, conflicts)
		})
	}
}

func TestConflictIsError(t *testing.T) {
	c := Conflict{
		First:     "lock:relation",
		Second:    "invariant:no-paris",
		Assertion: Assertion{Subject: "n1", Predicate: "located_in", Object: "n2"},
	}

	var err error = c
	assert.Contains(t, err.Error(), "lock:relation")
	assert.Contains(t, err.Error(), "invariant:no-paris")

	var extracted Conflict
	require.True(t, errors.As(err, &extracted))
	assert.Equal(t, c, extracted)
}

func TestDialsValidate(t *testing.T) {
	tests := []struct {
		name    string
		dials   Dials
		wantErr bool
	}{
		{"empty", Dials{}, false},
		{"all in range", Dials{DialSoul: 0.5, DialEditor: 0, DialFidelity: 1}, false},
		{"below range", Dials{DialSoul: -0.1}, true},
		{"above range", Dials{DialFidelity: 1.1}, true},
		{"unknown dial", Dials{"volume": 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dials.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocksValidateAndActive(t *testing.T) {
	locks := Locks{LockIdentity: true, LockToponym: false, LockPOV: true}
	require.NoError(t, locks.Validate())

	active := locks.Active()
	assert.ElementsMatch(t, []LockName{LockIdentity, LockPOV}, active)

	bad := Locks{"mood": true}
	assert.Error(t, bad.Validate())
}

func TestLocksClone(t *testing.T) {
	locks := Locks{LockIdentity: true}
	clone := locks.Clone()
	clone[LockToponym] = true
	assert.False(t, locks[LockToponym], "clone must not alias the original")
}
