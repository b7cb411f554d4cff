package constraint

import "fmt"

// Assertion is a triple-shaped claim about the graph: subject-predicate-object,
// optionally negated ("this edge must not exist"). Locks and HARD invariants
// expand to assertions before conflict detection.
type Assertion struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Negated   bool   `json:"negated,omitempty"`
}

// SameTriple reports whether two assertions claim the same triple, ignoring
// polarity.
func (a Assertion) SameTriple(b Assertion) bool {
	return a.Subject == b.Subject && a.Predicate == b.Predicate && a.Object == b.Object
}

func (a Assertion) String() string {
	if a.Negated {
		return fmt.Sprintf("¬(%s %s %s)", a.Subject, a.Predicate, a.Object)
	}
	return fmt.Sprintf("(%s %s %s)", a.Subject, a.Predicate, a.Object)
}

// Source is a named constraint with its expanded assertions, as fed to the
// conflict detector. Name is the lock or invariant name.
type Source struct {
	Name       string
	Tier       Tier
	Assertions []Assertion
}

// Conflict records a contradictory pair: two constraints asserting the same
// triple with opposite polarity.
type Conflict struct {
	First     string    `json:"first"`
	Second    string    `json:"second"`
	Assertion Assertion `json:"assertion"`
}

func (c Conflict) Error() string {
	return fmt.Sprintf("constraints %q and %q contradict on %s", c.First, c.Second, c.Assertion)
}

// DetectConflicts checks every pair of constraint sources for logical
// contradiction. The check is symmetric and total: the verdict for any pair
// does not depend on evaluation order, and every pair is examined.
func DetectConflicts(sources []Source) []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(sources); i++ {
		for j := i + 1; j < len(sources); j++ {
			conflicts = append(conflicts, conflictsBetween(sources[i], sources[j])...)
		}
	}
	return conflicts
}

// conflictsBetween finds contradictions between two sources. A contradiction
// is a pair of matching triples with opposite polarity, regardless of which
// source carries the negation.
func conflictsBetween(a, b Source) []Conflict {
	var out []Conflict
	for _, aa := range a.Assertions {
		for _, ba := range b.Assertions {
			if aa.SameTriple(ba) && aa.Negated != ba.Negated {
				// Report the positive form so the conflict reads the same
				// whichever side was negated.
				positive := aa
				positive.Negated = false
				out = append(out, Conflict{First: a.Name, Second: b.Name, Assertion: positive})
			}
		}
	}
	return out
}
