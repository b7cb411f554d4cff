package builtin

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/draft"
	"github.com/lnaes/engine/graph"
	"github.com/lnaes/engine/operator"
)

// nearMissPrefix is the shared-prefix length treated as a probable corruption
// of a locked surface form ("Alicia" for a locked "Alice").
const nearMissPrefix = 4

// Verifier checks a draft against the locked graph, the editor brief, and the
// style targets. Lock breaches are HARD; editor and style misses are SOFT and
// never block convergence on their own.
//
// Brief and target directives use a small prefix grammar:
//
//	editor brief:   "mention:word"  the draft must mention word
//	style targets:  "avoid:word"    no span may contain word
type Verifier struct{}

// NewVerifier creates the built-in verifier.
func NewVerifier() *Verifier { return &Verifier{} }

// Verify returns violations in discovery order (the orchestrator re-orders by
// precedence) plus observational metrics. Violations is empty, never nil, for
// a clean draft.
func (v *Verifier) Verify(_ context.Context, in operator.VerifyInput) (*operator.VerifyOutput, error) {
	if in.Draft == nil || in.Locked == nil {
		return nil, fmt.Errorf("draft and locked graph are required")
	}
	if err := in.Draft.Validate(); err != nil {
		return nil, fmt.Errorf("draft invalid: %w", err)
	}

	violations := []constraint.Violation{}
	lockChecks := 0

	for _, name := range in.Locked.Locks.Active() {
		for _, ann := range in.Locked.AnnotationsFor(name) {
			lockChecks++
			if viol := checkAnnotation(in.Draft, in.Locked, name, ann); viol != nil {
				violations = append(violations, *viol)
			}
		}
	}

	editorMisses, editorChecks := checkEditorBrief(in.Draft, in.EditorBrief)
	violations = append(violations, editorMisses...)

	styleMisses, styleChecks := checkStyleTargets(in.Draft, in.StyleTargets)
	violations = append(violations, styleMisses...)

	metrics := []constraint.Metric{
		{Name: "invariant_adherence", Value: adherence(lockChecks, constraint.HardCount(violations))},
		{Name: "market_alignment", Value: adherence(editorChecks, len(editorMisses))},
		{Name: "style_adherence", Value: adherence(styleChecks, len(styleMisses))},
	}

	return &operator.VerifyOutput{Violations: violations, Metrics: metrics}, nil
}

func adherence(checks, misses int) float64 {
	if checks == 0 {
		return 1
	}
	return 1 - float64(misses)/float64(checks)
}

// checkAnnotation verifies one lock annotation against the draft.
func checkAnnotation(d *draft.Draft, locked *graph.Locked, name constraint.LockName, ann graph.LockAnnotation) *constraint.Violation {
	switch name {
	case constraint.LockIdentity, constraint.LockToponym:
		return checkSurface(d, name, ann)
	case constraint.LockRelation:
		return checkRelation(d, locked, name, ann)
	case constraint.LockPOV:
		return checkPOV(d, name, ann)
	}
	return nil
}

// checkSurface requires the locked surface form verbatim somewhere in the
// draft. A near-miss token pins the violation to its span and yields a
// suggested minimal replacement.
func checkSurface(d *draft.Draft, name constraint.LockName, ann graph.LockAnnotation) *constraint.Violation {
	for _, s := range d.Spans {
		if containsWord(s.Text, ann.Surface) {
			return nil
		}
	}

	viol := &constraint.Violation{
		Constraint: "lock:" + string(name),
		Tier:       constraint.TierLock,
		Severity:   constraint.SeverityHard,
		ElementID:  ann.ElementID,
		Detail:     fmt.Sprintf("locked surface form %q not present in draft", ann.Surface),
	}

	for _, s := range d.Spans {
		if token := nearMiss(s.Text, ann.Surface); token != "" {
			viol.SpanID = s.ID
			viol.Detail = fmt.Sprintf("span uses %q where lock requires %q", token, ann.Surface)
			viol.Suggested = replaceWord(s.Text, token, ann.Surface)
			return viol
		}
	}

	if len(d.Spans) > 0 {
		viol.SpanID = d.Spans[0].ID
	}
	return viol
}

// checkRelation requires a locked edge's endpoint labels to co-occur in at
// least one span.
func checkRelation(d *draft.Draft, locked *graph.Locked, name constraint.LockName, ann graph.LockAnnotation) *constraint.Violation {
	e := locked.Graph.Edge(ann.ElementID)
	if e == nil {
		return nil
	}
	from := locked.Graph.Node(e.From)
	to := locked.Graph.Node(e.To)
	if from == nil || to == nil {
		return nil
	}

	for _, s := range d.Spans {
		if containsWord(s.Text, from.Label) && containsWord(s.Text, to.Label) {
			return nil
		}
	}

	viol := &constraint.Violation{
		Constraint: "lock:" + string(name),
		Tier:       constraint.TierLock,
		Severity:   constraint.SeverityHard,
		ElementID:  e.ID,
		Detail: fmt.Sprintf("locked relation %s %s %s not expressed: %q and %q never co-occur",
			from.Label, e.Type, to.Label, from.Label, to.Label),
	}
	if len(d.Spans) > 0 {
		viol.SpanID = d.Spans[0].ID
	}
	return viol
}

// checkPOV holds the draft to the locked point of view.
func checkPOV(d *draft.Draft, name constraint.LockName, ann graph.LockAnnotation) *constraint.Violation {
	firstPerson := ""
	for _, s := range d.Spans {
		if containsWord(s.Text, "I") {
			firstPerson = s.ID
			break
		}
	}

	switch ann.Surface {
	case "first-person":
		if firstPerson == "" {
			viol := &constraint.Violation{
				Constraint: "lock:" + string(name),
				Tier:       constraint.TierLock,
				Severity:   constraint.SeverityHard,
				Detail:     "locked first-person narration absent from draft",
			}
			if len(d.Spans) > 0 {
				viol.SpanID = d.Spans[0].ID
			}
			return viol
		}
	case "third-person":
		if firstPerson != "" {
			return &constraint.Violation{
				Constraint: "lock:" + string(name),
				Tier:       constraint.TierLock,
				Severity:   constraint.SeverityHard,
				SpanID:     firstPerson,
				Detail:     "draft slips into first person under a third-person lock",
			}
		}
	}
	return nil
}

// checkEditorBrief evaluates "mention:" directives. Misses are SOFT at the
// editor tier.
func checkEditorBrief(d *draft.Draft, brief string) ([]constraint.Violation, int) {
	var misses []constraint.Violation
	checks := 0
	text := d.Text()

	for _, directive := range strings.Fields(brief) {
		word, ok := strings.CutPrefix(directive, "mention:")
		if !ok {
			continue
		}
		checks++
		if containsWord(text, word) {
			continue
		}
		viol := constraint.Violation{
			Constraint: "editor:" + word,
			Tier:       constraint.TierEditor,
			Severity:   constraint.SeveritySoft,
			Detail:     fmt.Sprintf("editor brief asks for %q, draft never mentions it", word),
		}
		if len(d.Spans) > 0 {
			viol.SpanID = d.Spans[0].ID
		}
		misses = append(misses, viol)
	}
	return misses, checks
}

// checkStyleTargets evaluates "avoid:" directives. Misses are SOFT at the
// style tier, with a suggested span fix.
func checkStyleTargets(d *draft.Draft, targets []string) ([]constraint.Violation, int) {
	var misses []constraint.Violation
	checks := 0

	for _, target := range targets {
		word, ok := strings.CutPrefix(target, "avoid:")
		if !ok {
			continue
		}
		checks++
		for _, s := range d.Spans {
			if !containsWord(s.Text, word) {
				continue
			}
			misses = append(misses, constraint.Violation{
				Constraint: "style:" + word,
				Tier:       constraint.TierStyle,
				Severity:   constraint.SeveritySoft,
				SpanID:     s.ID,
				Detail:     fmt.Sprintf("style target avoids %q, span uses it", word),
				Suggested:  removeWord(s.Text, word),
			})
			break
		}
	}
	return misses, checks
}

// tokenize splits span text into word tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// containsWord reports whether text contains word as a whole token, or the
// full phrase for multi-word surfaces. The single-letter pronoun "I" is
// matched case-sensitively; everything else folds case.
func containsWord(text, word string) bool {
	if strings.Contains(word, " ") {
		return strings.Contains(strings.ToLower(text), strings.ToLower(word))
	}
	for _, tok := range tokenize(text) {
		if word == "I" {
			if tok == "I" {
				return true
			}
			continue
		}
		if strings.EqualFold(tok, word) {
			return true
		}
	}
	return false
}

// nearMiss returns a token that looks like a corruption of surface: a shared
// prefix without an exact match. Empty when nothing qualifies.
func nearMiss(text, surface string) string {
	first := strings.ToLower(strings.Fields(surface)[0])
	n := nearMissPrefix
	if len(first) < n {
		n = len(first) - 1
	}
	if n < 3 {
		n = 3
	}
	if len(first) < n {
		return ""
	}
	prefix := first[:n]

	for _, tok := range tokenize(text) {
		low := strings.ToLower(tok)
		if low == first {
			continue
		}
		if strings.HasPrefix(low, prefix) || (len(low) >= n && strings.HasPrefix(first, low[:n])) {
			return tok
		}
	}
	return ""
}

// replaceWord replaces whole-token occurrences of old with new.
func replaceWord(text, old, new string) string {
	tokens := strings.Split(text, " ")
	for i, tok := range tokens {
		if strings.Trim(tok, ".,;:!?\"'") == old {
			tokens[i] = strings.Replace(tok, old, new, 1)
		}
	}
	return strings.Join(tokens, " ")
}

// removeWord removes whole-token occurrences of word from text.
func removeWord(text, word string) string {
	var kept []string
	for _, tok := range strings.Split(text, " ") {
		if strings.EqualFold(strings.Trim(tok, ".,;:!?\"'"), word) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}
