package audit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lnaes/engine/constraint"
)

// MarshalStructured renders the card as an indented JSON document. This is the
// persistable form; it carries exactly the same information as Render.
func (c *Card) MarshalStructured() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Render produces the human-readable form of the card. Both renderings derive
// from the same in-memory record; neither carries information the other lacks.
func (c *Card) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Audit Card %s\n", c.RunID)
	fmt.Fprintf(&sb, "  started:  %s\n", c.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&sb, "  finished: %s\n", c.FinishedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&sb, "  outcome:  %s\n", c.Outcome)
	if c.FailureStage != "" {
		fmt.Fprintf(&sb, "  failure:  %s (%s)\n", c.FailureDetail, c.FailureStage)
	}
	if c.OntologyVersion != "" {
		fmt.Fprintf(&sb, "  ontology: %s\n", c.OntologyVersion)
	}
	fmt.Fprintf(&sb, "  soul-mode disclosed: %t\n", c.SoulModeDisclosed)
	fmt.Fprintf(&sb, "  entries:  %d\n", len(c.Entries))

	for i, e := range c.Entries {
		fmt.Fprintf(&sb, "\n[%d] %s", i+1, e.Stage)
		if e.Iteration > 0 {
			fmt.Fprintf(&sb, " (iteration %d)", e.Iteration)
		}
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "    at:         %s\n", e.At.Format("15:04:05.000"))
		fmt.Fprintf(&sb, "    input hash: %s\n", shortHash(e.InputHash))
		if len(e.Dials) > 0 {
			fmt.Fprintf(&sb, "    dials:      %s\n", formatDials(e))
		}
		if len(e.Locks) > 0 {
			names := make([]string, len(e.Locks))
			for j, l := range e.Locks {
				names[j] = string(l)
			}
			fmt.Fprintf(&sb, "    locks:      %s\n", strings.Join(names, ", "))
		}
		for _, v := range e.Violations {
			loc := v.SpanID
			if loc == "" {
				loc = v.ElementID
			}
			fmt.Fprintf(&sb, "    violation:  [%s/%s] %s at %s: %s\n",
				v.Severity, v.Tier, v.Constraint, loc, v.Detail)
		}
		for _, m := range e.Metrics {
			fmt.Fprintf(&sb, "    metric:     %s = %.3f\n", m.Name, m.Value)
		}
		if e.Diff != nil && !e.Diff.Empty() {
			unified, err := e.Diff.Unified("draft:before", "draft:after")
			if err != nil {
				fmt.Fprintf(&sb, "    diff:       (unrenderable: %v)\n", err)
			} else {
				sb.WriteString(indent(unified, "    "))
			}
		}
		if e.Note != "" {
			fmt.Fprintf(&sb, "    note:       %s\n", e.Note)
		}
	}

	return sb.String()
}

func formatDials(e Entry) string {
	parts := make([]string, 0, len(e.Dials))
	for _, name := range []constraint.DialName{constraint.DialSoul, constraint.DialEditor, constraint.DialFidelity} {
		if v, ok := e.Dials[name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.2f", name, v))
		}
	}
	return strings.Join(parts, " ")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}
