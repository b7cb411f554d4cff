package draft

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// SpanChange records one span's before/after text across a rewrite iteration.
type SpanChange struct {
	SpanID string `json:"span_id"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Diff is the span-level difference between two drafts of the same shape.
type Diff struct {
	Changes []SpanChange `json:"changes,omitempty"`
}

// Empty reports whether the diff contains no changes.
func (d *Diff) Empty() bool {
	return len(d.Changes) == 0
}

// ChangedSpanIDs returns the identifiers of changed spans in order.
func (d *Diff) ChangedSpanIDs() []string {
	ids := make([]string, len(d.Changes))
	for i, c := range d.Changes {
		ids[i] = c.SpanID
	}
	return ids
}

// Compare computes the span-level diff from before to after. Both drafts must
// have identical span identifier sequences; a rewrite may change span text but
// never add, drop, or reorder spans.
func Compare(before, after *Draft) (*Diff, error) {
	if len(before.Spans) != len(after.Spans) {
		return nil, fmt.Errorf("span count changed: %d -> %d", len(before.Spans), len(after.Spans))
	}
	d := &Diff{}
	for i, b := range before.Spans {
		a := after.Spans[i]
		if b.ID != a.ID {
			return nil, fmt.Errorf("span order changed at index %d: %q -> %q", i, b.ID, a.ID)
		}
		if b.Text != a.Text {
			d.Changes = append(d.Changes, SpanChange{SpanID: b.ID, Before: b.Text, After: a.Text})
		}
	}
	return d, nil
}

// UnchangedOutside reports whether every change in the diff is confined to the
// given span set. This is the minimal-edit check: spans outside the implicated
// set must be byte-identical.
func (d *Diff) UnchangedOutside(allowed map[string]bool) bool {
	for _, c := range d.Changes {
		if !allowed[c.SpanID] {
			return false
		}
	}
	return true
}

// Unified renders the diff as a unified-diff document, one hunk per changed
// span, suitable for embedding in the audit card's human-readable form.
func (d *Diff) Unified(origName, newName string) (string, error) {
	if d.Empty() {
		return "", nil
	}

	fd := &diff.FileDiff{
		OrigName: origName,
		NewName:  newName,
	}
	for _, c := range d.Changes {
		var body strings.Builder
		origLines := strings.Split(c.Before, "\n")
		newLines := strings.Split(c.After, "\n")
		for _, line := range origLines {
			body.WriteString("-" + line + "\n")
		}
		for _, line := range newLines {
			body.WriteString("+" + line + "\n")
		}
		fd.Hunks = append(fd.Hunks, &diff.Hunk{
			OrigStartLine: 1,
			OrigLines:     int32(len(origLines)),
			NewStartLine:  1,
			NewLines:      int32(len(newLines)),
			Section:       c.SpanID,
			Body:          []byte(body.String()),
		})
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("print span diff: %w", err)
	}
	return string(out), nil
}
