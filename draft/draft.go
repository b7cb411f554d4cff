// Package draft models generated text as an ordered sequence of identified
// spans. Span identifiers are stable across rewrite iterations so that "this
// span was / was not touched" is expressible and checkable.
package draft

import (
	"fmt"
	"strings"
)

// Span is a unit of draft text with a stable identifier.
type Span struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Draft is an ordered sequence of text spans. It is produced once by the
// generation step and then exclusively mutated by REWRITE, one minimal diff
// per convergence iteration.
type Draft struct {
	Spans []Span `json:"spans"`
}

// New builds a draft from raw text, one span per paragraph. Span IDs are
// positional ("s1", "s2", ...) and remain stable across rewrites.
func New(text string) *Draft {
	paras := strings.Split(strings.TrimSpace(text), "\n\n")
	d := &Draft{}
	for i, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d.Spans = append(d.Spans, Span{ID: fmt.Sprintf("s%d", i+1), Text: p})
	}
	return d
}

// Validate checks span identifier uniqueness and non-emptiness.
func (d *Draft) Validate() error {
	seen := make(map[string]bool, len(d.Spans))
	for _, s := range d.Spans {
		if s.ID == "" {
			return fmt.Errorf("span with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate span id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Span returns the span with the given id, or nil.
func (d *Draft) Span(id string) *Span {
	for i := range d.Spans {
		if d.Spans[i].ID == id {
			return &d.Spans[i]
		}
	}
	return nil
}

// Clone returns an independent copy of the draft.
func (d *Draft) Clone() *Draft {
	c := &Draft{Spans: make([]Span, len(d.Spans))}
	copy(c.Spans, d.Spans)
	return c
}

// Text joins all spans into the full draft text.
func (d *Draft) Text() string {
	parts := make([]string, len(d.Spans))
	for i, s := range d.Spans {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n\n")
}

// SpanIDs returns all span identifiers in order.
func (d *Draft) SpanIDs() []string {
	ids := make([]string, len(d.Spans))
	for i, s := range d.Spans {
		ids[i] = s.ID
	}
	return ids
}
