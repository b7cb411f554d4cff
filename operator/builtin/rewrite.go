package builtin

import (
	"context"
	"fmt"

	"github.com/lnaes/engine/operator"
)

// Rewriter applies the verifier's suggested fixes, in the order the violation
// list arrives, touching only implicated spans. Violations without a
// suggestion are left standing; the convergence controller decides whether
// that exhausts the run.
type Rewriter struct{}

// NewRewriter creates the built-in rewriter.
func NewRewriter() *Rewriter { return &Rewriter{} }

// Rewrite returns a draft with suggested replacements applied. Spans outside
// the implicated set are byte-identical to the input; the controller enforces
// that as a contract, this implementation guarantees it by construction.
func (r *Rewriter) Rewrite(_ context.Context, in operator.RewriteInput) (*operator.RewriteOutput, error) {
	if in.Draft == nil {
		return nil, fmt.Errorf("nil draft")
	}
	if err := in.Draft.Validate(); err != nil {
		return nil, fmt.Errorf("draft invalid: %w", err)
	}

	out := in.Draft.Clone()
	for _, viol := range in.Violations {
		if viol.SpanID == "" || viol.Suggested == "" {
			continue
		}
		span := out.Span(viol.SpanID)
		if span == nil {
			return nil, fmt.Errorf("violation references unknown span %q", viol.SpanID)
		}
		span.Text = viol.Suggested
	}
	return &operator.RewriteOutput{Draft: out}, nil
}
