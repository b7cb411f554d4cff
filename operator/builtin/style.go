package builtin

import (
	"context"

	"github.com/lnaes/engine/constraint"
	"github.com/lnaes/engine/operator"
)

// Styler derives the provider-agnostic style signal from the run's dials,
// style targets, and editor brief. Dials influence only this signal and the
// SOFT tier; they never reach a lock.
type Styler struct{}

// NewStyler creates the built-in styler.
func NewStyler() *Styler { return &Styler{} }

// Style maps dial positions onto a generation-conditioning signal.
func (s *Styler) Style(_ context.Context, in operator.StyleInput) (*operator.StyleOutput, error) {
	if err := in.Dials.Validate(); err != nil {
		return nil, err
	}

	soul := in.Dials.Get(constraint.DialSoul)
	signal := operator.StyleSignal{
		Tone:      toneFor(soul),
		Intensity: soul,
		Fidelity:  in.Dials.Get(constraint.DialFidelity),
		Targets:   in.StyleTargets,
		Brief:     in.EditorBrief,
	}
	return &operator.StyleOutput{Signal: signal}, nil
}

func toneFor(soul float64) string {
	switch {
	case soul > 0.66:
		return "lyric"
	case soul > 0.33:
		return "warm"
	default:
		return "plain"
	}
}
