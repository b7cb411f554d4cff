package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// CardSubject is the JetStream subject finalized cards are published to.
const CardSubject = "audit.card.finalized"

// Publisher publishes finalized cards to JetStream. A nil Publisher or one
// without a JetStream context degrades to a no-op so runs never depend on the
// messaging layer being up.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a publisher over an existing JetStream context.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// Publish sends a finalized card. Skips silently when unconfigured.
func (p *Publisher) Publish(ctx context.Context, card *Card) error {
	if p == nil || p.js == nil {
		return nil
	}

	data, err := card.MarshalStructured()
	if err != nil {
		return fmt.Errorf("marshal audit card: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := p.js.Publish(pubCtx, CardSubject, data); err != nil {
		return fmt.Errorf("publish audit card %s: %w", card.RunID, err)
	}
	return nil
}
