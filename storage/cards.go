// Package storage persists finalized audit cards in NATS KV, keyed by run ID.
// Cards are immutable once written; the store exposes create, get, and list
// but no update.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/lnaes/engine/audit"
)

// BucketCards is the KV bucket holding audit cards.
const BucketCards = "LNAES_AUDIT_CARDS"

// ErrNotFound is returned when no card exists for a run ID.
var ErrNotFound = errors.New("audit card not found")

// ErrExists is returned when a card for the run ID was already stored.
// Cards freeze on finalization; a second write is always a caller bug.
var ErrExists = errors.New("audit card already stored")

// CardStore stores finalized audit cards in NATS KV.
type CardStore struct {
	cards jetstream.KeyValue
}

// NewCardStore opens or creates the card bucket.
func NewCardStore(ctx context.Context, js jetstream.JetStream) (*CardStore, error) {
	kv, err := js.KeyValue(ctx, BucketCards)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      BucketCards,
			Description: "Finalized pipeline audit cards",
		})
		if err != nil {
			return nil, fmt.Errorf("create cards bucket: %w", err)
		}
	}
	return &CardStore{cards: kv}, nil
}

// Put stores a finalized card under its run ID. Refuses unfinalized cards and
// duplicate run IDs.
func (s *CardStore) Put(ctx context.Context, card *audit.Card) error {
	if card.Outcome == "" {
		return fmt.Errorf("card for run %s is not finalized", card.RunID)
	}
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}
	if _, err := s.cards.Create(ctx, card.RunID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrExists
		}
		return fmt.Errorf("store card: %w", err)
	}
	return nil
}

// Get retrieves a card by run ID.
func (s *CardStore) Get(ctx context.Context, runID string) (*audit.Card, error) {
	entry, err := s.cards.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get card: %w", err)
	}
	var card audit.Card
	if err := json.Unmarshal(entry.Value(), &card); err != nil {
		return nil, fmt.Errorf("unmarshal card: %w", err)
	}
	return &card, nil
}

// List returns all stored run IDs.
func (s *CardStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.cards.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return keys, nil
}
