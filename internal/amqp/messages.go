package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"budgettracker/internal/core"
	"budgettracker/internal/rates"
)

// EventType names the payload carried by an Envelope.
type EventType string

const (
	EventRatesUpdated       EventType = "rates.updated"
	EventTransactionChanged EventType = "transaction.changed"
)

// Transaction change operations.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
	OpCleared = "cleared"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Envelope is the wire format of every message on the exchange.
type Envelope struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RatesUpdated is published after a successful fetch from a live source.
type RatesUpdated struct {
	Snapshot   rates.Snapshot   `json:"snapshot"`
	Provenance rates.Provenance `json:"provenance"`
}

// TransactionChanged carries the new state of a transaction. Transaction is
// nil for deletions; TransactionID is empty when a user's list is cleared.
type TransactionChanged struct {
	Op            string            `json:"op"`
	UserID        string            `json:"userId"`
	TransactionID string            `json:"transactionId,omitempty"`
	Transaction   *core.Transaction `json:"transaction,omitempty"`
}

// NewEnvelope wraps payload in an envelope stamped with the current time.
func NewEnvelope(t EventType, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Timestamp: time.Now().UTC(), Payload: body}, nil
}

func (e Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EnvelopeFromJSON(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrUnknownEvent)
	}
	return env, nil
}

func (e Envelope) RatesUpdated() (RatesUpdated, error) {
	var ev RatesUpdated
	if e.Type != EventRatesUpdated {
		return ev, fmt.Errorf("%w: %s is not %s", ErrUnknownEvent, e.Type, EventRatesUpdated)
	}
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return ev, nil
}

func (e Envelope) TransactionChanged() (TransactionChanged, error) {
	var ev TransactionChanged
	if e.Type != EventTransactionChanged {
		return ev, fmt.Errorf("%w: %s is not %s", ErrUnknownEvent, e.Type, EventTransactionChanged)
	}
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return ev, nil
}
