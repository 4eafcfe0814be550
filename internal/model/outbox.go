package model

import (
	"fmt"
	"time"
)

// OutboxEvent is an intent persisted by the intake API awaiting relay to the queue.
// AggregateID is the intent's email and EventType its operation.
type OutboxEvent struct {
	ID          int64      `json:"id"`
	AggregateID string     `json:"aggregate_id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at"`
}

// Operation returns the operation the event was recorded for.
func (e *OutboxEvent) Operation() Operation {
	return Operation(e.EventType)
}

// CreateOutboxEventParams represents parameters for creating a new outbox event.
type CreateOutboxEventParams struct {
	AggregateID string
	EventType   string
	Payload     []byte
}

// NewOutboxEventParams encodes intent as an outbox row. The payload is the queue wire format.
func NewOutboxEventParams(intent *Intent) (*CreateOutboxEventParams, error) {
	payload, err := intent.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intent: %w", err)
	}
	return &CreateOutboxEventParams{
		AggregateID: intent.Email,
		EventType:   string(intent.Operation),
		Payload:     payload,
	}, nil
}
