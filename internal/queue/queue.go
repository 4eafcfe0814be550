// Package queue adapts durable message queues to the reconciliation engine.
package queue

import (
	"context"
	"time"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

// Message is one delivery of an intent.
type Message struct {
	// Handle identifies this delivery for Ack and DeadLetter.
	Handle string
	Body   string
	// Attempt is the delivery count reported by the backend, or 0 when unknown.
	Attempt int
}

// Consumer reads intents with at-least-once semantics. A message that is neither
// acknowledged nor dead-lettered is delivered again.
type Consumer interface {
	Receive(ctx context.Context) ([]Message, error)
	Ack(ctx context.Context, handles ...string) error
	DeadLetter(ctx context.Context, msg Message, reason string) error
}

// Producer appends an intent body to the queue.
type Producer interface {
	Publish(ctx context.Context, body []byte) error
}

// BatchProcessor applies a delivered batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, messages []Message) *model.BatchResult
}

// BatchObserver is notified after every processed batch.
type BatchObserver interface {
	ObserveBatch(size int, elapsed time.Duration)
}
