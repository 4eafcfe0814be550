package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/johnsosoka/jscom-newsletter-services/internal/queue"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
)

// OutboxServiceImpl relays outbox events to the intent queue.
type OutboxServiceImpl struct {
	outboxRepo     repository.OutboxRepository
	transactionMgr repository.TransactionManager
	producer       queue.Producer
}

// NewOutboxServiceImpl creates a new OutboxService implementation.
func NewOutboxServiceImpl(
	outboxRepo repository.OutboxRepository,
	transactionMgr repository.TransactionManager,
	producer queue.Producer,
) OutboxService {
	return &OutboxServiceImpl{
		outboxRepo:     outboxRepo,
		transactionMgr: transactionMgr,
		producer:       producer,
	}
}

// ProcessUnpublishedEvents publishes up to limit events and returns how many were relayed.
// Rows stay locked for the duration of the transaction, so concurrent publishers skip them.
// A failed publish stops the batch to keep intents for one email in order; the event is
// retried on the next poll. An event published but not marked is relayed again, which
// the reconciler tolerates.
func (s *OutboxServiceImpl) ProcessUnpublishedEvents(ctx context.Context, limit int) (int, error) {
	published := 0

	err := s.transactionMgr.WithTransaction(ctx, func(ctx context.Context) error {
		events, err := s.outboxRepo.GetUnpublishedEvents(ctx, limit)
		if err != nil {
			return err
		}

		for _, event := range events {
			if err := s.producer.Publish(ctx, event.Payload); err != nil {
				slog.Error("failed to publish outbox event",
					slog.Int64("event_id", event.ID),
					slog.String("error", err.Error()),
				)
				break
			}

			if err := s.outboxRepo.MarkAsPublished(ctx, event.ID); err != nil {
				return fmt.Errorf("failed to mark event %d as published: %w", event.ID, err)
			}

			published++
			slog.Debug("published outbox event",
				slog.Int64("event_id", event.ID),
				slog.String("operation", string(event.Operation())),
				slog.String("email", event.AggregateID),
			)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return published, nil
}
