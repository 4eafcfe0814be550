package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
	"github.com/johnsosoka/jscom-newsletter-services/internal/queue"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
)

const unknownMeta = "unknown"

// IntakeServiceImpl validates public requests and hands intents to a sink.
// It never writes subscriber records.
type IntakeServiceImpl struct {
	store repository.RecordStore
	sink  IntentSink
	clock func() time.Time
}

// NewIntakeServiceImpl creates a new IntakeService implementation.
func NewIntakeServiceImpl(store repository.RecordStore, sink IntentSink, clock func() time.Time) IntakeService {
	if clock == nil {
		clock = time.Now
	}
	return &IntakeServiceImpl{store: store, sink: sink, clock: clock}
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return unknownMeta
	}
	return v
}

// Subscribe enqueues a subscribe intent.
func (s *IntakeServiceImpl) Subscribe(ctx context.Context, req *model.SubscribeRequest) error {
	email, err := model.NormalizeEmail(req.Email)
	if err != nil {
		return err
	}
	if err := model.ValidateName(req.Name); err != nil {
		return err
	}

	name := strings.TrimSpace(req.Name)
	return s.enqueue(ctx, &model.Intent{
		Operation: model.OperationSubscribe,
		Email:     email,
		Name:      &name,
		IPAddress: orUnknown(req.Meta.IPAddress),
		UserAgent: orUnknown(req.Meta.UserAgent),
		Timestamp: s.clock().Unix(),
	})
}

// Unsubscribe enqueues an unsubscribe intent.
func (s *IntakeServiceImpl) Unsubscribe(ctx context.Context, req *model.UnsubscribeRequest) error {
	email, err := model.NormalizeEmail(req.Email)
	if err != nil {
		return err
	}

	return s.enqueue(ctx, &model.Intent{
		Operation: model.OperationUnsubscribe,
		Email:     email,
		IPAddress: orUnknown(req.Meta.IPAddress),
		UserAgent: orUnknown(req.Meta.UserAgent),
		Timestamp: s.clock().Unix(),
	})
}

func (s *IntakeServiceImpl) enqueue(ctx context.Context, intent *model.Intent) error {
	if err := s.sink.Enqueue(ctx, intent); err != nil {
		return fmt.Errorf("failed to enqueue %s intent: %w", intent.Operation, err)
	}

	slog.Info("intent accepted",
		slog.String("operation", string(intent.Operation)),
		slog.String("email", intent.Email),
	)

	return nil
}

// Status reports the stored state of an email.
func (s *IntakeServiceImpl) Status(ctx context.Context, email string) (*model.SubscriptionStatus, error) {
	email, err := model.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	subscriber, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up subscriber: %w", err)
	}
	if subscriber == nil {
		return &model.SubscriptionStatus{Email: email, Status: model.NotFoundStatus}, nil
	}

	return &model.SubscriptionStatus{
		Email:        email,
		Status:       string(subscriber.Status),
		SubscribedAt: &subscriber.SubscribedAt,
		UpdatedAt:    &subscriber.UpdatedAt,
	}, nil
}

// QueueSink publishes intents straight to the queue.
type QueueSink struct {
	producer queue.Producer
}

// NewQueueSink creates a sink for the direct intake mode.
func NewQueueSink(producer queue.Producer) *QueueSink {
	return &QueueSink{producer: producer}
}

// Enqueue implements IntentSink.
func (s *QueueSink) Enqueue(ctx context.Context, intent *model.Intent) error {
	body, err := intent.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}
	return s.producer.Publish(ctx, body)
}

// OutboxSink records intents in the outbox table; the publisher relays them.
type OutboxSink struct {
	outboxRepo     repository.OutboxRepository
	transactionMgr repository.TransactionManager
}

// NewOutboxSink creates a sink for the outbox intake mode.
func NewOutboxSink(outboxRepo repository.OutboxRepository, transactionMgr repository.TransactionManager) *OutboxSink {
	return &OutboxSink{outboxRepo: outboxRepo, transactionMgr: transactionMgr}
}

// Enqueue implements IntentSink.
func (s *OutboxSink) Enqueue(ctx context.Context, intent *model.Intent) error {
	params, err := model.NewOutboxEventParams(intent)
	if err != nil {
		return err
	}

	return s.transactionMgr.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.outboxRepo.CreateEvent(ctx, params); err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		return nil
	})
}
