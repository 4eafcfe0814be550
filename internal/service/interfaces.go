// Package service provides business logic layer implementations.
package service

import (
	"context"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
	"github.com/johnsosoka/jscom-newsletter-services/internal/queue"
)

// ReconcileService applies subscription intents to the record store.
type ReconcileService interface {
	ProcessMessage(ctx context.Context, msg queue.Message) (model.Transition, error)
	ProcessBatch(ctx context.Context, messages []queue.Message) *model.BatchResult
}

// IntakeService accepts public subscription requests.
type IntakeService interface {
	Subscribe(ctx context.Context, req *model.SubscribeRequest) error
	Unsubscribe(ctx context.Context, req *model.UnsubscribeRequest) error
	Status(ctx context.Context, email string) (*model.SubscriptionStatus, error)
}

// AdminService defines administrative operations on subscriber records.
type AdminService interface {
	ListSubscribers(ctx context.Context, params model.ListParams) (*model.SubscriberPage, error)
	GetSubscriber(ctx context.Context, id string) (*model.Subscriber, error)
	UpdateSubscriberEmail(ctx context.Context, id, email string) (*model.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id string) error
	Stats(ctx context.Context) (*model.Stats, error)
}

// OutboxService defines business logic methods for outbox event processing.
type OutboxService interface {
	ProcessUnpublishedEvents(ctx context.Context, limit int) (int, error)
}

// IntentSink hands an accepted intent to the asynchronous pipeline.
type IntentSink interface {
	Enqueue(ctx context.Context, intent *model.Intent) error
}
