// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

// RecordStore is the narrow set of record operations the reconciliation engine relies on.
// Finders return nil, nil when no record matches.
type RecordStore interface {
	FindByEmail(ctx context.Context, email string) (*model.Subscriber, error)
	FindByID(ctx context.Context, id string) (*model.Subscriber, error)
	Create(ctx context.Context, subscriber *model.Subscriber) error
	UpdateStatusAndTimestamp(ctx context.Context, id string, status model.Status, updatedAt int64) error
	TouchUpdatedAt(ctx context.Context, id string, updatedAt int64) error
}

// SubscriberRepository adds the administrative operations to RecordStore.
type SubscriberRepository interface {
	RecordStore
	List(ctx context.Context, params model.ListParams) (*model.SubscriberPage, error)
	UpdateEmail(ctx context.Context, id, email string, updatedAt int64) (*model.Subscriber, error)
	Delete(ctx context.Context, id string) error
	// Stats folds the whole table; recentSince is the epoch second lower bound for Recent24h.
	Stats(ctx context.Context, recentSince int64) (*model.Stats, error)
	Ping(ctx context.Context) error
}

// OutboxRepository defines methods for outbox event data access.
type OutboxRepository interface {
	CreateEvent(ctx context.Context, params *model.CreateOutboxEventParams) (*model.OutboxEvent, error)
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkAsPublished(ctx context.Context, id int64) error
}

// TransactionManager defines methods for database transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
