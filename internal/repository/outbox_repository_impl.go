package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

const outboxColumns = `id, aggregate_id, event_type, payload, created_at, published_at`

// OutboxRepositoryImpl implements OutboxRepository using PostgreSQL.
type OutboxRepositoryImpl struct {
	db DBTX
}

// NewOutboxRepositoryImpl creates a new OutboxRepository implementation.
func NewOutboxRepositoryImpl(pool *pgxpool.Pool) OutboxRepository {
	return &OutboxRepositoryImpl{db: pool}
}

func scanOutboxEvent(row pgx.Row) (*model.OutboxEvent, error) {
	var (
		event       model.OutboxEvent
		publishedAt *time.Time
	)
	if err := row.Scan(
		&event.ID,
		&event.AggregateID,
		&event.EventType,
		&event.Payload,
		&event.CreatedAt,
		&publishedAt,
	); err != nil {
		return nil, err
	}
	event.PublishedAt = publishedAt
	return &event, nil
}

// CreateEvent creates a new outbox event.
func (r *OutboxRepositoryImpl) CreateEvent(
	ctx context.Context, params *model.CreateOutboxEventParams,
) (*model.OutboxEvent, error) {
	const query = `
        INSERT INTO outbox_events (aggregate_id, event_type, payload)
        VALUES ($1, $2, $3)
        RETURNING ` + outboxColumns

	event, err := scanOutboxEvent(querier(ctx, r.db).QueryRow(ctx, query,
		params.AggregateID,
		params.EventType,
		params.Payload,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return event, nil
}

// GetUnpublishedEvents retrieves unpublished outbox events in insertion order.
// Inside a transaction the rows stay locked so concurrent relays skip them.
func (r *OutboxRepositoryImpl) GetUnpublishedEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	const query = `
        SELECT ` + outboxColumns + `
        FROM outbox_events
        WHERE published_at IS NULL
        ORDER BY id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := querier(ctx, r.db).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.OutboxEvent, 0, limit)
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// MarkAsPublished marks an outbox event as published.
func (r *OutboxRepositoryImpl) MarkAsPublished(ctx context.Context, id int64) error {
	const query = `UPDATE outbox_events SET published_at = NOW() WHERE id = $1`

	if _, err := querier(ctx, r.db).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark outbox event %d as published: %w", id, err)
	}

	return nil
}
