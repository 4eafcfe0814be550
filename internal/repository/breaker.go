package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

// BreakerSettings tunes BreakerSubscriberRepository.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// BreakerSubscriberRepository fails fast with model.ErrStoreUnavailable while the
// wrapped store keeps failing. Domain outcomes such as not-found are not failures.
type BreakerSubscriberRepository struct {
	next SubscriberRepository
	cb   *gobreaker.CircuitBreaker
}

var _ SubscriberRepository = (*BreakerSubscriberRepository)(nil)

// NewBreakerSubscriberRepository wraps next with a circuit breaker.
func NewBreakerSubscriberRepository(next SubscriberRepository, settings BreakerSettings) *BreakerSubscriberRepository {
	threshold := settings.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    settings.Name,
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, model.ErrStoreUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("record store breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &BreakerSubscriberRepository{next: next, cb: cb}
}

// State exposes the breaker state for health reporting.
func (b *BreakerSubscriberRepository) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *BreakerSubscriberRepository, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	if res == nil {
		var zero T
		return zero, err
	}
	return res.(T), err
}

func executeErr(b *BreakerSubscriberRepository, fn func() error) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// FindByEmail implements RecordStore.
func (b *BreakerSubscriberRepository) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	return execute(b, func() (*model.Subscriber, error) { return b.next.FindByEmail(ctx, email) })
}

// FindByID implements RecordStore.
func (b *BreakerSubscriberRepository) FindByID(ctx context.Context, id string) (*model.Subscriber, error) {
	return execute(b, func() (*model.Subscriber, error) { return b.next.FindByID(ctx, id) })
}

// Create implements RecordStore.
func (b *BreakerSubscriberRepository) Create(ctx context.Context, s *model.Subscriber) error {
	return executeErr(b, func() error { return b.next.Create(ctx, s) })
}

// UpdateStatusAndTimestamp implements RecordStore.
func (b *BreakerSubscriberRepository) UpdateStatusAndTimestamp(
	ctx context.Context, id string, status model.Status, updatedAt int64,
) error {
	return executeErr(b, func() error { return b.next.UpdateStatusAndTimestamp(ctx, id, status, updatedAt) })
}

// TouchUpdatedAt implements RecordStore.
func (b *BreakerSubscriberRepository) TouchUpdatedAt(ctx context.Context, id string, updatedAt int64) error {
	return executeErr(b, func() error { return b.next.TouchUpdatedAt(ctx, id, updatedAt) })
}

// List implements SubscriberRepository.
func (b *BreakerSubscriberRepository) List(ctx context.Context, params model.ListParams) (*model.SubscriberPage, error) {
	return execute(b, func() (*model.SubscriberPage, error) { return b.next.List(ctx, params) })
}

// UpdateEmail implements SubscriberRepository.
func (b *BreakerSubscriberRepository) UpdateEmail(
	ctx context.Context, id, email string, updatedAt int64,
) (*model.Subscriber, error) {
	return execute(b, func() (*model.Subscriber, error) { return b.next.UpdateEmail(ctx, id, email, updatedAt) })
}

// Delete implements SubscriberRepository.
func (b *BreakerSubscriberRepository) Delete(ctx context.Context, id string) error {
	return executeErr(b, func() error { return b.next.Delete(ctx, id) })
}

// Stats implements SubscriberRepository.
func (b *BreakerSubscriberRepository) Stats(ctx context.Context, recentSince int64) (*model.Stats, error) {
	return execute(b, func() (*model.Stats, error) { return b.next.Stats(ctx, recentSince) })
}

// Ping bypasses the breaker so readiness reflects the real store.
func (b *BreakerSubscriberRepository) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}
