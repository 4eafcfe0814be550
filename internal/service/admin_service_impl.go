package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
)

// Listing bounds for admin pagination.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
	recentWindow     = 24 * time.Hour
)

// AdminServiceImpl implements AdminService.
type AdminServiceImpl struct {
	repo  repository.SubscriberRepository
	clock func() time.Time
}

// NewAdminServiceImpl creates a new AdminService implementation.
func NewAdminServiceImpl(repo repository.SubscriberRepository, clock func() time.Time) AdminService {
	if clock == nil {
		clock = time.Now
	}
	return &AdminServiceImpl{repo: repo, clock: clock}
}

// ListSubscribers returns one page of subscribers. A zero limit selects DefaultListLimit.
func (s *AdminServiceImpl) ListSubscribers(ctx context.Context, params model.ListParams) (*model.SubscriberPage, error) {
	if params.Limit == 0 {
		params.Limit = DefaultListLimit
	}
	if params.Limit < 1 || params.Limit > MaxListLimit {
		return nil, model.ErrInvalidLimit
	}
	if params.Status != "" && !params.Status.Valid() {
		return nil, model.ErrInvalidStatus
	}

	page, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return page, nil
}

// GetSubscriber returns ErrNotFound when the id is unknown.
func (s *AdminServiceImpl) GetSubscriber(ctx context.Context, id string) (*model.Subscriber, error) {
	subscriber, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	if subscriber == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return subscriber, nil
}

// UpdateSubscriberEmail changes the email unless another record already owns it.
func (s *AdminServiceImpl) UpdateSubscriberEmail(ctx context.Context, id, email string) (*model.Subscriber, error) {
	email, err := model.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	current, err := s.GetSubscriber(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Email == email {
		return current, nil
	}

	owner, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrAmbiguousEmail) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if owner != nil || errors.Is(err, model.ErrAmbiguousEmail) {
		return nil, fmt.Errorf("%w: %s", model.ErrEmailTaken, email)
	}

	updated, err := s.repo.UpdateEmail(ctx, id, email, s.clock().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to update subscriber: %w", err)
	}

	slog.Info("subscriber email updated", slog.String("subscriber_id", id))

	return updated, nil
}

// DeleteSubscriber hard-deletes a record.
func (s *AdminServiceImpl) DeleteSubscriber(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}

	slog.Info("subscriber deleted", slog.String("subscriber_id", id))

	return nil
}

// Stats folds the table; Recent24h counts sign-ups in the last 24 hours.
func (s *AdminServiceImpl) Stats(ctx context.Context) (*model.Stats, error) {
	since := s.clock().Add(-recentWindow).Unix()

	stats, err := s.repo.Stats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return stats, nil
}
