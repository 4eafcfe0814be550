package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

// MemorySubscriberRepository keeps subscribers in process memory.
// The email index allows several ids per email, like the Postgres and DynamoDB indexes.
type MemorySubscriberRepository struct {
	mu      sync.RWMutex
	byID    map[string]*model.Subscriber
	byEmail map[string]map[string]struct{}
}

var _ SubscriberRepository = (*MemorySubscriberRepository)(nil)

// NewMemorySubscriberRepository creates an empty in-memory repository.
func NewMemorySubscriberRepository() *MemorySubscriberRepository {
	return &MemorySubscriberRepository{
		byID:    make(map[string]*model.Subscriber),
		byEmail: make(map[string]map[string]struct{}),
	}
}

func clone(s *model.Subscriber) *model.Subscriber {
	c := *s
	return &c
}

func (r *MemorySubscriberRepository) index(email, id string) {
	ids, ok := r.byEmail[email]
	if !ok {
		ids = make(map[string]struct{})
		r.byEmail[email] = ids
	}
	ids[id] = struct{}{}
}

func (r *MemorySubscriberRepository) unindex(email, id string) {
	ids := r.byEmail[email]
	delete(ids, id)
	if len(ids) == 0 {
		delete(r.byEmail, email)
	}
}

// FindByEmail resolves an email through the email index.
func (r *MemorySubscriberRepository) FindByEmail(_ context.Context, email string) (*model.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byEmail[email]
	switch len(ids) {
	case 0:
		return nil, nil
	case 1:
		for id := range ids {
			return clone(r.byID[id]), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", model.ErrAmbiguousEmail, email)
}

// FindByID retrieves a subscriber by id.
func (r *MemorySubscriberRepository) FindByID(_ context.Context, id string) (*model.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return clone(s), nil
}

// Create inserts a subscriber.
func (r *MemorySubscriberRepository) Create(_ context.Context, s *model.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[s.ID]; ok {
		return fmt.Errorf("%w: %s", model.ErrConflict, s.ID)
	}
	r.byID[s.ID] = clone(s)
	r.index(s.Email, s.ID)
	return nil
}

// UpdateStatusAndTimestamp sets status and updated_at.
func (r *MemorySubscriberRepository) UpdateStatusAndTimestamp(
	_ context.Context, id string, status model.Status, updatedAt int64,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	s.Status = status
	s.UpdatedAt = updatedAt
	return nil
}

// TouchUpdatedAt sets updated_at only.
func (r *MemorySubscriberRepository) TouchUpdatedAt(_ context.Context, id string, updatedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	s.UpdatedAt = updatedAt
	return nil
}

// List returns a page ordered by subscribed_at descending.
func (r *MemorySubscriberRepository) List(_ context.Context, params model.ListParams) (*model.SubscriberPage, error) {
	cursor, err := decodeKeyset(params.NextToken)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	all := make([]*model.Subscriber, 0, len(r.byID))
	for _, s := range r.byID {
		if params.Status != "" && s.Status != params.Status {
			continue
		}
		if !cursor.before(s) {
			continue
		}
		all = append(all, clone(s))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].SubscribedAt != all[j].SubscribedAt {
			return all[i].SubscribedAt > all[j].SubscribedAt
		}
		return all[i].ID > all[j].ID
	})

	if len(all) > params.Limit+1 {
		all = all[:params.Limit+1]
	}
	return pageOf(all, params.Limit)
}

// UpdateEmail changes a subscriber's email and returns the updated record.
func (r *MemorySubscriberRepository) UpdateEmail(
	_ context.Context, id, email string, updatedAt int64,
) (*model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	r.unindex(s.Email, id)
	s.Email = email
	s.UpdatedAt = updatedAt
	r.index(email, id)
	return clone(s), nil
}

// Delete removes a subscriber.
func (r *MemorySubscriberRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	r.unindex(s.Email, id)
	delete(r.byID, id)
	return nil
}

// Stats counts subscribers by status and recent sign-ups.
func (r *MemorySubscriberRepository) Stats(_ context.Context, recentSince int64) (*model.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &model.Stats{TotalSubscribers: len(r.byID)}
	for _, s := range r.byID {
		if s.Status == model.StatusActive {
			stats.ActiveCount++
		}
		if s.SubscribedAt >= recentSince {
			stats.Recent24h++
		}
	}
	stats.InactiveCount = stats.TotalSubscribers - stats.ActiveCount
	return stats, nil
}

// Ping always succeeds.
func (r *MemorySubscriberRepository) Ping(context.Context) error {
	return nil
}
