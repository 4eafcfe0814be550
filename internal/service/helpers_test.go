package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
	"github.com/johnsosoka/jscom-newsletter-services/internal/queue"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
)

// countingStore wraps the memory repository and counts writes.
type countingStore struct {
	*repository.MemorySubscriberRepository
	writes atomic.Int64
}

func newCountingStore() *countingStore {
	return &countingStore{MemorySubscriberRepository: repository.NewMemorySubscriberRepository()}
}

func (c *countingStore) Create(ctx context.Context, s *model.Subscriber) error {
	c.writes.Add(1)
	return c.MemorySubscriberRepository.Create(ctx, s)
}

func (c *countingStore) UpdateStatusAndTimestamp(ctx context.Context, id string, status model.Status, updatedAt int64) error {
	c.writes.Add(1)
	return c.MemorySubscriberRepository.UpdateStatusAndTimestamp(ctx, id, status, updatedAt)
}

func (c *countingStore) TouchUpdatedAt(ctx context.Context, id string, updatedAt int64) error {
	c.writes.Add(1)
	return c.MemorySubscriberRepository.TouchUpdatedAt(ctx, id, updatedAt)
}

func (c *countingStore) only(t *testing.T) *model.Subscriber {
	t.Helper()
	page, err := c.List(context.Background(), model.ListParams{Limit: 100})
	require.NoError(t, err)
	require.Len(t, page.Subscribers, 1)
	return page.Subscribers[0]
}

// fakeClock is a settable engine clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{now: time.Unix(unix, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("sub-%d", n.Add(1))
	}
}

func intentMessage(t *testing.T, handle string, fields map[string]any) queue.Message {
	t.Helper()
	body, err := json.Marshal(fields)
	require.NoError(t, err)
	return queue.Message{Handle: handle, Body: string(body), Attempt: 1}
}

func subscribeMsg(t *testing.T, handle, email string) queue.Message {
	return intentMessage(t, handle, map[string]any{
		"operation":  "subscribe",
		"email":      email,
		"name":       "A",
		"ip_address": "1.1.1.1",
		"user_agent": "UA",
		"timestamp":  1000,
	})
}

func unsubscribeMsg(t *testing.T, handle, email string) queue.Message {
	return intentMessage(t, handle, map[string]any{
		"operation":  "unsubscribe",
		"email":      email,
		"name":       nil,
		"ip_address": "1.1.1.1",
		"user_agent": "UA",
		"timestamp":  1000,
	})
}
