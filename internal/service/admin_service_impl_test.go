package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
)

func newAdminFixture(t *testing.T) (AdminService, *repository.MemorySubscriberRepository) {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemorySubscriberRepository()
	now := int64(100_000)
	for _, s := range []*model.Subscriber{
		{ID: "1", Email: "a@x.com", Status: model.StatusActive, SubscribedAt: now - 10, UpdatedAt: now - 10},
		{ID: "2", Email: "b@x.com", Status: model.StatusInactive, SubscribedAt: 50, UpdatedAt: now},
		{ID: "3", Email: "c@x.com", Status: model.StatusActive, SubscribedAt: 1, UpdatedAt: 1},
	} {
		require.NoError(t, repo.Create(ctx, s))
	}
	return NewAdminServiceImpl(repo, newFakeClock(now).Now), repo
}

func TestAdmin_ListLimits(t *testing.T) {
	svc, _ := newAdminFixture(t)
	ctx := context.Background()

	page, err := svc.ListSubscribers(ctx, model.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Nil(t, page.NextToken)

	for _, limit := range []int{-1, 101} {
		_, err := svc.ListSubscribers(ctx, model.ListParams{Limit: limit})
		assert.ErrorIs(t, err, model.ErrInvalidLimit)
	}

	_, err = svc.ListSubscribers(ctx, model.ListParams{Limit: 10, Status: "pending"})
	assert.ErrorIs(t, err, model.ErrInvalidStatus)
}

func TestAdmin_ListPagesThroughEverything(t *testing.T) {
	svc, _ := newAdminFixture(t)
	ctx := context.Background()

	var ids []string
	params := model.ListParams{Limit: 1}
	for {
		page, err := svc.ListSubscribers(ctx, params)
		require.NoError(t, err)
		for _, s := range page.Subscribers {
			ids = append(ids, s.ID)
		}
		if page.NextToken == nil {
			break
		}
		params.NextToken = *page.NextToken
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestAdmin_GetSubscriber(t *testing.T) {
	svc, _ := newAdminFixture(t)

	s, err := svc.GetSubscriber(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", s.Email)

	_, err = svc.GetSubscriber(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAdmin_UpdateSubscriberEmail(t *testing.T) {
	svc, repo := newAdminFixture(t)
	ctx := context.Background()

	updated, err := svc.UpdateSubscriberEmail(ctx, "1", " new@x.com ")
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", updated.Email)
	assert.Equal(t, int64(100_000), updated.UpdatedAt)

	old, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, old)

	same, err := svc.UpdateSubscriberEmail(ctx, "1", "new@x.com")
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", same.Email)

	_, err = svc.UpdateSubscriberEmail(ctx, "1", "b@x.com")
	assert.ErrorIs(t, err, model.ErrEmailTaken)

	_, err = svc.UpdateSubscriberEmail(ctx, "1", "bad")
	assert.ErrorIs(t, err, model.ErrInvalidEmail)

	_, err = svc.UpdateSubscriberEmail(ctx, "missing", "z@x.com")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAdmin_DeleteSubscriber(t *testing.T) {
	svc, repo := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.DeleteSubscriber(ctx, "3"))
	s, err := repo.FindByID(ctx, "3")
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.ErrorIs(t, svc.DeleteSubscriber(ctx, "3"), model.ErrNotFound)
}

func TestAdmin_StatsUsesTrailingDay(t *testing.T) {
	svc, _ := newAdminFixture(t)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &model.Stats{
		TotalSubscribers: 3,
		ActiveCount:      2,
		InactiveCount:    1,
		Recent24h:        1,
	}, stats)
	assert.Equal(t, 24*time.Hour, recentWindow)
}
