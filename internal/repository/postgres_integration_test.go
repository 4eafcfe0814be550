//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		container, err := postgres.RunContainer(ctx,
			testcontainers.WithImage("postgres:16-alpine"),
			postgres.WithDatabase("newsletter"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Terminate(ctx) })

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, ApplySchema(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE subscribers, outbox_events")
	require.NoError(t, err)

	return pool
}

func TestPostgresRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	repo := NewSubscriberRepositoryImpl(pool)

	t.Run("create and find", func(t *testing.T) {
		s := &model.Subscriber{
			ID: "pg-1", Email: "a@x.com", Name: "A", Status: model.StatusActive,
			SubscribedAt: 100, UpdatedAt: 100, IPAddress: "1.1.1.1", UserAgent: "UA",
		}
		require.NoError(t, repo.Create(ctx, s))
		assert.ErrorIs(t, repo.Create(ctx, s), model.ErrConflict)

		got, err := repo.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, s, got)

		missing, err := repo.FindByID(ctx, "pg-404")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("targeted updates", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatusAndTimestamp(ctx, "pg-1", model.StatusInactive, 200))
		require.NoError(t, repo.TouchUpdatedAt(ctx, "pg-1", 300))

		got, err := repo.FindByID(ctx, "pg-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusInactive, got.Status)
		assert.Equal(t, int64(100), got.SubscribedAt)
		assert.Equal(t, int64(300), got.UpdatedAt)

		assert.ErrorIs(t, repo.TouchUpdatedAt(ctx, "pg-404", 1), model.ErrNotFound)
	})

	t.Run("ambiguous email", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &model.Subscriber{ID: "pg-2", Email: "dup@x.com", Status: model.StatusActive, SubscribedAt: 1}))
		require.NoError(t, repo.Create(ctx, &model.Subscriber{ID: "pg-3", Email: "dup@x.com", Status: model.StatusActive, SubscribedAt: 2}))

		_, err := repo.FindByEmail(ctx, "dup@x.com")
		assert.ErrorIs(t, err, model.ErrAmbiguousEmail)
	})

	t.Run("list and stats", func(t *testing.T) {
		first, err := repo.List(ctx, model.ListParams{Limit: 2})
		require.NoError(t, err)
		require.Len(t, first.Subscribers, 2)
		require.NotNil(t, first.NextToken)
		assert.Equal(t, "pg-1", first.Subscribers[0].ID)

		second, err := repo.List(ctx, model.ListParams{Limit: 2, NextToken: *first.NextToken})
		require.NoError(t, err)
		require.Len(t, second.Subscribers, 1)
		assert.Equal(t, "pg-2", second.Subscribers[0].ID)
		assert.Nil(t, second.NextToken)

		stats, err := repo.Stats(ctx, 50)
		require.NoError(t, err)
		assert.Equal(t, &model.Stats{TotalSubscribers: 3, ActiveCount: 2, InactiveCount: 1, Recent24h: 1}, stats)
	})

	t.Run("update email and delete", func(t *testing.T) {
		updated, err := repo.UpdateEmail(ctx, "pg-2", "new@x.com", 400)
		require.NoError(t, err)
		assert.Equal(t, "new@x.com", updated.Email)

		require.NoError(t, repo.Delete(ctx, "pg-2"))
		assert.ErrorIs(t, repo.Delete(ctx, "pg-2"), model.ErrNotFound)
	})

	require.NoError(t, repo.Ping(ctx))
}

func TestPostgresOutboxTransaction(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	outbox := NewOutboxRepositoryImpl(pool)
	tm := NewTransactionManagerImpl(pool)

	err := tm.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := outbox.CreateEvent(ctx, &model.CreateOutboxEventParams{
			AggregateID: "a@x.com", EventType: "subscribe", Payload: []byte(`{}`),
		})
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	events, err := outbox.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = outbox.CreateEvent(ctx, &model.CreateOutboxEventParams{
		AggregateID: "a@x.com", EventType: "subscribe", Payload: []byte(`{"operation":"subscribe"}`),
	})
	require.NoError(t, err)

	events, err = outbox.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NoError(t, outbox.MarkAsPublished(ctx, events[0].ID))

	events, err = outbox.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
