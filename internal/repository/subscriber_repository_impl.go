package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

const (
	subscriberColumns = `id, email, name, status, subscribed_at, updated_at, ip_address, user_agent`
	uniqueViolation   = "23505"
)

// SubscriberRepositoryImpl implements SubscriberRepository using PostgreSQL.
type SubscriberRepositoryImpl struct {
	db   DBTX
	pool *pgxpool.Pool
}

// NewSubscriberRepositoryImpl creates a new SubscriberRepository implementation.
func NewSubscriberRepositoryImpl(pool *pgxpool.Pool) SubscriberRepository {
	return &SubscriberRepositoryImpl{
		db:   pool,
		pool: pool,
	}
}

func scanSubscriber(row pgx.Row) (*model.Subscriber, error) {
	var s model.Subscriber
	var status string
	if err := row.Scan(
		&s.ID,
		&s.Email,
		&s.Name,
		&status,
		&s.SubscribedAt,
		&s.UpdatedAt,
		&s.IPAddress,
		&s.UserAgent,
	); err != nil {
		return nil, err
	}
	s.Status = model.Status(status)
	return &s, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, model.ErrStoreUnavailable, err)
}

// FindByEmail resolves an email through the email index.
func (r *SubscriberRepositoryImpl) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	const query = `SELECT ` + subscriberColumns + ` FROM subscribers WHERE email = $1 ORDER BY subscribed_at, id LIMIT 2`

	rows, err := querier(ctx, r.db).Query(ctx, query, email)
	if err != nil {
		return nil, unavailable("query subscriber by email", err)
	}
	defer rows.Close()

	var found []*model.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, unavailable("scan subscriber", err)
		}
		found = append(found, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query subscriber by email", err)
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrAmbiguousEmail, email)
	}
}

// FindByID retrieves a subscriber by primary key.
func (r *SubscriberRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Subscriber, error) {
	const query = `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`

	s, err := scanSubscriber(querier(ctx, r.db).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get subscriber", err)
	}
	return s, nil
}

// Create inserts a new subscriber.
func (r *SubscriberRepositoryImpl) Create(ctx context.Context, s *model.Subscriber) error {
	const query = `
        INSERT INTO subscribers (` + subscriberColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier(ctx, r.db).Exec(ctx, query,
		s.ID,
		s.Email,
		s.Name,
		string(s.Status),
		s.SubscribedAt,
		s.UpdatedAt,
		s.IPAddress,
		s.UserAgent,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", model.ErrConflict, s.ID)
		}
		return unavailable("create subscriber", err)
	}
	return nil
}

// UpdateStatusAndTimestamp sets status and updated_at.
func (r *SubscriberRepositoryImpl) UpdateStatusAndTimestamp(
	ctx context.Context, id string, status model.Status, updatedAt int64,
) error {
	const query = `UPDATE subscribers SET status = $2, updated_at = $3 WHERE id = $1`

	return r.exec(ctx, "update subscriber status", query, id, string(status), updatedAt)
}

// TouchUpdatedAt sets updated_at only.
func (r *SubscriberRepositoryImpl) TouchUpdatedAt(ctx context.Context, id string, updatedAt int64) error {
	const query = `UPDATE subscribers SET updated_at = $2 WHERE id = $1`

	return r.exec(ctx, "touch subscriber", query, id, updatedAt)
}

func (r *SubscriberRepositoryImpl) exec(ctx context.Context, op, query, id string, args ...any) error {
	cmd, err := querier(ctx, r.db).Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return unavailable(op, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return nil
}

// List returns a page ordered by subscribed_at descending.
func (r *SubscriberRepositoryImpl) List(ctx context.Context, params model.ListParams) (*model.SubscriberPage, error) {
	cursor, err := decodeKeyset(params.NextToken)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if params.Status != "" {
		args = append(args, string(params.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if cursor != nil {
		args = append(args, cursor.SubscribedAt, cursor.ID)
		where = append(where, fmt.Sprintf("(subscribed_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + subscriberColumns + ` FROM subscribers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, params.Limit+1)
	query += fmt.Sprintf(` ORDER BY subscribed_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := querier(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list subscribers", err)
	}
	defer rows.Close()

	subscribers := make([]*model.Subscriber, 0, params.Limit)
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, unavailable("scan subscriber", err)
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list subscribers", err)
	}

	return pageOf(subscribers, params.Limit)
}

// pageOf trims a limit+1 result set and issues the next cursor when more rows exist.
func pageOf(subscribers []*model.Subscriber, limit int) (*model.SubscriberPage, error) {
	page := &model.SubscriberPage{}
	if len(subscribers) > limit {
		subscribers = subscribers[:limit]
		last := subscribers[len(subscribers)-1]
		token, err := encodeCursor(keysetCursor{SubscribedAt: last.SubscribedAt, ID: last.ID})
		if err != nil {
			return nil, err
		}
		page.NextToken = token
	}
	page.Subscribers = subscribers
	page.Count = len(subscribers)
	return page, nil
}

// UpdateEmail changes a subscriber's email and returns the updated record.
func (r *SubscriberRepositoryImpl) UpdateEmail(
	ctx context.Context, id, email string, updatedAt int64,
) (*model.Subscriber, error) {
	const query = `
        UPDATE subscribers SET email = $2, updated_at = $3
        WHERE id = $1
        RETURNING ` + subscriberColumns

	s, err := scanSubscriber(querier(ctx, r.db).QueryRow(ctx, query, id, email, updatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable("update subscriber email", err)
	}
	return s, nil
}

// Delete hard-deletes a subscriber.
func (r *SubscriberRepositoryImpl) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM subscribers WHERE id = $1`

	cmd, err := querier(ctx, r.db).Exec(ctx, query, id)
	if err != nil {
		return unavailable("delete subscriber", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return nil
}

// Stats counts subscribers by status and recent sign-ups.
func (r *SubscriberRepositoryImpl) Stats(ctx context.Context, recentSince int64) (*model.Stats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status = 'active'),
               COUNT(*) FILTER (WHERE subscribed_at >= $1)
        FROM subscribers`

	var stats model.Stats
	if err := querier(ctx, r.db).QueryRow(ctx, query, recentSince).Scan(
		&stats.TotalSubscribers,
		&stats.ActiveCount,
		&stats.Recent24h,
	); err != nil {
		return nil, unavailable("compute stats", err)
	}
	stats.InactiveCount = stats.TotalSubscribers - stats.ActiveCount
	return &stats, nil
}

// Ping checks database connectivity.
func (r *SubscriberRepositoryImpl) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
