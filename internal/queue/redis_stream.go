package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"
)

const (
	payloadField   = "payload"
	handleField    = "handle"
	reasonField    = "reason"
	failedAtField  = "failed_at"
	busyGroupError = "BUSYGROUP"
)

// RedisStreamOptions names the stream, group and consumer to use.
type RedisStreamOptions struct {
	Stream           string
	DeadLetterStream string
	Group            string
	Consumer         string
	BatchSize        int64
	Block            time.Duration
	// VisibilityTimeout is how long a delivered entry may stay pending before
	// another Receive reclaims it.
	VisibilityTimeout time.Duration
}

// RedisStreamQueue is a Consumer and Producer backed by a Redis Stream consumer group.
type RedisStreamQueue struct {
	client rueidis.Client
	opts   RedisStreamOptions
}

// DeadLetter is an entry of the dead-letter stream.
type DeadLetter struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Body     string `json:"body"`
	Reason   string `json:"reason"`
	FailedAt string `json:"failed_at"`
}

// NewRedisStreamQueue creates a queue on an existing client.
func NewRedisStreamQueue(client rueidis.Client, opts RedisStreamOptions) *RedisStreamQueue {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &RedisStreamQueue{client: client, opts: opts}
}

// EnsureGroup creates the consumer group and the stream when missing.
func (q *RedisStreamQueue) EnsureGroup(ctx context.Context) error {
	cmd := q.client.B().XgroupCreate().Key(q.opts.Stream).Group(q.opts.Group).Id("0").Mkstream().Build()
	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		if strings.HasPrefix(err.Error(), busyGroupError) {
			slog.Debug("consumer group already exists", slog.String("group", q.opts.Group))
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	slog.Info("consumer group created",
		slog.String("stream", q.opts.Stream),
		slog.String("group", q.opts.Group),
	)

	return nil
}

// Receive returns entries whose previous delivery exceeded the visibility timeout,
// or else new entries, blocking up to the configured block time.
func (q *RedisStreamQueue) Receive(ctx context.Context) ([]Message, error) {
	reclaimed, err := q.reclaim(ctx)
	if err != nil {
		return nil, err
	}
	if len(reclaimed) > 0 {
		return reclaimed, nil
	}

	readCmd := q.client.B().Xreadgroup().Group(q.opts.Group, q.opts.Consumer).
		Count(q.opts.BatchSize).
		Block(q.opts.Block.Milliseconds()).
		Streams().
		Key(q.opts.Stream).
		Id(">").
		Build()

	streams, err := q.client.Do(ctx, readCmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	entries := streams[q.opts.Stream]
	messages := make([]Message, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, Message{
			Handle:  entry.ID,
			Body:    entry.FieldValues[payloadField],
			Attempt: 1,
		})
	}

	return messages, nil
}

func (q *RedisStreamQueue) reclaim(ctx context.Context) ([]Message, error) {
	claimCmd := q.client.B().Xautoclaim().Key(q.opts.Stream).Group(q.opts.Group).Consumer(q.opts.Consumer).
		MinIdleTime(strconv.FormatInt(q.opts.VisibilityTimeout.Milliseconds(), 10)).
		Start("0-0").
		Count(q.opts.BatchSize).
		Build()

	reply, err := q.client.Do(ctx, claimCmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim pending entries: %w", err)
	}
	if len(reply) < 2 {
		return nil, nil
	}

	entries, err := reply[1].AsXRange()
	if err != nil {
		return nil, fmt.Errorf("failed to parse reclaimed entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	attempts := q.deliveryCounts(ctx, entries[0].ID, entries[len(entries)-1].ID)

	messages := make([]Message, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, Message{
			Handle:  entry.ID,
			Body:    entry.FieldValues[payloadField],
			Attempt: attempts[entry.ID],
		})
	}

	slog.Info("reclaimed pending entries",
		slog.String("stream", q.opts.Stream),
		slog.Int("count", len(messages)),
	)

	return messages, nil
}

// deliveryCounts reads XPENDING for this consumer between two ids. Failures only
// cost the attempt numbers, so they are logged and ignored.
func (q *RedisStreamQueue) deliveryCounts(ctx context.Context, start, end string) map[string]int {
	counts := make(map[string]int)

	pendingCmd := q.client.B().Xpending().Key(q.opts.Stream).Group(q.opts.Group).
		Start(start).End(end).Count(q.opts.BatchSize).Consumer(q.opts.Consumer).Build()
	rows, err := q.client.Do(ctx, pendingCmd).ToArray()
	if err != nil {
		slog.Warn("failed to read delivery counts", slog.String("error", err.Error()))
		return counts
	}

	for _, row := range rows {
		fields, err := row.ToArray()
		if err != nil || len(fields) < 4 {
			continue
		}
		id, err := fields[0].ToString()
		if err != nil {
			continue
		}
		deliveries, err := fields[3].AsInt64()
		if err != nil {
			continue
		}
		counts[id] = int(deliveries)
	}

	return counts
}

// Ack acknowledges processed entries.
func (q *RedisStreamQueue) Ack(ctx context.Context, handles ...string) error {
	if len(handles) == 0 {
		return nil
	}

	ackCmd := q.client.B().Xack().Key(q.opts.Stream).Group(q.opts.Group).Id(handles...).Build()
	if err := q.client.Do(ctx, ackCmd).Error(); err != nil {
		return fmt.Errorf("failed to ACK %d entries: %w", len(handles), err)
	}

	slog.Debug("ACKed entries", slog.Int("count", len(handles)))

	return nil
}

// DeadLetter copies the entry to the dead-letter stream and acknowledges the original.
func (q *RedisStreamQueue) DeadLetter(ctx context.Context, msg Message, reason string) error {
	addCmd := q.client.B().Xadd().Key(q.opts.DeadLetterStream).Id("*").
		FieldValue().
		FieldValue(payloadField, msg.Body).
		FieldValue(handleField, msg.Handle).
		FieldValue(reasonField, reason).
		FieldValue(failedAtField, strconv.FormatInt(time.Now().Unix(), 10)).
		Build()
	if err := q.client.Do(ctx, addCmd).Error(); err != nil {
		return fmt.Errorf("failed to dead-letter entry %s: %w", msg.Handle, err)
	}

	slog.Warn("entry moved to dead-letter stream",
		slog.String("message_id", msg.Handle),
		slog.String("reason", reason),
	)

	return q.Ack(ctx, msg.Handle)
}

// Publish appends an intent body to the stream.
func (q *RedisStreamQueue) Publish(ctx context.Context, body []byte) error {
	cmd := q.client.B().Xadd().Key(q.opts.Stream).Id("*").
		FieldValue().FieldValue(payloadField, string(body)).
		Build()
	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", q.opts.Stream, err)
	}
	return nil
}

// DeadLetters lists up to count entries of the dead-letter stream, oldest first.
func (q *RedisStreamQueue) DeadLetters(ctx context.Context, count int64) ([]DeadLetter, error) {
	cmd := q.client.B().Xrange().Key(q.opts.DeadLetterStream).Start("-").End("+").Count(count).Build()
	entries, err := q.client.Do(ctx, cmd).AsXRange()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead-letter stream: %w", err)
	}

	letters := make([]DeadLetter, 0, len(entries))
	for _, entry := range entries {
		letters = append(letters, DeadLetter{
			ID:       entry.ID,
			Handle:   entry.FieldValues[handleField],
			Body:     entry.FieldValues[payloadField],
			Reason:   entry.FieldValues[reasonField],
			FailedAt: entry.FieldValues[failedAtField],
		})
	}

	return letters, nil
}

// Redrive moves up to count dead letters back onto the intent stream.
func (q *RedisStreamQueue) Redrive(ctx context.Context, count int64) (int, error) {
	letters, err := q.DeadLetters(ctx, count)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, letter := range letters {
		if err := q.Publish(ctx, []byte(letter.Body)); err != nil {
			return moved, err
		}
		delCmd := q.client.B().Xdel().Key(q.opts.DeadLetterStream).Id(letter.ID).Build()
		if err := q.client.Do(ctx, delCmd).Error(); err != nil {
			return moved, fmt.Errorf("failed to delete dead letter %s: %w", letter.ID, err)
		}
		moved++
	}

	return moved, nil
}

// Ping checks the connection.
func (q *RedisStreamQueue) Ping(ctx context.Context) error {
	return q.client.Do(ctx, q.client.B().Ping().Build()).Error()
}
