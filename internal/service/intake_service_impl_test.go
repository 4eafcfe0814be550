package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
)

type recordingSink struct {
	intents []*model.Intent
	err     error
}

func (s *recordingSink) Enqueue(_ context.Context, intent *model.Intent) error {
	if s.err != nil {
		return s.err
	}
	s.intents = append(s.intents, intent)
	return nil
}

type recordingProducer struct {
	bodies [][]byte
	err    error
}

func (p *recordingProducer) Publish(_ context.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	return nil
}

func TestIntake_Subscribe(t *testing.T) {
	sink := &recordingSink{}
	store := newCountingStore()
	svc := NewIntakeServiceImpl(store, sink, newFakeClock(1700).Now)

	err := svc.Subscribe(context.Background(), &model.SubscribeRequest{
		Email: "  reader@example.com ",
		Name:  "  Reader  ",
		Meta:  model.RequestMeta{IPAddress: "10.0.0.1", UserAgent: "curl/8"},
	})
	require.NoError(t, err)

	require.Len(t, sink.intents, 1)
	intent := sink.intents[0]
	assert.Equal(t, model.OperationSubscribe, intent.Operation)
	assert.Equal(t, "reader@example.com", intent.Email)
	assert.Equal(t, "Reader", intent.DisplayName())
	assert.Equal(t, "10.0.0.1", intent.IPAddress)
	assert.Equal(t, "curl/8", intent.UserAgent)
	assert.Equal(t, int64(1700), intent.Timestamp)
	assert.Zero(t, store.writes.Load())
}

func TestIntake_MissingMetadataIsUnknown(t *testing.T) {
	sink := &recordingSink{}
	svc := NewIntakeServiceImpl(newCountingStore(), sink, nil)

	require.NoError(t, svc.Unsubscribe(context.Background(), &model.UnsubscribeRequest{Email: "a@x.com"}))

	require.Len(t, sink.intents, 1)
	assert.Equal(t, model.OperationUnsubscribe, sink.intents[0].Operation)
	assert.Nil(t, sink.intents[0].Name)
	assert.Equal(t, "unknown", sink.intents[0].IPAddress)
	assert.Equal(t, "unknown", sink.intents[0].UserAgent)
}

func TestIntake_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  *model.SubscribeRequest
		want error
	}{
		{"empty email", &model.SubscribeRequest{Name: "A"}, model.ErrInvalidEmail},
		{"bad email", &model.SubscribeRequest{Email: "not-an-email", Name: "A"}, model.ErrInvalidEmail},
		{"display form", &model.SubscribeRequest{Email: "A <a@x.com>", Name: "A"}, model.ErrInvalidEmail},
		{"blank name", &model.SubscribeRequest{Email: "a@x.com", Name: "   "}, model.ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			svc := NewIntakeServiceImpl(newCountingStore(), sink, nil)

			err := svc.Subscribe(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, sink.intents)
		})
	}
}

func TestIntake_SinkFailure(t *testing.T) {
	svc := NewIntakeServiceImpl(newCountingStore(), &recordingSink{err: errors.New("queue down")}, nil)

	err := svc.Unsubscribe(context.Background(), &model.UnsubscribeRequest{Email: "a@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to enqueue unsubscribe intent")
}

func TestIntake_Status(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	require.NoError(t, store.MemorySubscriberRepository.Create(ctx, &model.Subscriber{
		ID: "1", Email: "a@x.com", Status: model.StatusInactive, SubscribedAt: 10, UpdatedAt: 20,
	}))
	svc := NewIntakeServiceImpl(store, &recordingSink{}, nil)

	status, err := svc.Status(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "inactive", status.Status)
	require.NotNil(t, status.SubscribedAt)
	assert.Equal(t, int64(10), *status.SubscribedAt)
	assert.Equal(t, int64(20), *status.UpdatedAt)

	missing, err := svc.Status(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, model.NotFoundStatus, missing.Status)
	assert.Nil(t, missing.SubscribedAt)

	_, err = svc.Status(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrInvalidEmail)
}

func TestQueueSink_PublishesWireFormat(t *testing.T) {
	producer := &recordingProducer{}
	sink := NewQueueSink(producer)
	name := "A"

	require.NoError(t, sink.Enqueue(context.Background(), &model.Intent{
		Operation: model.OperationSubscribe, Email: "a@x.com", Name: &name,
		IPAddress: "1.1.1.1", UserAgent: "UA", Timestamp: 1000,
	}))

	require.Len(t, producer.bodies, 1)
	decoded, err := model.DecodeIntent(producer.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", decoded.Email)
	assert.Equal(t, int64(1000), decoded.Timestamp)
}

// fakeOutbox is an in-memory outbox with a pass-through transaction manager.
type fakeOutbox struct {
	events    []*model.OutboxEvent
	published map[int64]bool
	txCount   int
	txErr     error
	createErr error
}

var (
	_ repository.OutboxRepository   = (*fakeOutbox)(nil)
	_ repository.TransactionManager = (*fakeOutbox)(nil)
)

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{published: map[int64]bool{}}
}

func (f *fakeOutbox) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txCount++
	if f.txErr != nil {
		return f.txErr
	}
	return fn(ctx)
}

func (f *fakeOutbox) CreateEvent(_ context.Context, params *model.CreateOutboxEventParams) (*model.OutboxEvent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	event := &model.OutboxEvent{
		ID:          int64(len(f.events) + 1),
		AggregateID: params.AggregateID,
		EventType:   params.EventType,
		Payload:     params.Payload,
		CreatedAt:   time.Unix(0, 0),
	}
	f.events = append(f.events, event)
	return event, nil
}

func (f *fakeOutbox) GetUnpublishedEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	var out []*model.OutboxEvent
	for _, e := range f.events {
		if !f.published[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkAsPublished(_ context.Context, id int64) error {
	f.published[id] = true
	return nil
}

func TestOutboxSink_WritesEventInTransaction(t *testing.T) {
	outbox := newFakeOutbox()
	sink := NewOutboxSink(outbox, outbox)

	require.NoError(t, sink.Enqueue(context.Background(), &model.Intent{
		Operation: model.OperationUnsubscribe, Email: "a@x.com",
		IPAddress: "1.1.1.1", UserAgent: "UA", Timestamp: 5,
	}))

	assert.Equal(t, 1, outbox.txCount)
	require.Len(t, outbox.events, 1)
	assert.Equal(t, "a@x.com", outbox.events[0].AggregateID)
	assert.Equal(t, "unsubscribe", outbox.events[0].EventType)

	_, err := model.DecodeIntent(outbox.events[0].Payload)
	assert.NoError(t, err)
}

func TestOutboxSink_CreateFailure(t *testing.T) {
	outbox := newFakeOutbox()
	outbox.createErr = errors.New("disk full")
	sink := NewOutboxSink(outbox, outbox)

	err := sink.Enqueue(context.Background(), &model.Intent{Operation: model.OperationUnsubscribe, Email: "a@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create outbox event")
}
