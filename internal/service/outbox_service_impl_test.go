package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

// flakyProducer fails once it has published failAfter bodies.
type flakyProducer struct {
	recordingProducer
	failAfter int
}

func (p *flakyProducer) Publish(ctx context.Context, body []byte) error {
	if len(p.bodies) >= p.failAfter {
		return errors.New("stream unavailable")
	}
	return p.recordingProducer.Publish(ctx, body)
}

func seedOutbox(t *testing.T, outbox *fakeOutbox, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := outbox.CreateEvent(context.Background(), &model.CreateOutboxEventParams{
			AggregateID: "a@x.com",
			EventType:   "subscribe",
			Payload:     []byte{byte('0' + i)},
		})
		require.NoError(t, err)
	}
}

func TestOutboxService_PublishesAndMarks(t *testing.T) {
	outbox := newFakeOutbox()
	seedOutbox(t, outbox, 3)
	producer := &recordingProducer{}
	svc := NewOutboxServiceImpl(outbox, outbox, producer)

	n, err := svc.ProcessUnpublishedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, [][]byte{[]byte("0"), []byte("1"), []byte("2")}, producer.bodies)
	assert.Len(t, outbox.published, 3)

	n, err = svc.ProcessUnpublishedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxService_RespectsLimit(t *testing.T) {
	outbox := newFakeOutbox()
	seedOutbox(t, outbox, 5)
	svc := NewOutboxServiceImpl(outbox, outbox, &recordingProducer{})

	n, err := svc.ProcessUnpublishedEvents(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, outbox.published[1])
	assert.True(t, outbox.published[2])
	assert.False(t, outbox.published[3])
}

func TestOutboxService_StopsAtFirstPublishFailure(t *testing.T) {
	outbox := newFakeOutbox()
	seedOutbox(t, outbox, 4)
	producer := &flakyProducer{failAfter: 2}
	svc := NewOutboxServiceImpl(outbox, outbox, producer)

	n, err := svc.ProcessUnpublishedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, outbox.published[3])
	assert.False(t, outbox.published[4])
}

func TestOutboxService_TransactionFailure(t *testing.T) {
	outbox := newFakeOutbox()
	outbox.txErr = errors.New("connection refused")
	svc := NewOutboxServiceImpl(outbox, outbox, &recordingProducer{})

	n, err := svc.ProcessUnpublishedEvents(context.Background(), 10)
	assert.Error(t, err)
	assert.Zero(t, n)
}
