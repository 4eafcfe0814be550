package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

type fakeConsumer struct {
	mu           sync.Mutex
	batches      [][]Message
	receiveErr   error
	acked        []string
	deadLettered map[string]string
	ackCtxErr    error
}

func (f *fakeConsumer) Receive(context.Context) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeConsumer) Ack(ctx context.Context, handles ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ackCtxErr = ctx.Err()
	f.acked = append(f.acked, handles...)
	return nil
}

func (f *fakeConsumer) DeadLetter(_ context.Context, msg Message, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deadLettered == nil {
		f.deadLettered = make(map[string]string)
	}
	f.deadLettered[msg.Handle] = reason
	return nil
}

// scriptedProcessor fails handles listed in failures and succeeds the rest.
type scriptedProcessor struct {
	failures map[string]error
	cancel   context.CancelFunc
}

func (p *scriptedProcessor) ProcessBatch(_ context.Context, messages []Message) *model.BatchResult {
	result := model.NewBatchResult()
	for _, m := range messages {
		if err, ok := p.failures[m.Handle]; ok {
			result.Fail(m.Handle, err)
			continue
		}
		result.Succeed(m.Handle)
	}
	if p.cancel != nil {
		p.cancel()
	}
	return result
}

type recordingObserver struct {
	sizes []int
}

func (o *recordingObserver) ObserveBatch(size int, _ time.Duration) {
	o.sizes = append(o.sizes, size)
}

func TestRunner_RunOnceSettlesBatch(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]Message{{
		{Handle: "1", Body: "a"},
		{Handle: "2", Body: "b"},
		{Handle: "3", Body: "c"},
		{Handle: "4", Body: "d"},
	}}}
	processor := &scriptedProcessor{failures: map[string]error{
		"2": &model.MalformedMessageError{Field: "email", Reason: "required"},
		"3": model.ErrStoreUnavailable,
		"4": model.ErrAmbiguousEmail,
	}}
	observer := &recordingObserver{}
	runner := NewRunner(consumer, processor, observer, time.Millisecond)

	result, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, []string{"1"}, consumer.acked)
	assert.Len(t, consumer.deadLettered, 2)
	assert.Contains(t, consumer.deadLettered["2"], "malformed message")
	assert.Contains(t, consumer.deadLettered, "4")
	assert.NotContains(t, consumer.deadLettered, "3")
	assert.Equal(t, []int{4}, observer.sizes)
}

func TestRunner_RunOnceEmpty(t *testing.T) {
	runner := NewRunner(&fakeConsumer{}, &scriptedProcessor{}, nil, time.Millisecond)

	result, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRunner_RunOnceReceiveError(t *testing.T) {
	runner := NewRunner(&fakeConsumer{receiveErr: errors.New("connection refused")}, &scriptedProcessor{}, nil, time.Millisecond)

	_, err := runner.RunOnce(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunner_AcksAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := &fakeConsumer{batches: [][]Message{{{Handle: "1"}}}}
	runner := NewRunner(consumer, &scriptedProcessor{cancel: cancel}, nil, time.Millisecond)

	_, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, consumer.acked)
	assert.NoError(t, consumer.ackCtxErr)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := &fakeConsumer{receiveErr: errors.New("down")}
	runner := NewRunner(consumer, &scriptedProcessor{}, nil, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}
