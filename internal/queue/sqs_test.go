package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	received  []types.Message
	receiveIn *sqs.ReceiveMessageInput
	deleted   [][]types.DeleteMessageBatchRequestEntry
	sent      []*sqs.SendMessageInput
	failIDs   map[string]bool
	err       error
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.receiveIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.received}, nil
}

func (f *fakeSQS) DeleteMessageBatch(_ context.Context, in *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, in.Entries)
	out := &sqs.DeleteMessageBatchOutput{}
	for _, e := range in.Entries {
		if f.failIDs[aws.ToString(e.Id)] {
			out.Failed = append(out.Failed, types.BatchResultErrorEntry{
				Id: e.Id, Code: aws.String("ReceiptHandleIsInvalid"), Message: aws.String("invalid handle"),
			})
			continue
		}
		out.Successful = append(out.Successful, types.DeleteMessageBatchResultEntry{Id: e.Id})
	}
	return out, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String(fmt.Sprintf("m-%d", len(f.sent)))}, nil
}

func (f *fakeSQS) GetQueueAttributes(_ context.Context, _ *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.GetQueueAttributesOutput{}, nil
}

func TestSQSQueue_Receive(t *testing.T) {
	fake := &fakeSQS{received: []types.Message{
		{
			ReceiptHandle: aws.String("rh-1"),
			Body:          aws.String(`{"operation":"subscribe"}`),
			Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
		},
	}}
	q := NewSQSQueue(fake, SQSOptions{QueueURL: "https://sqs/intents", BatchSize: 50, VisibilityTimeout: 30})

	messages, err := q.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, Message{Handle: "rh-1", Body: `{"operation":"subscribe"}`, Attempt: 3}, messages[0])

	assert.Equal(t, int32(10), fake.receiveIn.MaxNumberOfMessages)
	assert.Equal(t, int32(20), fake.receiveIn.WaitTimeSeconds)
	assert.Equal(t, int32(30), fake.receiveIn.VisibilityTimeout)
}

func TestSQSQueue_AckChunksAndReportsFailures(t *testing.T) {
	fake := &fakeSQS{failIDs: map[string]bool{"11": true}}
	q := NewSQSQueue(fake, SQSOptions{QueueURL: "https://sqs/intents"})

	handles := make([]string, 12)
	for i := range handles {
		handles[i] = fmt.Sprintf("rh-%d", i)
	}

	err := q.Ack(context.Background(), handles...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid handle")

	require.Len(t, fake.deleted, 2)
	assert.Len(t, fake.deleted[0], 10)
	assert.Len(t, fake.deleted[1], 2)
	assert.Equal(t, "rh-11", aws.ToString(fake.deleted[1][1].ReceiptHandle))
}

func TestSQSQueue_AckNothing(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, SQSOptions{QueueURL: "https://sqs/intents"})

	require.NoError(t, q.Ack(context.Background()))
	assert.Empty(t, fake.deleted)
}

func TestSQSQueue_DeadLetter(t *testing.T) {
	ctx := context.Background()
	msg := Message{Handle: "rh-1", Body: "garbage", Attempt: 1}

	t.Run("redrive policy", func(t *testing.T) {
		fake := &fakeSQS{}
		q := NewSQSQueue(fake, SQSOptions{QueueURL: "https://sqs/intents"})

		require.NoError(t, q.DeadLetter(ctx, msg, "malformed"))
		assert.Empty(t, fake.sent)
		assert.Empty(t, fake.deleted)
	})

	t.Run("explicit dead-letter queue", func(t *testing.T) {
		fake := &fakeSQS{}
		q := NewSQSQueue(fake, SQSOptions{QueueURL: "https://sqs/intents", DeadLetterURL: "https://sqs/intents-dlq"})

		require.NoError(t, q.DeadLetter(ctx, msg, "malformed"))
		require.Len(t, fake.sent, 1)
		assert.Equal(t, "https://sqs/intents-dlq", aws.ToString(fake.sent[0].QueueUrl))
		assert.Equal(t, "garbage", aws.ToString(fake.sent[0].MessageBody))
		assert.Equal(t, "malformed", aws.ToString(fake.sent[0].MessageAttributes["reason"].StringValue))
		require.Len(t, fake.deleted, 1)
		assert.Equal(t, "rh-1", aws.ToString(fake.deleted[0][0].ReceiptHandle))
	})
}

func TestSQSQueue_PublishAndErrors(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, SQSOptions{QueueURL: "https://sqs/intents"})

	require.NoError(t, q.Publish(ctx, []byte(`{"operation":"unsubscribe"}`)))
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "https://sqs/intents", aws.ToString(fake.sent[0].QueueUrl))
	require.NoError(t, q.Ping(ctx))

	fake.err = errors.New("throttled")
	_, err := q.Receive(ctx)
	assert.ErrorContains(t, err, "throttled")
	assert.Error(t, q.Publish(ctx, []byte(`{}`)))
	assert.Error(t, q.Ping(ctx))
}
