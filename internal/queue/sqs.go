package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const (
	sqsMaxBatch        = 10
	sqsLongPollSeconds = 20
)

// SQSAPI is the subset of *sqs.Client used by SQSQueue.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSOptions configures SQSQueue.
type SQSOptions struct {
	QueueURL string
	// DeadLetterURL is optional. When empty, dead-lettered messages are left for the
	// source queue's redrive policy.
	DeadLetterURL     string
	BatchSize         int32
	WaitTimeSeconds   int32
	VisibilityTimeout int32
}

// SQSQueue is a Consumer and Producer backed by an SQS queue.
type SQSQueue struct {
	client SQSAPI
	opts   SQSOptions
}

// NewSQSQueue creates an SQS-backed queue.
func NewSQSQueue(client SQSAPI, opts SQSOptions) *SQSQueue {
	if opts.BatchSize <= 0 || opts.BatchSize > sqsMaxBatch {
		opts.BatchSize = sqsMaxBatch
	}
	if opts.WaitTimeSeconds <= 0 {
		opts.WaitTimeSeconds = sqsLongPollSeconds
	}
	return &SQSQueue{client: client, opts: opts}
}

// Receive long-polls for up to BatchSize messages.
func (q *SQSQueue) Receive(ctx context.Context) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.opts.QueueURL),
		MaxNumberOfMessages: q.opts.BatchSize,
		WaitTimeSeconds:     q.opts.WaitTimeSeconds,
		VisibilityTimeout:   q.opts.VisibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive from SQS: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		attempt, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		messages = append(messages, Message{
			Handle:  aws.ToString(m.ReceiptHandle),
			Body:    aws.ToString(m.Body),
			Attempt: attempt,
		})
	}

	return messages, nil
}

// Ack deletes messages in batches of ten.
func (q *SQSQueue) Ack(ctx context.Context, handles ...string) error {
	var errs []error
	for start := 0; start < len(handles); start += sqsMaxBatch {
		end := min(start+sqsMaxBatch, len(handles))

		entries := make([]types.DeleteMessageBatchRequestEntry, 0, end-start)
		for i, handle := range handles[start:end] {
			entries = append(entries, types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(strconv.Itoa(start + i)),
				ReceiptHandle: aws.String(handle),
			})
		}

		out, err := q.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(q.opts.QueueURL),
			Entries:  entries,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete SQS messages: %w", err))
			continue
		}
		for _, failed := range out.Failed {
			errs = append(errs, fmt.Errorf("failed to delete SQS message %s: %s",
				aws.ToString(failed.Id), aws.ToString(failed.Message)))
		}
	}

	return errors.Join(errs...)
}

// DeadLetter forwards the body to DeadLetterURL and deletes the original. Without a
// dead-letter URL the message is left in place for the redrive policy.
func (q *SQSQueue) DeadLetter(ctx context.Context, msg Message, reason string) error {
	if q.opts.DeadLetterURL == "" {
		slog.Warn("leaving message for SQS redrive policy",
			slog.Int("attempt", msg.Attempt),
			slog.String("reason", reason),
		)
		return nil
	}

	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.opts.DeadLetterURL),
		MessageBody: aws.String(msg.Body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"reason": {DataType: aws.String("String"), StringValue: aws.String(reason)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to forward message to SQS dead-letter queue: %w", err)
	}

	slog.Warn("message moved to SQS dead-letter queue", slog.String("reason", reason))

	return q.Ack(ctx, msg.Handle)
}

// Publish sends an intent body.
func (q *SQSQueue) Publish(ctx context.Context, body []byte) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.opts.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send SQS message: %w", err)
	}
	return nil
}

// Ping reads a queue attribute to confirm access.
func (q *SQSQueue) Ping(ctx context.Context) error {
	_, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.opts.QueueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	return err
}
