package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

const settleTimeout = 5 * time.Second

// Runner drives a Consumer: receive, process, acknowledge, quarantine.
type Runner struct {
	consumer     Consumer
	processor    BatchProcessor
	observer     BatchObserver
	errorBackoff time.Duration
}

// NewRunner creates a runner. observer may be nil.
func NewRunner(consumer Consumer, processor BatchProcessor, observer BatchObserver, errorBackoff time.Duration) *Runner {
	return &Runner{
		consumer:     consumer,
		processor:    processor,
		observer:     observer,
		errorBackoff: errorBackoff,
	}
}

// Run processes batches until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer stopped")
			return
		default:
			if _, err := r.RunOnce(ctx); err != nil {
				slog.Error("error consuming messages", slog.String("error", err.Error()))
				r.backoff(ctx)
			}
		}
	}
}

func (r *Runner) backoff(ctx context.Context) {
	timer := time.NewTimer(r.errorBackoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// RunOnce receives and settles a single batch. It returns a nil result when the
// receive timed out without messages.
func (r *Runner) RunOnce(ctx context.Context) (*model.BatchResult, error) {
	messages, err := r.consumer.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	start := time.Now()
	result := r.processor.ProcessBatch(ctx, messages)
	if r.observer != nil {
		r.observer.ObserveBatch(len(messages), time.Since(start))
	}

	// Settling must survive shutdown: applied writes are acknowledged even after cancellation.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	var errs []error
	if err := r.consumer.Ack(settleCtx, result.Acked...); err != nil {
		errs = append(errs, err)
	}

	byHandle := make(map[string]Message, len(messages))
	for _, m := range messages {
		byHandle[m.Handle] = m
	}
	for _, failure := range result.FailedMessages {
		if failure.Retryable {
			continue
		}
		if err := r.consumer.DeadLetter(settleCtx, byHandle[failure.MessageHandle], failure.Error); err != nil {
			errs = append(errs, err)
		}
	}

	slog.Info("batch processed",
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
		slog.Duration("elapsed", time.Since(start)),
	)

	return result, errors.Join(errs...)
}
