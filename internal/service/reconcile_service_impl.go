package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
	"github.com/johnsosoka/jscom-newsletter-services/internal/queue"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
)

const defaultMessageTimeout = 10 * time.Second

// ReconcileObserver receives per-message outcomes, typically for metrics.
type ReconcileObserver interface {
	ObserveTransition(op model.Operation, transition model.Transition)
	ObserveFailure(err error)
}

// ReconcileOptions tunes ReconcileServiceImpl. Zero values select defaults.
type ReconcileOptions struct {
	// Workers is the number of email partitions processed concurrently.
	Workers        int
	MessageTimeout time.Duration
	Clock          func() time.Time
	NewID          func() string
	Observer       ReconcileObserver

	// BatchTimeout bounds a whole ProcessBatch call. Messages not started by
	// then are abandoned. Zero leaves the batch bounded only by ctx.
	BatchTimeout time.Duration
}

// ReconcileServiceImpl is the reconciliation engine. It is the only component that
// decides between create and update, so at most one record exists per email.
type ReconcileServiceImpl struct {
	store          repository.RecordStore
	workers        int
	messageTimeout time.Duration
	batchTimeout   time.Duration
	clock          func() time.Time
	newID          func() string
	observer       ReconcileObserver
}

// NewReconcileServiceImpl creates a new ReconcileService implementation.
func NewReconcileServiceImpl(store repository.RecordStore, opts ReconcileOptions) ReconcileService {
	s := &ReconcileServiceImpl{
		store:          store,
		workers:        opts.Workers,
		messageTimeout: opts.MessageTimeout,
		batchTimeout:   opts.BatchTimeout,
		clock:          opts.Clock,
		newID:          opts.NewID,
		observer:       opts.Observer,
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.messageTimeout <= 0 {
		s.messageTimeout = defaultMessageTimeout
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

type decodedMessage struct {
	msg    queue.Message
	intent *model.Intent
}

// ProcessMessage decodes and applies a single message.
func (s *ReconcileServiceImpl) ProcessMessage(ctx context.Context, msg queue.Message) (model.Transition, error) {
	intent, err := model.DecodeIntent([]byte(msg.Body))
	if err != nil {
		return "", err
	}
	return s.safeApply(ctx, intent)
}

// ProcessBatch attempts every message and reports the outcome of each.
// Intents for the same email are applied in batch order.
func (s *ReconcileServiceImpl) ProcessBatch(ctx context.Context, messages []queue.Message) *model.BatchResult {
	result := model.NewBatchResult()

	if s.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.batchTimeout)
		defer cancel()
	}

	partitions := make([][]decodedMessage, s.workers)
	for _, msg := range messages {
		intent, err := model.DecodeIntent([]byte(msg.Body))
		if err != nil {
			s.fail(result, msg, err)
			continue
		}
		p := partition(intent.Email, s.workers)
		partitions[p] = append(partitions[p], decodedMessage{msg: msg, intent: intent})
	}

	if s.workers == 1 {
		result.Merge(s.runPartition(ctx, partitions[0]))
		return result
	}

	partials := make([]*model.BatchResult, s.workers)
	var wg sync.WaitGroup
	for i, part := range partitions {
		if len(part) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, part []decodedMessage) {
			defer wg.Done()
			partials[i] = s.runPartition(ctx, part)
		}(i, part)
	}
	wg.Wait()

	for _, partial := range partials {
		if partial != nil {
			result.Merge(partial)
		}
	}

	return result
}

func partition(email string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(email))
	return int(h.Sum32() % uint32(n))
}

func (s *ReconcileServiceImpl) runPartition(ctx context.Context, part []decodedMessage) *model.BatchResult {
	result := model.NewBatchResult()

	for i, d := range part {
		if ctx.Err() != nil {
			for _, rest := range part[i:] {
				s.fail(result, rest.msg, model.ErrAbandoned)
			}
			slog.Warn("batch processing cancelled", slog.Int("abandoned", len(part)-i))
			break
		}

		transition, err := s.safeApply(ctx, d.intent)
		if err != nil {
			s.fail(result, d.msg, err)
			continue
		}

		if s.observer != nil {
			s.observer.ObserveTransition(d.intent.Operation, transition)
		}
		result.Succeed(d.msg.Handle)
	}

	return result
}

func (s *ReconcileServiceImpl) fail(result *model.BatchResult, msg queue.Message, err error) {
	result.Fail(msg.Handle, err)
	if s.observer != nil {
		s.observer.ObserveFailure(err)
	}

	level := slog.LevelError
	if !model.IsRetryable(err) {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "failed to process message",
		slog.String("message_id", msg.Handle),
		slog.Int("attempt", msg.Attempt),
		slog.String("reason", model.FailureReason(err)),
		slog.Bool("retryable", model.IsRetryable(err)),
		slog.String("error", err.Error()),
	)
}

// safeApply bounds the message by the store timeout and turns a panic into an error.
func (s *ReconcileServiceImpl) safeApply(ctx context.Context, intent *model.Intent) (transition model.Transition, err error) {
	defer func() {
		if r := recover(); r != nil {
			transition = ""
			err = fmt.Errorf("%w: %v", model.ErrPanicked, r)
		}
	}()

	msgCtx, cancel := context.WithTimeout(ctx, s.messageTimeout)
	defer cancel()

	return s.apply(msgCtx, intent)
}

// apply performs the transition for one intent with at most one store write.
func (s *ReconcileServiceImpl) apply(ctx context.Context, intent *model.Intent) (model.Transition, error) {
	now := s.clock().Unix()

	existing, err := s.store.FindByEmail(ctx, intent.Email)
	if err != nil {
		return "", fmt.Errorf("failed to look up subscriber: %w", err)
	}

	switch intent.Operation {
	case model.OperationSubscribe:
		return s.subscribe(ctx, intent, existing, now)
	case model.OperationUnsubscribe:
		return s.unsubscribe(ctx, intent, existing, now)
	default:
		return "", &model.MalformedMessageError{Field: "operation", Reason: string(intent.Operation), Err: model.ErrUnknownOperation}
	}
}

func (s *ReconcileServiceImpl) subscribe(
	ctx context.Context, intent *model.Intent, existing *model.Subscriber, now int64,
) (model.Transition, error) {
	switch {
	case existing == nil:
		subscriber := &model.Subscriber{
			ID:           s.newID(),
			Email:        intent.Email,
			Name:         intent.DisplayName(),
			Status:       model.StatusActive,
			SubscribedAt: now,
			UpdatedAt:    now,
			IPAddress:    intent.IPAddress,
			UserAgent:    intent.UserAgent,
		}
		if err := s.store.Create(ctx, subscriber); err != nil {
			return "", fmt.Errorf("failed to create subscriber: %w", err)
		}
		slog.Info("subscriber created",
			slog.String("subscriber_id", subscriber.ID),
			slog.String("email", intent.Email),
		)
		return model.TransitionCreated, nil

	case existing.Status == model.StatusActive:
		if err := s.store.TouchUpdatedAt(ctx, existing.ID, now); err != nil {
			return "", fmt.Errorf("failed to refresh subscriber: %w", err)
		}
		slog.Info("subscriber already active",
			slog.String("subscriber_id", existing.ID),
			slog.String("email", intent.Email),
		)
		return model.TransitionRefreshed, nil

	default:
		if err := s.store.UpdateStatusAndTimestamp(ctx, existing.ID, model.StatusActive, now); err != nil {
			return "", fmt.Errorf("failed to reactivate subscriber: %w", err)
		}
		slog.Info("subscriber reactivated",
			slog.String("subscriber_id", existing.ID),
			slog.String("email", intent.Email),
		)
		return model.TransitionReactivated, nil
	}
}

func (s *ReconcileServiceImpl) unsubscribe(
	ctx context.Context, intent *model.Intent, existing *model.Subscriber, now int64,
) (model.Transition, error) {
	switch {
	case existing == nil:
		slog.Info("unsubscribe for unknown email ignored", slog.String("email", intent.Email))
		return model.TransitionSkippedAbsent, nil

	case existing.Status != model.StatusActive:
		slog.Info("subscriber already inactive",
			slog.String("subscriber_id", existing.ID),
			slog.String("email", intent.Email),
		)
		return model.TransitionSkippedInactive, nil

	default:
		if err := s.store.UpdateStatusAndTimestamp(ctx, existing.ID, model.StatusInactive, now); err != nil {
			return "", fmt.Errorf("failed to deactivate subscriber: %w", err)
		}
		slog.Info("subscriber deactivated",
			slog.String("subscriber_id", existing.ID),
			slog.String("email", intent.Email),
		)
		return model.TransitionDeactivated, nil
	}
}
