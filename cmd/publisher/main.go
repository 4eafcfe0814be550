// Package main provides the outbox publisher that relays intents from Postgres to the intent stream.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/johnsosoka/jscom-newsletter-services/internal/bootstrap"
	"github.com/johnsosoka/jscom-newsletter-services/internal/config"
	"github.com/johnsosoka/jscom-newsletter-services/internal/logger"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
	"github.com/johnsosoka/jscom-newsletter-services/internal/service"
)

const exitCode = 1

func runPublisherLoop(
	ctx context.Context,
	outboxService service.OutboxService,
	pollInterval time.Duration,
	batchSize int,
) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("publisher stopped")
			return
		case <-ticker.C:
			published, err := outboxService.ProcessUnpublishedEvents(ctx, batchSize)
			if err != nil {
				slog.Error("error processing outbox events", slog.String("error", err.Error()))
				continue
			}
			if published > 0 {
				slog.Info("relayed outbox events", slog.Int("count", published))
			}
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	res := bootstrap.NewResources(cfg)
	defer res.Close()

	pool, err := res.Postgres(ctx)
	if err != nil {
		return err
	}

	stream, err := res.OpenRedisStream(ctx)
	if err != nil {
		return err
	}

	outboxService := service.NewOutboxServiceImpl(
		repository.NewOutboxRepositoryImpl(pool),
		repository.NewTransactionManagerImpl(pool),
		stream,
	)

	slog.Info("starting outbox publisher",
		slog.String("service", "publisher"),
		slog.Duration("poll_interval", cfg.PublisherPollInterval),
		slog.Int("batch_size", cfg.PublisherBatchSize),
	)

	runPublisherLoop(ctx, outboxService, cfg.PublisherPollInterval, cfg.PublisherBatchSize)

	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.SetDefault(logger.Setup(cfg.LogLevel, cfg.LogFormat))

	ctx, cancel := bootstrap.SignalContext("publisher")
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("publisher failed", slog.String("error", err.Error()))
		cancel()
		os.Exit(exitCode)
	}
}
