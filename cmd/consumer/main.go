// Package main provides the reconciliation worker that applies queued intents to the subscriber store.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/johnsosoka/jscom-newsletter-services/internal/bootstrap"
	"github.com/johnsosoka/jscom-newsletter-services/internal/config"
	"github.com/johnsosoka/jscom-newsletter-services/internal/logger"
	"github.com/johnsosoka/jscom-newsletter-services/internal/metrics"
	"github.com/johnsosoka/jscom-newsletter-services/internal/queue"
	"github.com/johnsosoka/jscom-newsletter-services/internal/service"
)

const exitCode = 1

func run(ctx context.Context, cfg *config.Config) error {
	res := bootstrap.NewResources(cfg)
	defer res.Close()

	store, err := res.OpenStore(ctx)
	if err != nil {
		return err
	}

	consumer, err := res.OpenQueue(ctx)
	if err != nil {
		return err
	}

	reconcileMetrics := metrics.NewReconcileMetrics()
	go func() {
		if err := reconcileMetrics.Run(ctx, cfg.MetricsAddr); err != nil {
			slog.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	engine := service.NewReconcileServiceImpl(store, service.ReconcileOptions{
		Workers:        cfg.Reconcile.Workers,
		MessageTimeout: cfg.Reconcile.MessageTimeout,
		BatchTimeout:   cfg.Reconcile.BatchTimeout,
		Observer:       reconcileMetrics,
	})

	slog.Info("starting message consumer",
		slog.String("service", "consumer"),
		slog.String("queue", cfg.QueueBackend),
		slog.String("store", cfg.StoreBackend),
		slog.String("consumer", cfg.ConsumerName),
		slog.Int("workers", cfg.Reconcile.Workers),
	)

	queue.NewRunner(consumer, engine, reconcileMetrics, cfg.Queue.ErrorBackoff).Run(ctx)

	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.SetDefault(logger.Setup(cfg.LogLevel, cfg.LogFormat))

	ctx, cancel := bootstrap.SignalContext("consumer")
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("consumer failed", slog.String("error", err.Error()))
		cancel()
		os.Exit(exitCode)
	}
}
