// Package main provides the HTTP API server for the newsletter registry.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/johnsosoka/jscom-newsletter-services/internal/api"
	"github.com/johnsosoka/jscom-newsletter-services/internal/bootstrap"
	"github.com/johnsosoka/jscom-newsletter-services/internal/config"
	"github.com/johnsosoka/jscom-newsletter-services/internal/logger"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
	"github.com/johnsosoka/jscom-newsletter-services/internal/service"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	exitCode          = 1
)

func setupIntentSink(
	ctx context.Context, cfg *config.Config, res *bootstrap.Resources, checks map[string]api.Pinger,
) (service.IntentSink, error) {
	if cfg.IntakeMode == config.IntakeModeOutbox {
		pool, err := res.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		checks["outbox"] = pool

		return service.NewOutboxSink(
			repository.NewOutboxRepositoryImpl(pool),
			repository.NewTransactionManagerImpl(pool),
		), nil
	}

	q, err := res.OpenQueue(ctx)
	if err != nil {
		return nil, err
	}
	checks["queue"] = q

	return service.NewQueueSink(q), nil
}

func run(ctx context.Context, cfg *config.Config) error {
	res := bootstrap.NewResources(cfg)
	defer res.Close()

	store, err := res.OpenStore(ctx)
	if err != nil {
		return err
	}

	checks := map[string]api.Pinger{"store": store}
	sink, err := setupIntentSink(ctx, cfg, res, checks)
	if err != nil {
		return err
	}

	trustedProxies, err := cfg.HTTP.TrustedProxyPrefixes()
	if err != nil {
		return err
	}

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY is empty; admin routes will reject every request")
	}

	server := api.NewServer(
		service.NewIntakeServiceImpl(store, sink, time.Now),
		service.NewAdminServiceImpl(store, time.Now),
		api.Options{
			AdminAPIKey:    cfg.AdminAPIKey,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			RateLimit:      cfg.HTTP.RateLimit,
			RateWindow:     cfg.HTTP.RateWindow,
			RequestTimeout: cfg.HTTP.RequestTimeout,
			TrustedProxies: trustedProxies,
			Checks:         checks,
		},
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting API server",
			slog.String("service", "api"),
			slog.String("port", cfg.Port),
			slog.String("intake_mode", cfg.IntakeMode),
			slog.String("store", cfg.StoreBackend),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.SetDefault(logger.Setup(cfg.LogLevel, cfg.LogFormat))

	ctx, cancel := bootstrap.SignalContext("api")
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("api server failed", slog.String("error", err.Error()))
		cancel()
		os.Exit(exitCode)
	}

	slog.Info("api server stopped")
}
