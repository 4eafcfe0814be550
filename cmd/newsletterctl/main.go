// Package main provides newsletterctl, the operator CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/johnsosoka/jscom-newsletter-services/internal/bootstrap"
	"github.com/johnsosoka/jscom-newsletter-services/internal/cli"
	"github.com/johnsosoka/jscom-newsletter-services/internal/config"
	"github.com/johnsosoka/jscom-newsletter-services/internal/logger"
	"github.com/johnsosoka/jscom-newsletter-services/internal/service"
)

func open(ctx context.Context) (*cli.Backend, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	res := bootstrap.NewResources(cfg)

	store, err := res.OpenStore(ctx)
	if err != nil {
		res.Close()
		return nil, err
	}

	backend := &cli.Backend{
		Admin: service.NewAdminServiceImpl(store, time.Now),
		Close: res.Close,
	}

	if cfg.QueueBackend == config.QueueBackendRedis {
		stream, err := res.OpenRedisStream(ctx)
		if err != nil {
			res.Close()
			return nil, err
		}
		backend.DeadLetters = stream
	}

	return backend, nil
}

func main() {
	// stdout carries command output
	slog.SetDefault(logger.New(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")))

	if err := cli.NewRootCommand(open).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
