// Package bootstrap wires configuration into connected stores and queues for the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/johnsosoka/jscom-newsletter-services/internal/config"
	"github.com/johnsosoka/jscom-newsletter-services/internal/queue"
	"github.com/johnsosoka/jscom-newsletter-services/internal/repository"
)

const signalBufferSize = 1

// ErrNotConfigured is returned when a resource is requested that the configuration cannot provide.
var ErrNotConfigured = errors.New("resource not configured")

// IntentQueue is a queue the binaries can both consume from and publish to.
type IntentQueue interface {
	queue.Consumer
	queue.Producer
	Ping(ctx context.Context) error
}

// Resources lazily opens and owns shared connections. Close releases everything opened.
type Resources struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	redis  rueidis.Client
	awsCfg *aws.Config
}

// NewResources creates an empty resource set for cfg.
func NewResources(cfg *config.Config) *Resources {
	return &Resources{cfg: cfg}
}

// Close releases every opened connection.
func (r *Resources) Close() {
	if r.redis != nil {
		r.redis.Close()
	}
	if r.pool != nil {
		r.pool.Close()
	}
}

// Postgres returns the shared pgx pool, connecting on first use.
func (r *Resources) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if r.pool != nil {
		return r.pool, nil
	}

	poolCfg, err := pgxpool.ParseConfig(r.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if r.cfg.Postgres.MaxConns > 0 {
		poolCfg.MaxConns = r.cfg.Postgres.MaxConns
	}
	if r.cfg.Postgres.MinConns > 0 {
		poolCfg.MinConns = r.cfg.Postgres.MinConns
	}
	if r.cfg.Postgres.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = r.cfg.Postgres.MaxConnIdleTime
	}
	if r.cfg.Postgres.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = r.cfg.Postgres.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if r.cfg.Postgres.RunMigrations {
		if err := repository.ApplySchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	slog.Info("connected to postgres")
	r.pool = pool

	return pool, nil
}

// Redis returns the shared rueidis client.
func (r *Resources) Redis() (rueidis.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{r.cfg.RedisAddr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.redis = client

	return client, nil
}

// AWS loads the default credential chain with the configured region, profile and endpoint.
func (r *Resources) AWS(ctx context.Context) (aws.Config, error) {
	if r.awsCfg != nil {
		return *r.awsCfg, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(r.cfg.AWS.Region)}
	if r.cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(r.cfg.AWS.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if r.cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(r.cfg.AWS.EndpointURL)
	}

	r.awsCfg = &awsCfg

	return awsCfg, nil
}

// OpenStore builds the configured subscriber repository, wrapped in a circuit breaker when enabled.
func (r *Resources) OpenStore(ctx context.Context) (repository.SubscriberRepository, error) {
	var store repository.SubscriberRepository

	switch r.cfg.StoreBackend {
	case config.StoreBackendPostgres:
		pool, err := r.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		store = repository.NewSubscriberRepositoryImpl(pool)

	case config.StoreBackendDynamoDB:
		awsCfg, err := r.AWS(ctx)
		if err != nil {
			return nil, err
		}
		store = repository.NewDynamoSubscriberRepository(dynamodb.NewFromConfig(awsCfg), r.cfg.AWS.DynamoDBTable)

	case config.StoreBackendMemory:
		slog.Warn("using in-memory subscriber store; records are lost on exit")
		store = repository.NewMemorySubscriberRepository()

	default:
		return nil, fmt.Errorf("%w: store backend %q", ErrNotConfigured, r.cfg.StoreBackend)
	}

	if !r.cfg.Breaker.Enabled {
		return store, nil
	}

	return repository.NewBreakerSubscriberRepository(store, repository.BreakerSettings{
		Name:                r.cfg.StoreBackend,
		ConsecutiveFailures: r.cfg.Breaker.ConsecutiveFailures,
		OpenTimeout:         r.cfg.Breaker.OpenTimeout,
	}), nil
}

// OpenQueue builds the configured intent queue.
func (r *Resources) OpenQueue(ctx context.Context) (IntentQueue, error) {
	switch r.cfg.QueueBackend {
	case config.QueueBackendRedis:
		q, err := r.OpenRedisStream(ctx)
		if err != nil {
			return nil, err
		}
		return q, nil

	case config.QueueBackendSQS:
		awsCfg, err := r.AWS(ctx)
		if err != nil {
			return nil, err
		}
		return queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), queue.SQSOptions{
			QueueURL:          r.cfg.AWS.SQSQueueURL,
			DeadLetterURL:     r.cfg.AWS.SQSDeadLetterURL,
			BatchSize:         int32(r.cfg.Queue.BatchSize),
			VisibilityTimeout: int32(r.cfg.Queue.VisibilityTimeout.Seconds()),
		}), nil

	default:
		return nil, fmt.Errorf("%w: queue backend %q", ErrNotConfigured, r.cfg.QueueBackend)
	}
}

// OpenRedisStream builds the Redis Streams queue and ensures its consumer group exists.
func (r *Resources) OpenRedisStream(ctx context.Context) (*queue.RedisStreamQueue, error) {
	client, err := r.Redis()
	if err != nil {
		return nil, err
	}

	q := queue.NewRedisStreamQueue(client, queue.RedisStreamOptions{
		Stream:            r.cfg.Queue.Stream,
		DeadLetterStream:  r.cfg.Queue.DeadLetterStream,
		Group:             r.cfg.Queue.Group,
		Consumer:          r.cfg.ConsumerName,
		BatchSize:         int64(r.cfg.Queue.BatchSize),
		Block:             r.cfg.Queue.BlockTimeout,
		VisibilityTimeout: r.cfg.Queue.VisibilityTimeout,
	})
	if err := q.EnsureGroup(ctx); err != nil {
		return nil, err
	}

	return q, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(service string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			slog.Info("shutdown signal received", slog.String("service", service))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
