package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/config"
	"github.com/noah-isme/sejoli-chipin/internal/events"
	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/notify"
	"github.com/noah-isme/sejoli-chipin/internal/obs"
	"github.com/noah-isme/sejoli-chipin/internal/order"
	"github.com/noah-isme/sejoli-chipin/internal/ratelimit"
	"github.com/noah-isme/sejoli-chipin/internal/resilience"
	"github.com/noah-isme/sejoli-chipin/internal/transaction"
)

// Dependencies holds the services shared by the API and the worker.
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	DB           *pgxpool.Pool
	Redis        *redis.Client
	Tasks        *asynq.Client
	Gateway      *chipin.Client
	Keys         chipin.KeyCache
	Orders       *host.PGStore
	Transactions *transaction.PGStore
	Events       *events.Bus
	Projector    order.Projector
	Settler      order.Settler
}

// Options tunes Build for a particular binary.
type Options struct {
	AppName      string
	RedisMetrics bool
}

// Build connects to Postgres and Redis and wires the domain services.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	pool, err := NewPool(ctx, cfg.DatabaseURL, opts.AppName)
	if err != nil {
		return nil, err
	}
	rdb, err := NewRedis(ctx, cfg.RedisURL, opts.RedisMetrics, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("app: parse redis uri for tasks: %w", err)
	}

	d := &Dependencies{
		Config:       cfg,
		Logger:       logger,
		DB:           pool,
		Redis:        rdb,
		Tasks:        asynq.NewClient(connOpt),
		Gateway:      NewGatewayClient(cfg, logger),
		Orders:       host.NewStore(pool),
		Transactions: transaction.NewStore(pool),
	}
	d.Keys = chipin.KeyCache{Fetcher: d.Gateway, Store: rdb, TTL: cfg.ChipIn.PublicKeyTTL}
	d.Events = &events.Bus{
		Store: events.NewStore(pool),
		Notifiers: []events.Notifier{notify.EmailNotifier{
			Mail:    notify.LogMailer{Logger: logger.With().Str("component", "mail").Logger()},
			Enabled: cfg.NotifyEmailEnabled,
			From:    cfg.NotifyEmailFrom,
		}},
	}
	d.Projector = order.Projector{Orders: d.Orders, Events: d.Events, Logger: logger}
	d.Settler = order.Settler{Orders: d.Orders, Transactions: d.Transactions, Projector: d.Projector, Logger: logger}
	return d, nil
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.Tasks != nil {
		if err := d.Tasks.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// NewPool opens a traced pgx pool and checks connectivity.
func NewPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if appName != "" {
		if poolConfig.ConnConfig.RuntimeParams == nil {
			poolConfig.ConnConfig.RuntimeParams = map[string]string{}
		}
		poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("app: connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: ping database: %w", err)
	}
	return pool, nil
}

// NewRedis opens an instrumented Redis client and checks connectivity.
func NewRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("app: parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("app: ping redis: %w", err)
	}
	return client, nil
}

// NewGatewayClient builds the Chip In client behind the breaker and retry wrapper.
func NewGatewayClient(cfg *config.Config, logger zerolog.Logger) *chipin.Client {
	gatewayLogger := logger.With().Str("component", "chipin").Logger()
	doer := resilience.HTTPClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Breaker: resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
			WithTarget("chipin").
			WithLogger(gatewayLogger),
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitterPercent,
		Timeout:     cfg.ChipIn.HTTPTimeout,
		Target:      "chipin",
		Logger:      &gatewayLogger,
	}
	return chipin.NewClient(cfg.ChipIn.Credentials(), doer)
}

// NewLimiter selects the rate limit backend. A nil Allower disables limiting.
func NewLimiter(cfg *config.Config, rdb redis.UniversalClient) (ratelimit.Allower, error) {
	switch cfg.RateLimitBackend {
	case "none":
		return nil, nil
	case "ulule":
		fw, err := ratelimit.NewFixedWindow(rdb, "rl:chipin", cfg.RateLimitWindow, cfg.RateLimitMax)
		if err != nil {
			return nil, fmt.Errorf("app: ulule limiter: %w", err)
		}
		return fw, nil
	default:
		return ratelimit.Limiter{Client: rdb, Prefix: "rl:chipin"}, nil
	}
}
