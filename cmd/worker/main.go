package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/sejoli-chipin/internal/app"
	"github.com/noah-isme/sejoli-chipin/internal/config"
	"github.com/noah-isme/sejoli-chipin/internal/obs"
	"github.com/noah-isme/sejoli-chipin/internal/reconcile"
	"github.com/noah-isme/sejoli-chipin/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	if !cfg.ReconcileEnabled {
		logger.Info().Msg("reconciliation disabled, worker exiting")
		return
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	deps, err := app.Build(initCtx, cfg, logger, app.Options{AppName: "chipin-worker"})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri")
	}

	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency:     cfg.ReconcileConcurrency,
		Queues:          map[string]int{reconcile.Queue: 1},
		ShutdownTimeout: cfg.WorkerShutdownTimeout,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return resilience.Backoff(cfg.ReconcileRetryBase, n, cfg.RetryJitterPercent)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn().Err(err).Str("type", task.Type()).Int("retried", retried).Int("max_retry", maxRetry).Msg("task failed")
		}),
		Logger:   asynqLogger{logger: logger},
		LogLevel: asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	reconcile.Handler{
		Purchases: deps.Gateway,
		Settler:   deps.Settler,
		Logger:    logger,
	}.Register(mux)

	logger.Info().Int("concurrency", cfg.ReconcileConcurrency).Msg("worker starting")
	// Run blocks until SIGINT or SIGTERM and drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}
