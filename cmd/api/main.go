package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sejoli-chipin/internal/app"
	"github.com/noah-isme/sejoli-chipin/internal/auth"
	"github.com/noah-isme/sejoli-chipin/internal/checkout"
	"github.com/noah-isme/sejoli-chipin/internal/config"
	"github.com/noah-isme/sejoli-chipin/internal/db"
	"github.com/noah-isme/sejoli-chipin/internal/health"
	"github.com/noah-isme/sejoli-chipin/internal/inbound"
	"github.com/noah-isme/sejoli-chipin/internal/lock"
	"github.com/noah-isme/sejoli-chipin/internal/obs"
	"github.com/noah-isme/sejoli-chipin/internal/payment"
	"github.com/noah-isme/sejoli-chipin/internal/ratelimit"
	"github.com/noah-isme/sejoli-chipin/internal/reconcile"
	"github.com/noah-isme/sejoli-chipin/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.Tracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "chipin-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	deps, err := app.Build(initCtx, cfg, logger, app.Options{AppName: "chipin-api", RedisMetrics: cfg.Obs.Prometheus})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	creds := cfg.ChipIn.Credentials()
	checkoutSvc := &checkout.Service{
		Transactions: deps.Transactions,
		Orders:       deps.Orders,
		Gateway:      deps.Gateway,
		Credentials:  creds,
		Options: checkout.Options{
			SiteURL:     cfg.SiteURL,
			Currency:    cfg.CurrencyCode,
			TimeZone:    cfg.ChipIn.PurchaseTimeZone,
			DueStrict:   cfg.ChipIn.DueActive,
			DueMinutes:  cfg.ChipIn.DueMinutes,
			SendReceipt: cfg.ChipIn.SendReceipt,
		},
		Locker:  lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff, MaxWait: cfg.PurchaseLockTTL},
		LockTTL: cfg.PurchaseLockTTL,
		Events:  deps.Events,
		Logger:  logger.With().Str("component", "checkout").Logger(),
	}
	if cfg.ReconcileEnabled {
		checkoutSvc.Reconcile = reconcile.Scheduler{
			Client:   deps.Tasks,
			Delay:    cfg.ReconcileDelay,
			Queue:    reconcile.Queue,
			MaxRetry: cfg.ReconcileMaxRetry,
			Logger:   logger,
		}
	}
	checkoutHandler := checkout.Handler{Svc: checkoutSvc}

	inboundRouter := &inbound.Router{
		Settler:     deps.Settler,
		ProviderKey: deps.Keys,
		WebhookKey:  creds.WebhookPublicKey,
		Replay:      deps.Redis,
		ReplayTTL:   cfg.WebhookReplayTTL,
		SiteURL:     cfg.SiteURL,
		MaxBody:     cfg.BodyLimitBytes,
		Logger:      logger.With().Str("component", "inbound").Logger(),
	}

	paymentHandler := payment.Handler{
		Method: payment.Method{
			Active:       cfg.ChipIn.Active,
			AssetBaseURL: cfg.AssetBaseURL,
			SiteURL:      cfg.SiteURL,
			Currency:     cfg.CurrencyCode,
		},
		Orders:    deps.Orders,
		Purchases: deps.Gateway,
		Keys:      deps.Keys,
	}

	limiter, err := app.NewLimiter(cfg, deps.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	rateLimit := ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP, Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.Prometheus {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                cfg.SecurityHeaders,
		EnableHSTS:            cfg.HSTS,
		ContentSecurityPolicy: security.DefaultContentSecurityPolicy,
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	// legacy ?chip-in-method=1&action=... notifications may arrive on any path
	r.Use(limitInbound(rateLimit, inboundRouter.Middleware))

	if cfg.Obs.Prometheus {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.Pprof {
		r.Group(func(d chi.Router) {
			if cfg.Obs.PprofUser != "" {
				d.Use(middleware.BasicAuth("pprof", map[string]string{cfg.Obs.PprofUser: cfg.Obs.PprofPass}))
			}
			d.Mount("/debug", middleware.Profiler())
		})
	}

	healthHandler := health.Handler{
		Probes: map[string]health.Probe{
			"db":    func(ctx context.Context) error { return deps.DB.Ping(ctx) },
			"redis": func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() },
		},
		Timeout: cfg.ReadyTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Handle(inbound.PathPrefix+"{action}", inboundRouter)
	r.With(rateLimit.Middleware).Get("/checkout/thank-you", checkoutHandler.ThankYou)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins(cfg),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		v.Use(auth.TokenGuard{Token: cfg.HostAPIToken}.RequireToken)
		paymentHandler.Routes(v)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("mode", string(creds.Mode)).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Msg("server draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
		logger.Info().Msg("server stopped")
	}
}

// limitInbound rate limits only the requests the inbound router will claim.
func limitInbound(rl ratelimit.Handler, dispatch func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		claimed := dispatch(next)
		limited := rl.Middleware(claimed)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := inbound.ActionFromRequest(r); ok {
				limited.ServeHTTP(w, r)
				return
			}
			claimed.ServeHTTP(w, r)
		})
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
