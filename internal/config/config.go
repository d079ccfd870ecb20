package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
)

const defaultChipInEndpoint = "https://gate.chip-in.asia/api/v1/"

// Config holds application configuration loaded from the environment. Field
// tags name the environment variable each value is read from.
type Config struct {
	AppEnv             string   `koanf:"APP_ENV"`
	Port               string   `koanf:"PORT"`
	DatabaseURL        string   `koanf:"DATABASE_URL" validate:"required"`
	RedisURL           string   `koanf:"REDIS_URL" validate:"required"`
	SiteURL            string   `koanf:"SITE_URL" validate:"required,url"`
	AssetBaseURL       string   `koanf:"ASSET_BASE_URL"`
	HostAPIToken       string   `koanf:"HOST_API_TOKEN"`
	CORSAllowedOrigins []string `koanf:"CORS_ALLOWED_ORIGINS"`
	CurrencyCode       string   `koanf:"CURRENCY_CODE" validate:"required,len=3"`
	MigrateOnStart     bool     `koanf:"MIGRATE_ON_START"`

	ChipIn ChipIn `koanf:"-"`
	Obs    Obs    `koanf:"-"`

	WebhookReplayTTL time.Duration `koanf:"WEBHOOK_REPLAY_TTL"`
	PurchaseLockTTL  time.Duration `koanf:"PURCHASE_LOCK_TTL"`
	LockRetryBackoff time.Duration `koanf:"LOCK_RETRY_BACKOFF"`

	ReconcileEnabled     bool          `koanf:"RECONCILE_ENABLED"`
	ReconcileDelay       time.Duration `koanf:"RECONCILE_DELAY"`
	ReconcileConcurrency int           `koanf:"RECONCILE_CONCURRENCY" validate:"min=1"`
	ReconcileMaxRetry    int           `koanf:"RECONCILE_MAX_RETRY" validate:"min=0"`
	ReconcileRetryBase   time.Duration `koanf:"RECONCILE_RETRY_BASE"`

	RateLimitBackend string        `koanf:"RATE_LIMIT_BACKEND" validate:"oneof=sliding ulule none"`
	RateLimitMax     int           `koanf:"RATE_LIMIT_MAX"`
	RateLimitWindow  time.Duration `koanf:"RATE_LIMIT_WINDOW"`
	BodyLimitBytes   int64         `koanf:"BODY_LIMIT_BYTES"`

	SecurityHeaders bool `koanf:"SECURITY_HEADERS_ENABLED"`
	HSTS            bool `koanf:"SECURITY_HSTS_ENABLED"`

	ReadyTimeout          time.Duration `koanf:"HEALTH_READY_TIMEOUT"`
	ShutdownTimeout       time.Duration `koanf:"SHUTDOWN_TIMEOUT"`
	WorkerShutdownTimeout time.Duration `koanf:"WORKER_SHUTDOWN_TIMEOUT"`

	RetryMaxAttempts    int           `koanf:"CHIPIN_RETRY_MAX_ATTEMPTS"`
	RetryBase           time.Duration `koanf:"CHIPIN_RETRY_BASE"`
	RetryJitterPercent  float64       `koanf:"CHIPIN_RETRY_JITTER"`
	CircuitMinRequests  int           `koanf:"CHIPIN_CIRCUIT_MIN_REQUESTS"`
	CircuitFailureRatio float64       `koanf:"CHIPIN_CIRCUIT_FAILURE_RATIO" validate:"gte=0,lte=1"`
	CircuitOpenFor      time.Duration `koanf:"CHIPIN_CIRCUIT_OPEN_FOR"`

	NotifyEmailEnabled bool   `koanf:"NOTIFY_EMAIL_ENABLED"`
	NotifyEmailFrom    string `koanf:"NOTIFY_EMAIL_FROM"`
}

// ChipIn groups the payment gateway settings. Credentials for both modes are
// kept so the active set can be resolved once via Credentials.
type ChipIn struct {
	Active           bool          `koanf:"CHIPIN_ACTIVE"`
	Mode             string        `koanf:"CHIPIN_MODE" validate:"oneof=sandbox live"`
	BrandIDSandbox   string        `koanf:"CHIPIN_BRAND_ID_SANDBOX"`
	SecretKeySandbox string        `koanf:"CHIPIN_SECRET_KEY_SANDBOX"`
	BrandIDLive      string        `koanf:"CHIPIN_BRAND_ID_LIVE"`
	SecretKeyLive    string        `koanf:"CHIPIN_SECRET_KEY_LIVE"`
	EndpointSandbox  string        `koanf:"CHIPIN_ENDPOINT_SANDBOX" validate:"required,url"`
	EndpointLive     string        `koanf:"CHIPIN_ENDPOINT_LIVE" validate:"required,url"`
	WebhookPublicKey string        `koanf:"CHIPIN_WEBHOOK_PUBLIC_KEY"`
	PurchaseTimeZone string        `koanf:"CHIPIN_PURCHASE_TIME_ZONE" validate:"required"`
	DueActive        bool          `koanf:"CHIPIN_DUE_ACTIVE"`
	DueMinutes       int           `koanf:"CHIPIN_DUE_MINUTES" validate:"min=0"`
	SendReceipt      bool          `koanf:"CHIPIN_SEND_RECEIPT"`
	HTTPTimeout      time.Duration `koanf:"CHIPIN_HTTP_TIMEOUT"`
	PublicKeyTTL     time.Duration `koanf:"CHIPIN_PUBLIC_KEY_TTL"`
}

// Obs holds logging, metrics, tracing and profiling switches.
type Obs struct {
	LogFormat        string  `koanf:"OBS_LOG_FORMAT" validate:"oneof=json console"`
	LogLevel         string  `koanf:"OBS_LOG_LEVEL"`
	MetricsNamespace string  `koanf:"OBS_METRICS_NAMESPACE"`
	Prometheus       bool    `koanf:"OBS_ENABLE_PROMETHEUS"`
	MetricsBuckets   string  `koanf:"OBS_METRICS_BUCKETS_MS"`
	Tracing          bool    `koanf:"OBS_ENABLE_TRACING"`
	TracingExporter  string  `koanf:"OBS_TRACING_EXPORTER"`
	OTLPEndpoint     string  `koanf:"OBS_OTLP_ENDPOINT"`
	SamplingRatio    float64 `koanf:"OBS_TRACING_SAMPLING_RATIO" validate:"gte=0,lte=1"`
	Pprof            bool    `koanf:"OBS_ENABLE_PPROF"`
	PprofUser        string  `koanf:"SECURE_PPROF_BASIC_AUTH_USER"`
	PprofPass        string  `koanf:"SECURE_PPROF_BASIC_AUTH_PASS"`
}

// Credentials resolves the credential set of the configured mode.
func (c ChipIn) Credentials() chipin.Credentials {
	creds := chipin.Credentials{
		Mode:             chipin.Mode(c.Mode),
		WebhookPublicKey: strings.TrimSpace(c.WebhookPublicKey),
	}
	switch creds.Mode {
	case chipin.ModeLive:
		creds.BrandID = strings.TrimSpace(c.BrandIDLive)
		creds.SecretKey = strings.TrimSpace(c.SecretKeyLive)
		creds.Endpoint = c.EndpointLive
	default:
		creds.Mode = chipin.ModeSandbox
		creds.BrandID = strings.TrimSpace(c.BrandIDSandbox)
		creds.SecretKey = strings.TrimSpace(c.SecretKeySandbox)
		creds.Endpoint = c.EndpointSandbox
	}
	return creds
}

func defaults() *Config {
	return &Config{
		AppEnv:         "development",
		Port:           "8080",
		CurrencyCode:   "MYR",
		MigrateOnStart: true,

		ChipIn: ChipIn{
			Mode:             string(chipin.ModeSandbox),
			EndpointSandbox:  defaultChipInEndpoint,
			EndpointLive:     defaultChipInEndpoint,
			PurchaseTimeZone: "Asia/Kuala_Lumpur",
			DueMinutes:       60,
			HTTPTimeout:      15 * time.Second,
			PublicKeyTTL:     5 * time.Minute,
		},
		Obs: Obs{
			LogFormat:        "json",
			LogLevel:         "info",
			MetricsNamespace: "chipin",
			Prometheus:       true,
			Tracing:          true,
			TracingExporter:  "otlp",
			SamplingRatio:    1,
		},

		WebhookReplayTTL: 24 * time.Hour,
		PurchaseLockTTL:  30 * time.Second,
		LockRetryBackoff: 50 * time.Millisecond,

		ReconcileEnabled:     true,
		ReconcileConcurrency: 4,
		ReconcileMaxRetry:    10,
		ReconcileRetryBase:   30 * time.Second,

		RateLimitBackend: "sliding",
		RateLimitMax:     120,
		RateLimitWindow:  time.Minute,
		BodyLimitBytes:   1 << 20,

		SecurityHeaders:       true,
		ReadyTimeout:          500 * time.Millisecond,
		ShutdownTimeout:       15 * time.Second,
		WorkerShutdownTimeout: 10 * time.Second,

		RetryMaxAttempts:    1,
		RetryBase:           200 * time.Millisecond,
		RetryJitterPercent:  0.2,
		CircuitMinRequests:  5,
		CircuitFailureRatio: 0.5,
		CircuitOpenFor:      30 * time.Second,

		NotifyEmailFrom: "no-reply@localhost",
	}
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	// blank variables are dropped so they fall back to defaults
	provider := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		value = strings.TrimSpace(value)
		if value == "" {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return build(k)
}

func build(k *koanf.Koanf) (*Config, error) {
	cfg := defaults()
	for _, target := range []any{cfg, &cfg.ChipIn, &cfg.Obs} {
		if err := k.UnmarshalWithConf("", target, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}
	if !k.Exists("SECURITY_HSTS_ENABLED") {
		cfg.HSTS = cfg.AppEnv == "production"
	}
	cfg.normalize()

	switch {
	case cfg.DatabaseURL == "":
		return nil, errors.New("DATABASE_URL is required")
	case cfg.RedisURL == "":
		return nil, errors.New("REDIS_URL is required")
	case cfg.SiteURL == "":
		return nil, errors.New("SITE_URL is required")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
	c.CurrencyCode = strings.ToUpper(c.CurrencyCode)
	c.RateLimitBackend = strings.ToLower(c.RateLimitBackend)
	c.ChipIn.Mode = strings.ToLower(c.ChipIn.Mode)
	c.Obs.LogFormat = strings.ToLower(c.Obs.LogFormat)

	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins

	// the status poll defaults to the purchase due window
	if c.ReconcileDelay <= 0 {
		minutes := c.ChipIn.DueMinutes
		if minutes <= 0 {
			minutes = 60
		}
		c.ReconcileDelay = time.Duration(minutes) * time.Minute
	}
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if port == "" {
		port = "8080"
	}
	return ":" + port
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests builds a Config from vars alone. Neither the process
// environment nor a .env file is consulted.
func LoadForTests(vars map[string]string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range vars {
		if value = strings.TrimSpace(value); value != "" {
			if err := k.Set(key, value); err != nil {
				return nil, fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return build(k)
}
