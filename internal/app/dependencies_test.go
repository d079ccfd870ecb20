package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sejoli-chipin/internal/app"
	"github.com/noah-isme/sejoli-chipin/internal/config"
	"github.com/noah-isme/sejoli-chipin/internal/ratelimit"
)

func TestNewRedisPings(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := app.NewRedis(context.Background(), "redis://"+mr.Addr(), false, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := app.NewRedis(context.Background(), "not a url", false, zerolog.Nop())
	require.Error(t, err)
}

func TestNewLimiterBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := app.NewRedis(context.Background(), "redis://"+mr.Addr(), false, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{RateLimitMax: 2, RateLimitWindow: time.Minute}

	cfg.RateLimitBackend = "none"
	none, err := app.NewLimiter(cfg, rdb)
	require.NoError(t, err)
	require.Nil(t, none)

	cfg.RateLimitBackend = "sliding"
	sliding, err := app.NewLimiter(cfg, rdb)
	require.NoError(t, err)
	require.IsType(t, ratelimit.Limiter{}, sliding)

	cfg.RateLimitBackend = "ulule"
	fixed, err := app.NewLimiter(cfg, rdb)
	require.NoError(t, err)
	require.IsType(t, ratelimit.FixedWindow{}, fixed)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allowed, _, _, err := fixed.Allow(ctx, "ip", time.Minute, 2)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, _, _, err := fixed.Allow(ctx, "ip", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestNewGatewayClientUsesConfiguredMode(t *testing.T) {
	cfg := &config.Config{
		ChipIn: config.ChipIn{
			Mode:          "live",
			BrandIDLive:   "brand-live",
			SecretKeyLive: "sk-live",
			EndpointLive:  "https://gate.example/api/v1",
			HTTPTimeout:   time.Second,
		},
		RetryMaxAttempts:    1,
		CircuitMinRequests:  5,
		CircuitFailureRatio: 0.5,
		CircuitOpenFor:      time.Second,
	}

	client := app.NewGatewayClient(cfg, zerolog.Nop())
	require.NotNil(t, client)
	require.Equal(t, "brand-live", client.Creds.BrandID)
	require.Equal(t, "https://gate.example/api/v1", client.Creds.Endpoint)
}

func TestBuildRequiresConfig(t *testing.T) {
	_, err := app.Build(context.Background(), nil, zerolog.Nop(), app.Options{})
	require.Error(t, err)
}
