package chipin

import (
	"context"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultKeyCacheKey = "chipin:public_key"

// KeyFetcher retrieves the provider's current public key.
type KeyFetcher interface {
	PublicKey(ctx context.Context) (string, error)
}

// KeyStore is the subset of redis commands used by KeyCache.
type KeyStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// KeyCache keeps the provider public key in Redis for a short TTL so inbound
// callbacks do not fetch it on every delivery.
type KeyCache struct {
	Fetcher KeyFetcher
	Store   KeyStore
	TTL     time.Duration
	Key     string
}

// PublicKey returns the cached key, fetching and caching it on a miss. Cache
// errors degrade to a direct fetch.
func (c KeyCache) PublicKey(ctx context.Context) (string, error) {
	if c.Fetcher == nil {
		return "", errors.New("chipin: key fetcher not configured")
	}
	cacheKey := c.cacheKey()
	if c.Store != nil {
		cached, err := c.Store.Get(ctx, cacheKey).Result()
		if err == nil && strings.TrimSpace(cached) != "" {
			return cached, nil
		}
	}
	key, err := c.Fetcher.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	if c.Store != nil && strings.TrimSpace(key) != "" {
		_ = c.Store.Set(ctx, cacheKey, key, c.ttl()).Err()
	}
	return key, nil
}

func (c KeyCache) cacheKey() string {
	if strings.TrimSpace(c.Key) == "" {
		return defaultKeyCacheKey
	}
	return c.Key
}

func (c KeyCache) ttl() time.Duration {
	if c.TTL <= 0 {
		return 5 * time.Minute
	}
	return c.TTL
}
