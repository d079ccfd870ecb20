package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow adapts a ulule limiter to Allower. The rate is fixed when the
// limiter is built, so the window and max passed to Allow are ignored.
type FixedWindow struct {
	L *limiter.Limiter
}

// NewFixedWindow builds a fixed window limiter stored in Redis.
func NewFixedWindow(rdb redis.UniversalClient, prefix string, window time.Duration, max int) (FixedWindow, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return FixedWindow{}, err
	}
	return FixedWindowFromStore(store, window, max), nil
}

// FixedWindowFromStore builds a fixed window limiter over any ulule store.
func FixedWindowFromStore(store limiter.Store, window time.Duration, max int) FixedWindow {
	return FixedWindow{L: limiter.New(store, limiter.Rate{Period: window, Limit: int64(max)})}
}

func (f FixedWindow) Allow(ctx context.Context, key string, _ time.Duration, _ int) (bool, int, time.Time, error) {
	if f.L == nil {
		return true, 0, time.Now(), nil
	}
	lctx, err := f.L.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now(), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}
