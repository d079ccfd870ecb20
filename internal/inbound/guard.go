package inbound

import (
	"context"
	"sync/atomic"
)

type guardKey struct{}

// WithDispatchGuard attaches a fresh per-request dispatch flag. An existing
// guard is kept so nested middleware shares it.
func WithDispatchGuard(ctx context.Context) context.Context {
	if _, ok := ctx.Value(guardKey{}).(*atomic.Bool); ok {
		return ctx
	}
	return context.WithValue(ctx, guardKey{}, new(atomic.Bool))
}

// claimDispatch reports whether this caller is the first to dispatch within
// the request. Requests without a guard always dispatch.
func claimDispatch(ctx context.Context) bool {
	flag, ok := ctx.Value(guardKey{}).(*atomic.Bool)
	if !ok {
		return true
	}
	return flag.CompareAndSwap(false, true)
}

// Dispatched reports whether an action already ran for this request.
func Dispatched(ctx context.Context) bool {
	flag, ok := ctx.Value(guardKey{}).(*atomic.Bool)
	return ok && flag.Load()
}
