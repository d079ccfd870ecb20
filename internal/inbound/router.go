package inbound

import (
	"context"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sejoli-chipin/internal/order"
)

// Action names a notification endpoint.
type Action string

const (
	ActionRedirect Action = "redirect"
	ActionCallback Action = "callback"
	ActionWebhook  Action = "webhook"
)

// PathPrefix is where the gateway and the customer's browser reach the bridge.
const PathPrefix = "/chip-in/"

// Settler applies gateway outcomes to orders.
type Settler interface {
	MarkPaid(ctx context.Context, orderID int64) (order.Result, error)
	MarkCancelled(ctx context.Context, orderID int64) (order.Result, error)
}

// KeySource returns the provider's current public key.
type KeySource interface {
	PublicKey(ctx context.Context) (string, error)
}

// Router selects and runs one of the notification actions. Once an action is
// selected the rest of the handler chain is skipped.
type Router struct {
	Settler     Settler
	ProviderKey KeySource
	// WebhookKey is the locally configured PEM key for /chip-in/webhook.
	WebhookKey string
	Replay     redis.UniversalClient
	ReplayTTL  time.Duration
	SiteURL    string
	MaxBody    int64
	Logger     zerolog.Logger
}

// ActionFromRequest extracts the action from /chip-in/{action} or from the
// legacy ?chip-in-method=1&action= form.
func ActionFromRequest(r *http.Request) (Action, bool) {
	if rest, ok := strings.CutPrefix(r.URL.Path, PathPrefix); ok {
		return known(strings.Trim(rest, "/"))
	}
	q := r.URL.Query()
	if q.Get("chip-in-method") == "1" {
		return known(q.Get("action"))
	}
	return "", false
}

func known(name string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(name))); a {
	case ActionRedirect, ActionCallback, ActionWebhook:
		return a, true
	}
	return "", false
}

// Middleware dispatches recognised actions before any other handler runs and
// passes everything else through.
func (rt *Router) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(WithDispatchGuard(r.Context()))
		action, ok := ActionFromRequest(r)
		if !ok || !claimDispatch(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		rt.Dispatch(w, r, action)
	})
}

// ServeHTTP serves a mounted /chip-in/{action} route; unknown actions are 404.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action, ok := ActionFromRequest(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !claimDispatch(r.Context()) {
		return
	}
	rt.Dispatch(w, r, action)
}

// Dispatch runs action to completion and writes the response.
func (rt *Router) Dispatch(w http.ResponseWriter, r *http.Request, action Action) {
	switch action {
	case ActionRedirect:
		rt.redirect(w, r)
	case ActionCallback:
		rt.callback(w, r)
	case ActionWebhook:
		rt.webhook(w, r)
	default:
		http.NotFound(w, r)
	}
}
