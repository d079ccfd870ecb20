package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/events"
	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/lock"
	"github.com/noah-isme/sejoli-chipin/internal/obs"
	"github.com/noah-isme/sejoli-chipin/internal/transaction"
)

var (
	// ErrConfigurationMissing is returned when brand id or secret key is empty.
	// No purchase is attempted and the customer has nowhere to be redirected.
	ErrConfigurationMissing = errors.New("checkout: chip in credentials missing")
	// ErrNoCheckoutURL is returned when the gateway accepted a purchase without a checkout URL.
	ErrNoCheckoutURL = errors.New("checkout: gateway returned no checkout url")
)

// Gateway creates purchases with the payment provider.
type Gateway interface {
	CreatePurchase(ctx context.Context, p chipin.Purchase) (chipin.Purchase, error)
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Scheduler queues a follow-up status check for a created purchase.
type Scheduler interface {
	SchedulePurchase(ctx context.Context, orderID int64, purchaseID string) error
}

// Emitter announces purchase creation.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID string, payload any) (events.Event, error)
}

// Service resolves where a customer with an on-hold order should be sent to pay.
type Service struct {
	Transactions transaction.Store
	Orders       host.Store
	Gateway      Gateway
	Credentials  chipin.Credentials
	Options      Options
	Locker       Locker
	LockTTL      time.Duration
	Reconcile    Scheduler
	Events       Emitter
	Logger       zerolog.Logger
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ResolveRedirect returns the gateway checkout URL for the order, creating a
// purchase only when no usable one is cached.
func (s *Service) ResolveRedirect(ctx context.Context, o host.Order) (string, error) {
	if s == nil || s.Transactions == nil || s.Orders == nil {
		return "", errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Checkout.ResolveRedirect")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", o.ID))

	var link string
	resolve := func(ctx context.Context) error {
		var err error
		link, err = s.resolve(ctx, o)
		return err
	}
	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, lock.PurchaseKey(o.IDString()), s.LockTTL, resolve)
	} else {
		err = resolve(ctx)
	}
	if err != nil {
		span.RecordError(err)
	}
	return link, err
}

func (s *Service) resolve(ctx context.Context, o host.Order) (string, error) {
	rec, err := s.Transactions.FindByOrder(ctx, o.ID)
	switch {
	case err == nil && rec.HasCheckoutURL():
		obs.IncPurchase("cached")
		return rec.Detail.CheckoutURL, nil
	case err != nil && !errors.Is(err, transaction.ErrNotFound):
		obs.IncPurchase("error")
		return "", fmt.Errorf("checkout: find transaction: %w", err)
	}

	if _, err := s.Transactions.Create(ctx, o.ID); err != nil {
		obs.IncPurchase("error")
		return "", fmt.Errorf("checkout: create transaction: %w", err)
	}
	if !s.Credentials.Configured() {
		obs.IncPurchase("unconfigured")
		s.Logger.Error().Int64("order_id", o.ID).Str("mode", string(s.Credentials.Mode)).Msg("chipin_credentials_missing")
		return "", ErrConfigurationMissing
	}

	req, err := s.BuildPurchase(ctx, o)
	if err != nil {
		obs.IncPurchase("error")
		return "", fmt.Errorf("checkout: build purchase: %w", err)
	}
	result, err := s.Gateway.CreatePurchase(ctx, req)
	if err != nil {
		obs.IncPurchase("error")
		s.Logger.Error().Err(err).Int64("order_id", o.ID).Msg("chipin_purchase_failed")
		return "", err
	}
	result.InvoiceURL = ThankYouURL(s.Options.SiteURL, o.ID)

	detail, err := transaction.DetailFromPurchase(result)
	if err != nil {
		return "", err
	}
	if err := s.Transactions.UpdateDetail(ctx, o.ID, detail); err != nil {
		obs.IncPurchase("error")
		return "", fmt.Errorf("checkout: store detail: %w", err)
	}
	obs.IncPurchase("created")
	s.Logger.Info().Int64("order_id", o.ID).Str("purchase_id", result.ID).Str("checkout_url", result.CheckoutURL).Msg("chipin_purchase_created")

	s.afterCreate(ctx, o, result)

	if strings.TrimSpace(result.CheckoutURL) == "" {
		return "", ErrNoCheckoutURL
	}
	return result.CheckoutURL, nil
}

// afterCreate runs best-effort follow-ups; failures are logged only.
func (s *Service) afterCreate(ctx context.Context, o host.Order, result chipin.Purchase) {
	if s.Reconcile != nil && result.ID != "" {
		if err := s.Reconcile.SchedulePurchase(ctx, o.ID, result.ID); err != nil {
			s.Logger.Warn().Err(err).Int64("order_id", o.ID).Msg("chipin_reconcile_schedule_failed")
		}
	}
	if s.Events != nil {
		payload := map[string]any{
			"orderId":     o.IDString(),
			"purchaseId":  result.ID,
			"checkoutUrl": result.CheckoutURL,
		}
		if o.User.Email != "" {
			payload["email"] = o.User.Email
		}
		if _, err := s.Events.Emit(ctx, events.TopicPurchaseCreated, o.IDString(), payload); err != nil {
			s.Logger.Warn().Err(err).Int64("order_id", o.ID).Msg("chipin_purchase_event_failed")
		}
	}
}
