package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/common"
	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/obs"
	"github.com/noah-isme/sejoli-chipin/internal/order"
)

// PurchaseFetcher reads the gateway's view of a purchase.
type PurchaseFetcher interface {
	GetPurchase(ctx context.Context, id string) (chipin.Purchase, error)
}

// Settler applies the reconciled outcome.
type Settler interface {
	MarkPaid(ctx context.Context, orderID int64) (order.Result, error)
	MarkCancelled(ctx context.Context, orderID int64) (order.Result, error)
}

// Handler processes reconcile tasks.
type Handler struct {
	Purchases PurchaseFetcher
	Settler   Settler
	Logger    zerolog.Logger
}

// Register binds the handler to mux.
func (h Handler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypePurchaseReconcile, h)
}

// ProcessTask implements asynq.Handler. Gateway failures are retried; bad
// payloads and mismatched purchases are not.
func (h Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.IncReconcile("invalid")
		return fmt.Errorf("reconcile: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	ctx, span := otel.Tracer("reconcile.Handler").Start(ctx, "Reconcile.Purchase")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", p.OrderID), attribute.String("chipin.purchase_id", p.PurchaseID))

	purchase, err := h.Purchases.GetPurchase(ctx, p.PurchaseID)
	if err != nil {
		obs.IncReconcile("gateway_error")
		span.RecordError(err)
		return err
	}
	if ref := strings.TrimSpace(purchase.Reference); ref != "" {
		if id, ok := common.ParseID(ref); !ok || id != p.OrderID {
			obs.IncReconcile("mismatch")
			h.Logger.Warn().Int64("order_id", p.OrderID).Str("reference", ref).Msg("chipin_reconcile_reference_mismatch")
			return fmt.Errorf("reconcile: purchase %s belongs to %q: %w", p.PurchaseID, ref, asynq.SkipRetry)
		}
	}

	var res order.Result
	switch purchase.Status {
	case chipin.PurchaseStatusPaid:
		res, err = h.Settler.MarkPaid(ctx, p.OrderID)
	case chipin.PurchaseStatusCancelled, chipin.PurchaseStatusExpired, chipin.PurchaseStatusError:
		res, err = h.Settler.MarkCancelled(ctx, p.OrderID)
	default:
		obs.IncReconcile("pending")
		h.Logger.Debug().Int64("order_id", p.OrderID).Str("status", purchase.Status).Msg("chipin_reconcile_pending")
		return nil
	}
	if errors.Is(err, host.ErrOrderNotFound) {
		obs.IncReconcile("unknown_order")
		return nil
	}
	if err != nil {
		obs.IncReconcile("error")
		span.RecordError(err)
		return err
	}
	obs.IncReconcile("settled")
	h.Logger.Info().Int64("order_id", p.OrderID).Str("purchase_status", purchase.Status).Str("status", string(res.Status)).Bool("projected", res.Projected).Msg("chipin_reconciled")
	return nil
}
