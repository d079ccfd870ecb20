package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/sejoli-chipin/internal/events"
	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/obs"
)

// ErrInvalidStatus is returned for target statuses the projector never writes.
var ErrInvalidStatus = errors.New("order: status not projectable")

// Emitter is the subset of events.Bus used to announce status changes.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID string, payload any) (events.Event, error)
}

// Projector applies a gateway outcome to the host order status.
type Projector struct {
	Orders host.Store
	Events Emitter
	Logger zerolog.Logger
}

// Projectable reports whether status is one the projector writes.
func Projectable(status host.OrderStatus) bool {
	switch status {
	case host.StatusInProgress, host.StatusCompleted, host.StatusCancelled:
		return true
	}
	return false
}

// Project updates the order status. A missing order is logged and not
// returned as an error; failures of the host update are.
func (p Projector) Project(ctx context.Context, orderID int64, status host.OrderStatus) error {
	if !Projectable(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	ctx, span := otel.Tracer("order.Projector").Start(ctx, "Order.Project")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID), attribute.String("order.status", string(status)))

	ord, err := p.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, host.ErrOrderNotFound) {
		p.Logger.Warn().Int64("order_id", orderID).Str("status", string(status)).Msg("chipin_wrong_order")
		obs.IncStatusProjection(string(status), "order_not_found")
		return nil
	}
	if err != nil {
		obs.IncStatusProjection(string(status), "error")
		span.RecordError(err)
		return fmt.Errorf("order: load %d: %w", orderID, err)
	}
	if err := p.Orders.UpdateOrderStatus(ctx, ord.ID, status); err != nil {
		obs.IncStatusProjection(string(status), "error")
		span.RecordError(err)
		return fmt.Errorf("order: update status %d: %w", orderID, err)
	}
	obs.IncStatusProjection(string(status), "ok")
	p.Logger.Info().Int64("order_id", ord.ID).Str("from", string(ord.Status)).Str("to", string(status)).Msg("chipin_update_order")

	if p.Events != nil {
		payload := map[string]any{
			"orderId":    ord.IDString(),
			"status":     string(status),
			"previous":   string(ord.Status),
			"productId":  ord.ProductID,
			"grandTotal": ord.GrandTotal.String(),
		}
		if ord.User.Email != "" {
			payload["email"] = ord.User.Email
		}
		if _, err := p.Events.Emit(ctx, events.TopicOrderStatusUpdated, ord.IDString(), payload); err != nil {
			p.Logger.Warn().Err(err).Int64("order_id", ord.ID).Msg("order_status_event_failed")
		}
	}
	return nil
}
