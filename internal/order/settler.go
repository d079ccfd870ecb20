package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/transaction"
)

// Outcome values stored in the order's chip-in.status meta.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
)

// Result describes what a settlement call did.
type Result struct {
	OrderID   int64
	Status    host.OrderStatus
	Projected bool
}

// Settler applies a paid or cancelled gateway outcome to an order. It is the
// single path shared by the redirect, the webhook and reconciliation.
type Settler struct {
	Orders       host.Store
	Transactions transaction.Store
	Projector    Projector
	Logger       zerolog.Logger
}

// NextPaidStatus picks the status a paid order moves to.
func NextPaidStatus(o host.Order) host.OrderStatus {
	if o.Product.Physical() {
		return host.StatusInProgress
	}
	return host.StatusCompleted
}

// MarkPaid settles a successful payment. The projection is skipped when the
// transaction was already recorded as successful.
func (s Settler) MarkPaid(ctx context.Context, orderID int64) (Result, error) {
	ord, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, host.ErrOrderNotFound) {
			s.Logger.Warn().Int64("order_id", orderID).Msg("chipin_wrong_order")
		}
		return Result{OrderID: orderID}, err
	}
	next := NextPaidStatus(ord)
	res := Result{OrderID: ord.ID, Status: next}

	owned, err := s.markTransaction(ctx, ord.ID, transaction.StatusSuccess)
	if err != nil {
		return res, err
	}
	if !owned.changed {
		s.Logger.Info().Int64("order_id", ord.ID).Msg("chipin_already_settled")
		return res, nil
	}
	if err := s.apply(ctx, ord.ID, OutcomeSuccess, next); err != nil {
		return res, s.release(ctx, owned, err)
	}
	res.Projected = true
	return res, nil
}

// MarkCancelled settles a failed, cancelled or expired payment. Orders that
// were already paid are left alone.
func (s Settler) MarkCancelled(ctx context.Context, orderID int64) (Result, error) {
	ord, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, host.ErrOrderNotFound) {
			s.Logger.Warn().Int64("order_id", orderID).Msg("chipin_wrong_order")
		}
		return Result{OrderID: orderID}, err
	}
	res := Result{OrderID: ord.ID, Status: host.StatusCancelled}
	if rec, err := s.Transactions.FindByOrder(ctx, ord.ID); err == nil && rec.Status == transaction.StatusSuccess {
		s.Logger.Info().Int64("order_id", ord.ID).Msg("chipin_cancel_after_success_ignored")
		return res, nil
	}
	owned, err := s.markTransaction(ctx, ord.ID, transaction.StatusCancelled)
	if err != nil {
		return res, err
	}
	if !owned.changed {
		return res, nil
	}
	if err := s.apply(ctx, ord.ID, OutcomeCancelled, host.StatusCancelled); err != nil {
		return res, s.release(ctx, owned, err)
	}
	res.Projected = true
	return res, nil
}

// claim is the transaction status flip that owns one settlement. Whoever
// changes the row applies the outcome to the order.
type claim struct {
	orderID  int64
	previous transaction.Status
	changed  bool
}

// markTransaction records the outcome on the transaction row, creating it
// for orders whose purchase was made before the record existed.
func (s Settler) markTransaction(ctx context.Context, orderID int64, status transaction.Status) (claim, error) {
	c := claim{orderID: orderID}
	if s.Transactions == nil {
		c.changed = true
		return c, nil
	}
	rec, err := s.Transactions.Create(ctx, orderID)
	if err != nil {
		return c, fmt.Errorf("order: ensure transaction: %w", err)
	}
	c.previous = rec.Status
	c.changed, err = s.Transactions.MarkStatus(ctx, orderID, status)
	if err != nil {
		return c, fmt.Errorf("order: mark transaction: %w", err)
	}
	return c, nil
}

func (s Settler) apply(ctx context.Context, orderID int64, outcome string, status host.OrderStatus) error {
	if err := s.Orders.UpdateOrderMeta(ctx, orderID, host.MetaChipInStatus, outcome); err != nil {
		return fmt.Errorf("order: update meta: %w", err)
	}
	return s.Projector.Project(ctx, orderID, status)
}

// release puts the transaction row back to its previous status after the
// order could not be updated, so the next webhook or reconcile attempt can
// claim the settlement again.
func (s Settler) release(ctx context.Context, c claim, cause error) error {
	if s.Transactions == nil || c.previous == "" {
		return cause
	}
	if err := s.Transactions.UpdateStatus(context.WithoutCancel(ctx), c.orderID, c.previous); err != nil {
		s.Logger.Error().Err(err).Int64("order_id", c.orderID).Str("status", string(c.previous)).Msg("chipin_settle_release_failed")
		return errors.Join(cause, fmt.Errorf("order: release transaction: %w", err))
	}
	s.Logger.Warn().Err(cause).Int64("order_id", c.orderID).Msg("chipin_settle_released")
	return cause
}
