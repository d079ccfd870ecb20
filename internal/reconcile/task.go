package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypePurchaseReconcile is the asynq task type polling a purchase's status.
const TypePurchaseReconcile = "chipin:purchase:reconcile"

// Queue is the asynq queue reconcile tasks are enqueued on.
const Queue = "reconcile"

// Payload identifies the purchase to reconcile.
type Payload struct {
	OrderID    int64  `json:"order_id"`
	PurchaseID string `json:"purchase_id"`
}

// NewTask builds a reconcile task.
func NewTask(p Payload) (*asynq.Task, error) {
	if p.OrderID <= 0 || p.PurchaseID == "" {
		return nil, errors.New("reconcile: order id and purchase id are required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePurchaseReconcile, body), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler queues a delayed status check after a purchase is created.
type Scheduler struct {
	Client   Enqueuer
	Delay    time.Duration
	Queue    string
	MaxRetry int
	Logger   zerolog.Logger
}

// SchedulePurchase enqueues one reconcile task per purchase; repeats are ignored.
func (s Scheduler) SchedulePurchase(ctx context.Context, orderID int64, purchaseID string) error {
	if s.Client == nil {
		return nil
	}
	task, err := NewTask(Payload{OrderID: orderID, PurchaseID: purchaseID})
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.TaskID(TaskID(purchaseID)),
		asynq.ProcessIn(s.Delay),
	}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if s.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.MaxRetry))
	}
	info, err := s.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: enqueue: %w", err)
	}
	if info != nil {
		s.Logger.Debug().Str("task_id", info.ID).Str("order_id", strconv.FormatInt(orderID, 10)).Time("process_at", info.NextProcessAt).Msg("chipin_reconcile_scheduled")
	}
	return nil
}

// TaskID is the dedupe id of the reconcile task for a purchase.
func TaskID(purchaseID string) string {
	return "reconcile:" + purchaseID
}
