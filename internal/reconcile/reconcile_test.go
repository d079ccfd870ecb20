package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/order"
	"github.com/noah-isme/sejoli-chipin/internal/reconcile"
	"github.com/noah-isme/sejoli-chipin/internal/transaction"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: "t-1", NextProcessAt: time.Now()}, nil
}

type stubPurchases map[string]chipin.Purchase

func (s stubPurchases) GetPurchase(_ context.Context, id string) (chipin.Purchase, error) {
	p, ok := s[id]
	if !ok {
		return chipin.Purchase{}, &chipin.GatewayError{Op: "get_purchase", StatusCode: 502}
	}
	return p, nil
}

func optionValue(opts []asynq.Option, typ asynq.OptionType) (any, bool) {
	for _, o := range opts {
		if o.Type() == typ {
			return o.Value(), true
		}
	}
	return nil, false
}

func TestSchedulePurchase(t *testing.T) {
	enq := &captureEnqueuer{}
	s := reconcile.Scheduler{Client: enq, Delay: 45 * time.Minute, Queue: "chipin", MaxRetry: 5, Logger: zerolog.Nop()}

	require.NoError(t, s.SchedulePurchase(context.Background(), 42, "p-1"))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, reconcile.TypePurchaseReconcile, enq.tasks[0].Type())
	require.JSONEq(t, `{"order_id":42,"purchase_id":"p-1"}`, string(enq.tasks[0].Payload()))

	id, ok := optionValue(enq.opts[0], asynq.TaskIDOpt)
	require.True(t, ok)
	require.Equal(t, "reconcile:p-1", id)
	delay, ok := optionValue(enq.opts[0], asynq.ProcessInOpt)
	require.True(t, ok)
	require.Equal(t, 45*time.Minute, delay)
	queue, _ := optionValue(enq.opts[0], asynq.QueueOpt)
	require.Equal(t, "chipin", queue)
}

func TestScheduleIgnoresDuplicates(t *testing.T) {
	s := reconcile.Scheduler{Client: &captureEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, s.SchedulePurchase(context.Background(), 42, "p-1"))

	s = reconcile.Scheduler{Client: &captureEnqueuer{err: errors.New("redis down")}}
	require.Error(t, s.SchedulePurchase(context.Background(), 42, "p-1"))

	_, err := reconcile.NewTask(reconcile.Payload{OrderID: 42})
	require.Error(t, err)
}

type fixture struct {
	handler reconcile.Handler
	orders  *host.MemoryStore
	txs     *transaction.MemoryStore
}

func newFixture(purchases stubPurchases) fixture {
	orders := host.NewMemoryStore()
	txs := transaction.NewMemoryStore()
	orders.PutOrder(host.Order{
		ID:             42,
		Status:         host.StatusOnHold,
		Product:        host.Product{ID: 1, Name: "Kelas", Type: "digital", Price: decimal.NewFromInt(100)},
		Quantity:       1,
		GrandTotal:     decimal.NewFromInt(100),
		PaymentGateway: host.PaymentGateway,
	})
	settler := order.Settler{
		Orders:       orders,
		Transactions: txs,
		Projector:    order.Projector{Orders: orders, Logger: zerolog.Nop()},
		Logger:       zerolog.Nop(),
	}
	return fixture{
		handler: reconcile.Handler{Purchases: purchases, Settler: settler, Logger: zerolog.Nop()},
		orders:  orders,
		txs:     txs,
	}
}

func task(t *testing.T, orderID int64, purchaseID string) *asynq.Task {
	t.Helper()
	tk, err := reconcile.NewTask(reconcile.Payload{OrderID: orderID, PurchaseID: purchaseID})
	require.NoError(t, err)
	return tk
}

func TestProcessPaidPurchase(t *testing.T) {
	f := newFixture(stubPurchases{"p-1": {ID: "p-1", Reference: "42", Status: chipin.PurchaseStatusPaid}})

	require.NoError(t, f.handler.ProcessTask(context.Background(), task(t, 42, "p-1")))
	require.Equal(t, []host.StatusUpdate{{OrderID: 42, Status: host.StatusCompleted}}, f.orders.StatusUpdates())

	// webhook already settled it: no second projection
	require.NoError(t, f.handler.ProcessTask(context.Background(), task(t, 42, "p-1")))
	require.Len(t, f.orders.StatusUpdates(), 1)
}

func TestProcessExpiredPurchase(t *testing.T) {
	f := newFixture(stubPurchases{"p-1": {ID: "p-1", Reference: "42", Status: chipin.PurchaseStatusExpired}})

	require.NoError(t, f.handler.ProcessTask(context.Background(), task(t, 42, "p-1")))
	require.Equal(t, []host.StatusUpdate{{OrderID: 42, Status: host.StatusCancelled}}, f.orders.StatusUpdates())
	rec, err := f.txs.FindByOrder(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, transaction.StatusCancelled, rec.Status)
}

func TestProcessPendingPurchaseIsNoop(t *testing.T) {
	f := newFixture(stubPurchases{"p-1": {ID: "p-1", Reference: "42", Status: "created"}})

	require.NoError(t, f.handler.ProcessTask(context.Background(), task(t, 42, "p-1")))
	require.Empty(t, f.orders.StatusUpdates())
	require.Zero(t, f.txs.Len())
}

func TestProcessErrors(t *testing.T) {
	f := newFixture(stubPurchases{"p-2": {ID: "p-2", Reference: "77", Status: chipin.PurchaseStatusPaid}})

	err := f.handler.ProcessTask(context.Background(), task(t, 42, "p-missing"))
	var gwErr *chipin.GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	err = f.handler.ProcessTask(context.Background(), task(t, 42, "p-2"))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = f.handler.ProcessTask(context.Background(), asynq.NewTask(reconcile.TypePurchaseReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, f.orders.StatusUpdates())
}
