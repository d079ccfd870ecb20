package order_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/order"
	"github.com/noah-isme/sejoli-chipin/internal/transaction"
)

func newSettler() (order.Settler, *host.MemoryStore, *transaction.MemoryStore) {
	orders := host.NewMemoryStore()
	txs := transaction.NewMemoryStore()
	return order.Settler{
		Orders:       orders,
		Transactions: txs,
		Projector:    order.Projector{Orders: orders},
	}, orders, txs
}

func TestMarkPaidPicksStatusByProductType(t *testing.T) {
	cases := map[string]host.OrderStatus{
		"digital":  host.StatusCompleted,
		"physical": host.StatusInProgress,
	}
	for productType, want := range cases {
		t.Run(productType, func(t *testing.T) {
			s, orders, txs := newSettler()
			seedOrder(orders, 42, productType)

			res, err := s.MarkPaid(context.Background(), 42)
			require.NoError(t, err)
			require.True(t, res.Projected)
			require.Equal(t, want, res.Status)
			require.Equal(t, []host.StatusUpdate{{OrderID: 42, Status: want}}, orders.StatusUpdates())

			meta, ok := orders.MetaValue(42, host.MetaChipInStatus)
			require.True(t, ok)
			require.Equal(t, order.OutcomeSuccess, meta)

			rec, err := txs.FindByOrder(context.Background(), 42)
			require.NoError(t, err)
			require.Equal(t, transaction.StatusSuccess, rec.Status)
		})
	}
}

func TestMarkPaidTwiceProjectsOnce(t *testing.T) {
	s, orders, _ := newSettler()
	seedOrder(orders, 42, "digital")

	_, err := s.MarkPaid(context.Background(), 42)
	require.NoError(t, err)
	res, err := s.MarkPaid(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, res.Projected)
	require.Len(t, orders.StatusUpdates(), 1)
}

func TestMarkCancelled(t *testing.T) {
	s, orders, txs := newSettler()
	seedOrder(orders, 7, "digital")

	res, err := s.MarkCancelled(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, res.Projected)
	require.Equal(t, []host.StatusUpdate{{OrderID: 7, Status: host.StatusCancelled}}, orders.StatusUpdates())
	rec, err := txs.FindByOrder(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, transaction.StatusCancelled, rec.Status)
}

func TestMarkCancelledAfterPaidIsIgnored(t *testing.T) {
	s, orders, _ := newSettler()
	seedOrder(orders, 7, "digital")

	_, err := s.MarkPaid(context.Background(), 7)
	require.NoError(t, err)
	res, err := s.MarkCancelled(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, res.Projected)
	require.Len(t, orders.StatusUpdates(), 1)
}

func TestMarkPaidUnknownOrder(t *testing.T) {
	s, orders, txs := newSettler()

	_, err := s.MarkPaid(context.Background(), 99)
	require.ErrorIs(t, err, host.ErrOrderNotFound)
	require.Empty(t, orders.StatusUpdates())
	require.Zero(t, txs.Len())
}

func TestMarkPaidRetrySettlesAfterStatusWriteFails(t *testing.T) {
	mem := host.NewMemoryStore()
	orders := &flakyOrders{MemoryStore: mem, failStatus: 1}
	txs := transaction.NewMemoryStore()
	s := order.Settler{Orders: orders, Transactions: txs, Projector: order.Projector{Orders: orders}}
	seedOrder(mem, 42, "digital")
	ctx := context.Background()

	_, err := s.MarkPaid(ctx, 42)
	require.ErrorContains(t, err, "connection reset")
	rec, err := txs.FindByOrder(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, transaction.StatusPending, rec.Status)

	res, err := s.MarkPaid(ctx, 42)
	require.NoError(t, err)
	require.True(t, res.Projected)
	require.Equal(t, []host.StatusUpdate{{OrderID: 42, Status: host.StatusCompleted}}, mem.StatusUpdates())
	ord, err := mem.GetOrder(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, host.StatusCompleted, ord.Status)

	rec, err = txs.FindByOrder(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, transaction.StatusSuccess, rec.Status)
}

func TestMarkCancelledRetrySettlesAfterMetaWriteFails(t *testing.T) {
	mem := host.NewMemoryStore()
	orders := &flakyOrders{MemoryStore: mem, failMeta: 1}
	txs := transaction.NewMemoryStore()
	s := order.Settler{Orders: orders, Transactions: txs, Projector: order.Projector{Orders: orders}}
	seedOrder(mem, 7, "physical")
	ctx := context.Background()

	_, err := s.MarkCancelled(ctx, 7)
	require.Error(t, err)
	require.Empty(t, mem.StatusUpdates())

	res, err := s.MarkCancelled(ctx, 7)
	require.NoError(t, err)
	require.True(t, res.Projected)
	require.Equal(t, []host.StatusUpdate{{OrderID: 7, Status: host.StatusCancelled}}, mem.StatusUpdates())
	meta, ok := mem.MetaValue(7, host.MetaChipInStatus)
	require.True(t, ok)
	require.Equal(t, order.OutcomeCancelled, meta)
}
