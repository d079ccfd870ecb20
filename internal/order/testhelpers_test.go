package order_test

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sejoli-chipin/internal/events"
	"github.com/noah-isme/sejoli-chipin/internal/host"
)

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
	last   map[string]any
}

func (c *captureEmitter) Emit(_ context.Context, topic string, aggregateID string, payload any) (events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	if m, ok := payload.(map[string]any); ok {
		c.last = m
	}
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

func seedOrder(store *host.MemoryStore, id int64, productType string) host.Order {
	o := host.Order{
		ID:             id,
		Status:         host.StatusOnHold,
		ProductID:      3,
		Product:        host.Product{ID: 3, Name: "Kelas Online", Type: productType, Price: decimal.NewFromInt(10000)},
		User:           host.User{ID: 8, Email: "buyer@example.com"},
		Quantity:       1,
		GrandTotal:     decimal.NewFromInt(10000),
		PaymentGateway: host.PaymentGateway,
	}
	store.PutOrder(o)
	return o
}

// flakyOrders fails the first status or meta write it sees, then delegates.
type flakyOrders struct {
	*host.MemoryStore
	failStatus int
	failMeta   int
}

func (f *flakyOrders) UpdateOrderStatus(ctx context.Context, id int64, status host.OrderStatus) error {
	if f.failStatus > 0 {
		f.failStatus--
		return errors.New("db: connection reset")
	}
	return f.MemoryStore.UpdateOrderStatus(ctx, id, status)
}

func (f *flakyOrders) UpdateOrderMeta(ctx context.Context, id int64, key string, value any) error {
	if f.failMeta > 0 {
		f.failMeta--
		return errors.New("db: connection reset")
	}
	return f.MemoryStore.UpdateOrderMeta(ctx, id, key, value)
}
