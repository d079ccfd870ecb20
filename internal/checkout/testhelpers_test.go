package checkout_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sejoli-chipin/internal/checkout"
	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/events"
	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/transaction"
)

const site = "https://shop.example.com"

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu    sync.Mutex
	calls atomic.Int32
	last  chipin.Purchase
	err   error
	delay time.Duration
}

func (g *fakeGateway) CreatePurchase(_ context.Context, p chipin.Purchase) (chipin.Purchase, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	g.last = p
	g.mu.Unlock()
	if g.err != nil {
		return chipin.Purchase{}, g.err
	}
	out := p
	out.ID = "pur-" + p.Reference
	out.Status = "created"
	out.CheckoutURL = "https://gate.chip-in.asia/p/pur-" + p.Reference + "/"
	out.InvoiceURL = "https://gate.chip-in.asia/invoice/pur-" + p.Reference
	return out, nil
}

func (g *fakeGateway) lastPurchase() chipin.Purchase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

type recordingScheduler struct {
	mu       sync.Mutex
	purchase []string
}

func (s *recordingScheduler) SchedulePurchase(_ context.Context, _ int64, purchaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchase = append(s.purchase, purchaseID)
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (e *recordingEmitter) Emit(_ context.Context, topic string, aggregateID string, _ any) (events.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.topics = append(e.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

type fixture struct {
	svc       *checkout.Service
	orders    *host.MemoryStore
	txs       *transaction.MemoryStore
	gateway   *fakeGateway
	scheduler *recordingScheduler
	emitter   *recordingEmitter
}

func newFixture() *fixture {
	f := &fixture{
		orders:    host.NewMemoryStore(),
		txs:       transaction.NewMemoryStore(),
		gateway:   &fakeGateway{},
		scheduler: &recordingScheduler{},
		emitter:   &recordingEmitter{},
	}
	f.svc = &checkout.Service{
		Transactions: f.txs,
		Orders:       f.orders,
		Gateway:      f.gateway,
		Credentials:  chipin.Credentials{Mode: chipin.ModeSandbox, BrandID: "brand-1", SecretKey: "secret-1"},
		Options:      checkout.Options{SiteURL: site, Currency: "MYR", TimeZone: "Asia/Kuala_Lumpur", DueMinutes: 60},
		Reconcile:    f.scheduler,
		Events:       f.emitter,
		Logger:       zerolog.Nop(),
		Now:          func() time.Time { return fixedNow },
	}
	return f
}

func digitalOrder(id int64, total int64) host.Order {
	return host.Order{
		ID:             id,
		Status:         host.StatusOnHold,
		ProductID:      5,
		Product:        host.Product{ID: 5, Name: "Ebook Bisnis", Type: "digital", Price: decimal.NewFromInt(total)},
		UserID:         9,
		User:           host.User{ID: 9, DisplayName: "Siti", Email: "siti@example.com", Phone: "0812", Address: "Jl. Merdeka 1", Destination: 77},
		Quantity:       1,
		GrandTotal:     decimal.NewFromInt(total),
		PaymentGateway: host.PaymentGateway,
	}
}
