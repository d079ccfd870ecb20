package inbound_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/inbound"
	"github.com/noah-isme/sejoli-chipin/internal/order"
	"github.com/noah-isme/sejoli-chipin/internal/transaction"
)

const site = "https://shop.example.com"

type keyPair struct {
	key    *rsa.PrivateKey
	pubPEM string
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return keyPair{key: key, pubPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))}
}

func (k keyPair) sign(t *testing.T, body []byte) string {
	t.Helper()
	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

type staticKey struct {
	pem   string
	calls int
}

func (s *staticKey) PublicKey(context.Context) (string, error) {
	s.calls++
	return s.pem, nil
}

type env struct {
	router *inbound.Router
	orders *host.MemoryStore
	txs    *transaction.MemoryStore
	keys   keyPair
	redis  *miniredis.Miniredis
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	orders := host.NewMemoryStore()
	txs := transaction.NewMemoryStore()
	settler := order.Settler{
		Orders:       orders,
		Transactions: txs,
		Projector:    order.Projector{Orders: orders, Logger: zerolog.Nop()},
		Logger:       zerolog.Nop(),
	}
	keys := newKeyPair(t)
	return &env{
		router: &inbound.Router{
			Settler:    settler,
			WebhookKey: keys.pubPEM,
			Replay:     rdb,
			ReplayTTL:  time.Hour,
			SiteURL:    site,
			MaxBody:    1 << 16,
			Logger:     zerolog.Nop(),
		},
		orders: orders,
		txs:    txs,
		keys:   keys,
		redis:  mr,
	}
}

func (e *env) seed(id int64, productType string) host.Order {
	o := host.Order{
		ID:             id,
		Status:         host.StatusOnHold,
		ProductID:      4,
		Product:        host.Product{ID: 4, Name: "Membership", Type: productType, Price: decimal.NewFromInt(10000)},
		User:           host.User{ID: 2, DisplayName: "Rina", Email: "rina@example.com"},
		Quantity:       1,
		GrandTotal:     decimal.NewFromInt(10000),
		PaymentGateway: host.PaymentGateway,
	}
	e.orders.PutOrder(o)
	return o
}
