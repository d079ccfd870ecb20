package chipin_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *chipin.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	creds := chipin.Credentials{Mode: chipin.ModeSandbox, BrandID: "brand-1", SecretKey: "sk-1", Endpoint: srv.URL + "/api/v1"}
	return chipin.NewClient(creds, resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1})
}

func samplePurchase() chipin.Purchase {
	total := int64(1000000)
	return chipin.Purchase{
		Client: chipin.ClientDetails{Email: "buyer@example.com", FullName: "Buyer"},
		Purchase: chipin.PurchaseDetails{
			Currency:         "MYR",
			Products:         []chipin.Product{{Name: "Ebook", Quantity: "1", Price: 1000000}},
			SubtotalOverride: &total,
			TotalOverride:    &total,
		},
		Reference:       "42",
		SuccessRedirect: "https://shop.example.com/chip-in/redirect?order_id=42&success=1",
	}
}

func TestCreatePurchaseSendsBrandAndBearer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/purchases/", r.URL.Path)
		require.Equal(t, "Bearer sk-1", r.Header.Get("Authorization"))

		var got chipin.Purchase
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.Equal(t, "brand-1", got.BrandID)
		require.Equal(t, "42", got.Reference)
		require.Equal(t, int64(1000000), *got.Purchase.TotalOverride)

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"p-1","brand_id":"brand-1","checkout_url":"https://gate.example/p/p-1/","invoice_url":"https://gate.example/i/p-1/"}`)
	})

	out, err := client.CreatePurchase(context.Background(), samplePurchase())
	require.NoError(t, err)
	require.Equal(t, "p-1", out.ID)
	require.Equal(t, "https://gate.example/p/p-1/", out.CheckoutURL)
}

func TestCreatePurchaseRequiresCredentials(t *testing.T) {
	client := chipin.NewClient(chipin.Credentials{Mode: chipin.ModeLive}, resilience.HTTPClient{})
	_, err := client.CreatePurchase(context.Background(), samplePurchase())
	require.ErrorIs(t, err, chipin.ErrNotConfigured)
}

func TestCreatePurchaseRejectsInvalidPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider must not be called for an invalid payload")
	})
	p := samplePurchase()
	p.Client.Email = "not-an-email"

	_, err := client.CreatePurchase(context.Background(), p)
	require.Error(t, err)
}

func TestCreatePurchaseForwardsBuyerWithoutEmail(t *testing.T) {
	var called atomic.Bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
		var got chipin.Purchase
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.Empty(t, got.Client.Email)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"p-2","checkout_url":"https://gate.example/p/p-2/"}`)
	})
	p := samplePurchase()
	p.Client.Email = ""

	out, err := client.CreatePurchase(context.Background(), p)
	require.NoError(t, err)
	require.True(t, called.Load())
	require.Equal(t, "p-2", out.ID)
}

func TestCreatePurchaseSurfacesProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"brand_id":["Invalid brand"]}`)
	})

	_, err := client.CreatePurchase(context.Background(), samplePurchase())
	var gwErr *chipin.GatewayError
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	require.Contains(t, gwErr.Body, "Invalid brand")
}

func TestGetPurchase(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/purchases/p-9/", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"p-9","status":"paid","reference":"42"}`)
	})

	out, err := client.GetPurchase(context.Background(), "p-9")
	require.NoError(t, err)
	require.Equal(t, chipin.PurchaseStatusPaid, out.Status)
	require.Equal(t, "42", out.Reference)
}

func TestPublicKeyDecodesJSONString(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/public_key/", r.URL.Path)
		_, _ = io.WriteString(w, `"-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----"`)
	})

	key, err := client.PublicKey(context.Background())
	require.NoError(t, err)
	require.Contains(t, key, "BEGIN PUBLIC KEY")
}
