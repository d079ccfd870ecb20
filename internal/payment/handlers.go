package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/common"
	"github.com/noah-isme/sejoli-chipin/internal/host"
)

// PurchaseFetcher reads a purchase from the gateway.
type PurchaseFetcher interface {
	GetPurchase(ctx context.Context, id string) (chipin.Purchase, error)
}

// KeySource returns the provider's public key.
type KeySource interface {
	PublicKey(ctx context.Context) (string, error)
}

// Handler exposes the payment method hooks to the host platform.
type Handler struct {
	Method    Method
	Orders    host.Store
	Purchases PurchaseFetcher
	Keys      KeySource
}

// Routes mounts the host-facing endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/payment/options", h.PaymentOptions)
	r.Post("/payment/meta", h.OrderMeta)
	r.Get("/payment/info", h.PaymentInfo)
	r.Get("/payment/purchases/{purchaseId}", h.Purchase)
	r.Get("/payment/public-key", h.PublicKey)
	r.Get("/orders/{orderId}/payment-instruction", h.Instruction)
}

// PaymentOptions lists the options this method contributes.
func (h *Handler) PaymentOptions(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Method.Options(nil)})
}

type metaReq struct {
	Meta    map[string]any `json:"meta"`
	Order   OrderData      `json:"order"`
	Subtype string         `json:"subtype"`
}

// OrderMeta returns the order meta extended with the chip-in block.
func (h *Handler) OrderMeta(w http.ResponseWriter, r *http.Request) {
	var req metaReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Method.MetaData(req.Meta, req.Order, req.Subtype)})
}

// PaymentInfo returns the payment summary stored on Chip In orders.
func (h *Handler) PaymentInfo(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Method.PaymentInfo()})
}

// Instruction renders the payment instruction for an order.
func (h *Handler) Instruction(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	orderID, ok := common.ParseID(chi.URLParam(r, "orderId"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid orderId", nil)
		return
	}
	o, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, host.ErrOrderNotFound) {
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	media := strings.ToLower(strings.TrimSpace(q.Get("media")))
	var content string
	if q.Get("simple") == "1" || q.Get("simple") == "true" {
		content = h.Method.SimpleInstruction(o)
	} else {
		content, err = h.Method.Instruction(o, media)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"orderId": o.IDString(), "media": media, "content": content}})
}

// Purchase proxies a purchase lookup to the gateway.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	if h.Purchases == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "gateway unavailable", nil)
		return
	}
	p, err := h.Purchases.GetPurchase(r.Context(), chi.URLParam(r, "purchaseId"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// PublicKey returns the key the provider signs callbacks with.
func (h *Handler) PublicKey(w http.ResponseWriter, r *http.Request) {
	if h.Keys == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "gateway unavailable", nil)
		return
	}
	key, err := h.Keys.PublicKey(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]string{"publicKey": key}})
}

func writeGatewayError(w http.ResponseWriter, err error) {
	var gwErr *chipin.GatewayError
	switch {
	case errors.Is(err, chipin.ErrNotConfigured):
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "gateway credentials missing", nil)
	case errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound:
		common.JSONError(w, http.StatusNotFound, "PURCHASE_NOT_FOUND", "purchase not found", nil)
	case errors.As(err, &gwErr):
		common.JSONError(w, http.StatusBadGateway, "GATEWAY_ERROR", gwErr.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusGatewayTimeout, "GATEWAY_TIMEOUT", "gateway timed out", nil)
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	}
}
