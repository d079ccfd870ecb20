package checkout

import (
	"errors"
	"net/http"

	"github.com/noah-isme/sejoli-chipin/internal/common"
	"github.com/noah-isme/sejoli-chipin/internal/host"
)

// Handler serves the host thank-you page for Chip In orders.
type Handler struct {
	Svc *Service
}

// ThankYou sends on-hold orders to the gateway checkout and renders a status
// page for everything else.
func (h *Handler) ThankYou(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	orderID, ok := common.ParseID(r.URL.Query().Get("order_id"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order_id is required", nil)
		return
	}
	ctx := r.Context()
	order, err := h.Svc.Orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, host.ErrOrderNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		h.Svc.Logger.Error().Err(err).Int64("order_id", orderID).Msg("chipin_order_lookup_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	if !order.PaidViaChipIn() {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not paid via chip-in", nil)
		return
	}

	data := pageData{Name: order.User.DisplayName, OrderID: order.IDString()}
	switch order.Status {
	case host.StatusOnHold:
		link, err := h.Svc.ResolveRedirect(ctx, order)
		switch {
		case err == nil:
			http.Redirect(w, r, link, http.StatusFound)
		case errors.Is(err, ErrConfigurationMissing):
			renderPage(w, http.StatusServiceUnavailable, PageUnavailable, data)
		default:
			h.Svc.Logger.Error().Err(err).Int64("order_id", order.ID).Msg("chipin_redirect_failed")
			renderPage(w, http.StatusBadGateway, PageUnavailable, data)
		}
	case host.StatusRefunded, host.StatusCancelled:
		renderPage(w, http.StatusOK, PageCancelled, data)
	case host.StatusCompleted:
		renderPage(w, http.StatusOK, PageCompleted, data)
	default:
		renderPage(w, http.StatusOK, PageProcessed, data)
	}
}
