package inbound

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/sejoli-chipin/internal/common"
	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/obs"
	"github.com/noah-isme/sejoli-chipin/internal/order"
)

// ThankYouURL is where the browser lands after a redirect notification.
func ThankYouURL(site string, orderID int64, success bool) string {
	status := "failure"
	if success {
		status = "success"
	}
	q := url.Values{"order_id": {strconv.FormatInt(orderID, 10)}, "status": {status}}
	return strings.TrimRight(site, "/") + "/checkout/thank-you?" + q.Encode()
}

func (rt *Router) redirect(w http.ResponseWriter, r *http.Request) {
	const action = string(ActionRedirect)
	orderID, ok := common.ParseID(r.URL.Query().Get("order_id"))
	if !ok {
		obs.IncNotification(action, "ignored")
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order_id is required", nil)
		return
	}
	if rt.Settler == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement not configured", nil)
		return
	}
	success := r.URL.Query().Get("success") == "1"

	var (
		res order.Result
		err error
	)
	if success {
		res, err = rt.Settler.MarkPaid(r.Context(), orderID)
	} else {
		res, err = rt.Settler.MarkCancelled(r.Context(), orderID)
	}
	switch {
	case errors.Is(err, host.ErrOrderNotFound):
		obs.IncNotification(action, "unknown_order")
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	case err != nil:
		obs.IncNotification(action, "error")
		rt.Logger.Error().Err(err).Int64("order_id", orderID).Bool("success", success).Msg("chipin_redirect_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	obs.IncNotification(action, "ok")
	rt.Logger.Info().Int64("order_id", orderID).Bool("success", success).Str("status", string(res.Status)).Bool("projected", res.Projected).Msg("chipin_redirect")
	http.Redirect(w, r, ThankYouURL(rt.SiteURL, orderID, success), http.StatusFound)
}
