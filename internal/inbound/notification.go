package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/common"
	"github.com/noah-isme/sejoli-chipin/internal/host"
	"github.com/noah-isme/sejoli-chipin/internal/obs"
	"github.com/noah-isme/sejoli-chipin/internal/security"
)

// Webhook event types the bridge acts on.
const (
	EventPurchasePaid           = "purchase.paid"
	EventPurchasePaymentFailure = "purchase.payment_failure"
	EventPurchaseCancelled      = "purchase.cancelled"
	EventPurchaseExpired        = "purchase.expired"
)

const replayPrefix = "wh:chipin:"

func (rt *Router) body(w http.ResponseWriter, r *http.Request, action string) ([]byte, bool) {
	var (
		body []byte
		err  error
	)
	if rt.MaxBody > 0 {
		body, err = security.ReadBody(r, rt.MaxBody)
	} else {
		body, err = security.RawBody(r)
	}
	switch {
	case errors.Is(err, security.ErrBodyTooLarge):
		obs.IncNotification(action, "too_large")
		common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
		return nil, false
	case err != nil:
		obs.IncNotification(action, "bad_body")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return nil, false
	}
	return body, true
}

// callback verifies the provider signature and records the result. It never
// changes order state; the webhook is the settling path.
func (rt *Router) callback(w http.ResponseWriter, r *http.Request) {
	const action = string(ActionCallback)
	body, ok := rt.body(w, r, action)
	if !ok {
		return
	}
	signature := r.Header.Get(chipin.SignatureHeader)
	key, err := rt.providerKey(r.Context())
	if err != nil {
		rt.Logger.Warn().Err(err).Msg("chipin_public_key_unavailable")
	}
	verifyErr := chipin.Verify(body, signature, key)
	verified := verifyErr == nil

	evt := rt.Logger.Info()
	if !verified {
		evt = rt.Logger.Warn().AnErr("reason", verifyErr)
	}
	evt.Bool("verified", verified).Msg("chipin_callback_verified")
	result := "verified"
	if !verified {
		result = "unverified"
	}
	obs.IncNotification(action, result)
	w.WriteHeader(http.StatusOK)
}

func (rt *Router) providerKey(ctx context.Context) (string, error) {
	if rt.ProviderKey == nil {
		return "", chipin.ErrPublicKeyMissing
	}
	return rt.ProviderKey.PublicKey(ctx)
}

// webhookKey prefers the locally configured key and falls back to the key
// published by the provider.
func (rt *Router) webhookKey(ctx context.Context) (string, error) {
	if strings.TrimSpace(rt.WebhookKey) != "" {
		return rt.WebhookKey, nil
	}
	return rt.providerKey(ctx)
}

func (rt *Router) webhook(w http.ResponseWriter, r *http.Request) {
	const action = string(ActionWebhook)
	signature := strings.TrimSpace(r.Header.Get(chipin.SignatureHeader))
	if signature == "" {
		obs.IncNotification(action, "unsigned")
		common.JSONError(w, http.StatusUnauthorized, "MISSING_SIGNATURE", "signature header required", nil)
		return
	}
	body, ok := rt.body(w, r, action)
	if !ok {
		return
	}
	ctx := r.Context()
	key, err := rt.webhookKey(ctx)
	if err != nil {
		obs.IncNotification(action, "error")
		rt.Logger.Error().Err(err).Msg("chipin_public_key_unavailable")
		common.JSONError(w, http.StatusServiceUnavailable, "KEY_UNAVAILABLE", "verification key unavailable", nil)
		return
	}
	if err := chipin.Verify(body, signature, key); err != nil {
		obs.IncNotification(action, "invalid_signature")
		rt.Logger.Warn().Err(err).Msg("chipin_webhook_rejected")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	var event chipin.Event
	if err := json.Unmarshal(body, &event); err != nil {
		obs.IncNotification(action, "bad_body")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "payload is not valid JSON", nil)
		return
	}
	rt.Logger.Info().Str("event_type", event.EventType).Str("purchase_id", event.ID).Str("reference", event.Reference).Bool("verified", true).Msg("chipin_webhook_event")

	replayKey := replayPrefix + common.Sha256Hex(body)
	if rt.Replay != nil && rt.ReplayTTL > 0 {
		fresh, err := rt.Replay.SetNX(ctx, replayKey, "1", rt.ReplayTTL).Result()
		if err != nil {
			obs.IncNotification(action, "error")
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay store unavailable", nil)
			return
		}
		if !fresh {
			obs.IncNotification(action, "replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}

	if err := rt.settle(ctx, event); err != nil {
		// let the provider retry the delivery
		if rt.Replay != nil && rt.ReplayTTL > 0 {
			_ = rt.Replay.Del(context.WithoutCancel(ctx), replayKey).Err()
		}
		obs.IncNotification(action, "error")
		rt.Logger.Error().Err(err).Str("event_type", event.EventType).Str("reference", event.Reference).Msg("chipin_webhook_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	obs.IncNotification(action, "ok")
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

// settle maps a verified event to a settlement call. Unknown events and
// unknown orders are acknowledged without change.
func (rt *Router) settle(ctx context.Context, event chipin.Event) error {
	var paid bool
	switch event.EventType {
	case EventPurchasePaid:
		paid = true
	case EventPurchasePaymentFailure, EventPurchaseCancelled, EventPurchaseExpired:
	default:
		return nil
	}
	if rt.Settler == nil {
		return errors.New("inbound: settlement not configured")
	}
	orderID, ok := common.ParseID(event.Reference)
	if !ok {
		rt.Logger.Warn().Str("reference", event.Reference).Msg("chipin_wrong_order")
		return nil
	}
	var err error
	if paid {
		_, err = rt.Settler.MarkPaid(ctx, orderID)
	} else {
		_, err = rt.Settler.MarkCancelled(ctx, orderID)
	}
	if errors.Is(err, host.ErrOrderNotFound) {
		return nil
	}
	return err
}
