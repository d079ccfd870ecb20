package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sejoli-chipin/internal/events"
	"github.com/noah-isme/sejoli-chipin/internal/notify"
)

func TestEmailNotifierMailsCompletedOrder(t *testing.T) {
	outbox := &notify.Outbox{}
	n := notify.EmailNotifier{Mail: outbox, Enabled: true, From: "shop@example.com"}

	err := n.Notify(context.Background(), events.Event{
		Topic:      events.TopicOrderStatusUpdated,
		Payload:    []byte(`{"orderId":"42","status":"completed","email":" buyer@example.com ","grandTotal":"150000"}`),
		OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	sent := outbox.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "buyer@example.com", sent[0].To)
	require.Equal(t, "shop@example.com", sent[0].From)
	require.Equal(t, "Pesanan #42 selesai", sent[0].Subject)
	require.Contains(t, sent[0].HTML, "<strong>42</strong>")
	require.Contains(t, sent[0].HTML, "Total: 150000")
	require.Contains(t, sent[0].HTML, "02 Jan 2024")
}

func TestEmailNotifierEscapesCheckoutLink(t *testing.T) {
	outbox := &notify.Outbox{}
	n := notify.EmailNotifier{Mail: outbox, Enabled: true}

	err := n.Notify(context.Background(), events.Event{
		Topic:   events.TopicPurchaseCreated,
		Payload: []byte(`{"orderId":"7","email":"b@example.com","checkoutUrl":"javascript:alert(1)"}`),
	})
	require.NoError(t, err)

	sent := outbox.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "Tagihan Chip In untuk pesanan #7", sent[0].Subject)
	require.NotContains(t, sent[0].HTML, "javascript:")
}

func TestEmailNotifierSkips(t *testing.T) {
	outbox := &notify.Outbox{}
	ctx := context.Background()
	ev := events.Event{Topic: events.TopicPurchaseCreated, Payload: []byte(`{"email":"buyer@example.com"}`)}

	require.NoError(t, notify.EmailNotifier{Mail: outbox}.Notify(ctx, ev))
	muted := notify.EmailNotifier{Mail: outbox, Enabled: true, Muted: map[string]bool{events.TopicPurchaseCreated: true}}
	require.NoError(t, muted.Notify(ctx, ev))
	noRecipient := events.Event{Topic: events.TopicPurchaseCreated, Payload: []byte(`{}`)}
	require.NoError(t, notify.EmailNotifier{Mail: outbox, Enabled: true}.Notify(ctx, noRecipient))
	require.Empty(t, outbox.Sent())

	err := notify.EmailNotifier{Mail: outbox, Enabled: true}.Notify(ctx, events.Event{Payload: []byte(`nope`)})
	require.Error(t, err)
}
