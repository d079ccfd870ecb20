package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/noah-isme/sejoli-chipin/internal/events"
	"github.com/noah-isme/sejoli-chipin/internal/host"
)

// EmailNotifier mails the buyer when a Chip In purchase is opened for their
// order or when the order status moves because of a payment.
type EmailNotifier struct {
	Mail    Mailer
	Enabled bool
	From    string
	// Muted topics are persisted but never mailed.
	Muted map[string]bool
}

// orderMail is the union of the payloads emitted by checkout and the
// status projector.
type orderMail struct {
	OrderID     string `json:"orderId"`
	Email       string `json:"email"`
	Status      string `json:"status"`
	Previous    string `json:"previous"`
	CheckoutURL string `json:"checkoutUrl"`
	GrandTotal  string `json:"grandTotal"`
}

var mailBody = template.Must(template.New("mail").Parse(`<p>{{.Headline}}</p>
<p>ID Pesanan: <strong>{{.OrderID}}</strong></p>
{{- if .Status}}
<p>Status: {{.Status}}</p>
{{- end}}
{{- if .GrandTotal}}
<p>Total: {{.GrandTotal}}</p>
{{- end}}
{{- if .CheckoutURL}}
<p><a href="{{.CheckoutURL}}">Lanjutkan pembayaran</a></p>
{{- end}}
<p><small>{{.When}}</small></p>
`))

// Notify implements events.Notifier.
func (n EmailNotifier) Notify(ctx context.Context, event events.Event) error {
	if !n.Enabled || n.Mail == nil || n.Muted[event.Topic] {
		return nil
	}
	var m orderMail
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &m); err != nil {
			return fmt.Errorf("notify: decode %s payload: %w", event.Topic, err)
		}
	}
	m.Email = strings.TrimSpace(m.Email)
	if m.Email == "" {
		return nil
	}

	subject, headline := wording(event.Topic, m)
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	var buf bytes.Buffer
	err := mailBody.Execute(&buf, struct {
		orderMail
		Headline string
		When     string
	}{m, headline, occurred.Format("02 Jan 2006 15:04 MST")})
	if err != nil {
		return fmt.Errorf("notify: render: %w", err)
	}
	return n.Mail.Send(ctx, Message{From: n.From, To: m.Email, Subject: subject, HTML: buf.String()})
}

func wording(topic string, m orderMail) (subject, headline string) {
	if topic == events.TopicPurchaseCreated {
		return "Tagihan Chip In untuk pesanan #" + m.OrderID, "Tagihan pembayaran Chip In sudah dibuat."
	}
	switch host.OrderStatus(m.Status) {
	case host.StatusCompleted:
		return "Pesanan #" + m.OrderID + " selesai", "Pembayaran diterima dan pesanan selesai."
	case host.StatusInProgress:
		return "Pembayaran pesanan #" + m.OrderID + " diterima", "Pembayaran diterima, pesanan sedang diproses."
	case host.StatusCancelled:
		return "Pesanan #" + m.OrderID + " dibatalkan", "Pembayaran tidak berhasil dan pesanan dibatalkan."
	case host.StatusRefunded:
		return "Dana pesanan #" + m.OrderID + " dikembalikan", "Pembayaran pesanan telah dikembalikan."
	}
	return "Status pesanan #" + m.OrderID + " diperbarui", "Status pesanan diperbarui."
}
