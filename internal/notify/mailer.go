package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Message is one outgoing buyer email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the request or component log. It is the
// default until an SMTP relay is configured for the host.
type LogMailer struct {
	Logger zerolog.Logger
}

func (l LogMailer) Send(ctx context.Context, msg Message) error {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &l.Logger
	}
	logger.Info().
		Str("from", msg.From).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("bytes", len(msg.HTML)).
		Msg("chipin_mail_outbound")
	return nil
}

// Outbox keeps messages in memory.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
}

func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	o.sent = append(o.sent, msg)
	o.mu.Unlock()
	return nil
}

// Sent returns a copy of everything delivered so far.
func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}
