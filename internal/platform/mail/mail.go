// Package mail sends transactional email off the request path. Messages are
// queued and delivered by a background worker; a mutation never waits on, or
// fails because of, SMTP.
package mail

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message synchronously. Implementations are used
// by the Dispatcher worker, not by request handlers.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender delivers mail through an SMTP relay using gomail.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender creates a sender for the given relay.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPSender) Send(msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.Body)
	return s.dialer.DialAndSend(m)
}

const (
	maxAttempts = 4
	baseBackoff = 2 * time.Second
)

// Dispatcher queues messages and delivers them with bounded retries. Each
// failed attempt backs off exponentially with jitter before the next try;
// after maxAttempts the message is dropped with a log line.
type Dispatcher struct {
	sender  Sender
	queue   chan Message
	logger  zerolog.Logger
	backoff time.Duration
}

// NewDispatcher creates a dispatcher with a bounded queue. Run must be
// started for messages to flow.
func NewDispatcher(sender Sender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan Message, 1024),
		logger:  logger,
		backoff: baseBackoff,
	}
}

// Enqueue hands a message to the worker without blocking. When the queue is
// full the message is dropped; email is best-effort by contract.
func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail queue full, dropping message")
	}
}

// Run drains the queue until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = d.sender.Send(msg); err == nil {
			d.logger.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail sent")
			return
		}

		if attempt == maxAttempts {
			break
		}
		backoff := d.backoff << (attempt - 1)
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}

	d.logger.Error().Err(err).Str("to", msg.To).Str("subject", msg.Subject).
		Int("attempts", maxAttempts).Msg("mail delivery failed, dropping message")
}
