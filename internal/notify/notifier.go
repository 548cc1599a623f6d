package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Notifier is the best-effort side channel. The pipeline never lets a Send
// failure change a committed state transition or a response code.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Message is a staged notification, built inside a handler and sent only
// after the handler's transaction commits.
type Message struct {
	ID      string
	To      string
	Subject string
	Body    string
}

func NewMessage(to, subject, body string) Message {
	return Message{
		ID:      uuid.NewString(),
		To:      to,
		Subject: subject,
		Body:    body,
	}
}

// LogNotifier writes the notification to the log instead of sending it.
// Default when no SMTP transport is configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	logrus.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info("notification (log only)")
	return nil
}

// SMTPNotifier delivers through a plain SMTP relay.
type SMTPNotifier struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPNotifier(addr, from, username, password string) *SMTPNotifier {
	n := &SMTPNotifier{addr: addr, from: from}
	if username != "" {
		host := addr
		if i := strings.IndexByte(addr, ':'); i >= 0 {
			host = addr[:i]
		}
		n.auth = smtp.PlainAuth("", username, password, host)
	}
	return n
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.from, to, subject, body)
	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// WithTimeout bounds every Send. Exceeding the deadline counts as a notifier
// failure, it never hangs the pipeline.
func WithTimeout(next Notifier, timeout time.Duration) Notifier {
	return &timeoutNotifier{next: next, timeout: timeout}
}

type timeoutNotifier struct {
	next    Notifier
	timeout time.Duration
}

func (t *timeoutNotifier) Send(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.next.Send(ctx, to, subject, body)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notifier send timed out after %s", t.timeout)
	}
}
