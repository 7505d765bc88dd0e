// Package channels defines the narrow send-message contracts the action
// executor dispatches through. The real transports (Gmail, the WhatsApp
// bridge, Google Calendar) live outside this service; the concrete
// implementations here hand deliveries to them over Service Bus queues.
package channels

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"example.com/careops/services/automation/internal/models"
)

// Message is one outbound delivery. Subject is empty for channels without
// one.
type Message struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
}

// Sender delivers one message and returns a channel-assigned message id.
// Failures are *models.ChannelError, classified transient or permanent.
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) (string, error)
}

// CalendarConnector mirrors the external calendar contract.
type CalendarConnector interface {
	CreateEvent(ctx context.Context, booking *models.Booking, contactName, contactEmail string) (string, error)
	DeleteEvent(ctx context.Context, eventRef string) error
}

// timeoutSender bounds every Send with a deadline. A timeout is a transient
// failure eligible for retry.
type timeoutSender struct {
	inner   Sender
	timeout time.Duration
}

// WithTimeout wraps a sender with a per-call deadline. External APIs in the
// originating system could stall close to a minute, so the default ceiling
// is 60s.
func WithTimeout(inner Sender, timeout time.Duration) Sender {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &timeoutSender{inner: inner, timeout: timeout}
}

func (s *timeoutSender) Channel() string { return s.inner.Channel() }

func (s *timeoutSender) Send(ctx context.Context, msg Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.inner.Send(ctx, msg)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return "", models.NewTransientChannelError(s.inner.Channel(), err)
	}
	return id, err
}
