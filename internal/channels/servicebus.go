package channels

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/internal/models"
)

// queueTransport is the subset of the Service Bus sender the channel
// implementations need.
type queueTransport interface {
	Send(ctx context.Context, body interface{}) error
}

// QueueSender delivers messages by enqueuing them for an external bridge
// process (Gmail relay, Baileys bridge). Enqueue failures are transient: the
// broker being unreachable is a network condition, not a bad recipient.
type QueueSender struct {
	channel string
	queue   queueTransport
}

// NewQueueSender builds a sender for one channel backed by one queue.
func NewQueueSender(channel string, queue queueTransport) *QueueSender {
	return &QueueSender{channel: channel, queue: queue}
}

func (s *QueueSender) Channel() string { return s.channel }

// Send validates the recipient and enqueues the delivery. The returned id is
// generated here; the bridge carries it through for correlation.
func (s *QueueSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.Recipient == "" {
		return "", models.NewPermanentChannelError(s.channel, errors.New("empty recipient"))
	}

	messageID := uuid.New().String()
	envelope := struct {
		MessageID string `json:"message_id"`
		Channel   string `json:"channel"`
		Message
	}{MessageID: messageID, Channel: s.channel, Message: msg}

	if err := s.queue.Send(ctx, envelope); err != nil {
		return "", models.NewTransientChannelError(s.channel, err)
	}

	log.Debug().
		Str("channel", s.channel).
		Str("message_id", messageID).
		Msg("delivery enqueued")
	return messageID, nil
}

// QueueCalendar implements the calendar contract over the calendar-sync
// queue. Event refs are generated locally and carried by the sync worker,
// which keeps CreateEvent idempotent per booking.
type QueueCalendar struct {
	queue queueTransport
}

// NewQueueCalendar builds the queue-backed calendar connector.
func NewQueueCalendar(queue queueTransport) *QueueCalendar {
	return &QueueCalendar{queue: queue}
}

type calendarOp struct {
	Op           string    `json:"op"`
	EventRef     string    `json:"event_ref"`
	BookingID    string    `json:"booking_id,omitempty"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	StartsAt     time.Time `json:"starts_at,omitempty"`
	EndsAt       time.Time `json:"ends_at,omitempty"`
}

// CreateEvent enqueues event creation and returns the event ref.
func (c *QueueCalendar) CreateEvent(ctx context.Context, booking *models.Booking, contactName, contactEmail string) (string, error) {
	ref := "evt_" + booking.ID.String()
	op := calendarOp{
		Op:           "create",
		EventRef:     ref,
		BookingID:    booking.ID.String(),
		ContactName:  contactName,
		ContactEmail: contactEmail,
		StartsAt:     booking.StartsAt,
		EndsAt:       booking.EndsAt,
	}
	if err := c.queue.Send(ctx, op); err != nil {
		return "", models.NewTransientChannelError("calendar", err)
	}
	return ref, nil
}

// DeleteEvent enqueues event deletion.
func (c *QueueCalendar) DeleteEvent(ctx context.Context, eventRef string) error {
	if err := c.queue.Send(ctx, calendarOp{Op: "delete", EventRef: eventRef}); err != nil {
		return models.NewTransientChannelError("calendar", err)
	}
	return nil
}
