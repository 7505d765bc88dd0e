package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/config"
	"example.com/careops/services/automation/internal/models"
)

// EventBus carries domain events from the API process to the worker over an
// Azure Service Bus queue. Publishing is best-effort relative to the
// triggering request: callers log and continue when a publish fails.
type EventBus struct {
	client *azservicebus.Client
	sender *azservicebus.Sender
	queue  string
}

// NewEventBus creates the event bus on the configured event queue.
func NewEventBus(cfg config.AzureConfig) (*EventBus, error) {
	if cfg.ConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}
	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}
	sender, err := client.NewSender(cfg.EventQueue, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}
	return &EventBus{client: client, sender: sender, queue: cfg.EventQueue}, nil
}

// Publish enqueues one domain event.
func (b *EventBus) Publish(ctx context.Context, event models.DomainEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal domain event")
	}
	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"trigger":      string(event.Trigger),
			"workspace_id": event.WorkspaceID.String(),
			"occurred_at":  event.OccurredAt.UTC().Format(time.RFC3339),
		},
	}
	return b.sender.SendMessage(ctx, msg, nil)
}

// EventHandler processes one decoded domain event.
type EventHandler func(ctx context.Context, event models.DomainEvent) error

// ProcessMessages consumes the event queue until ctx is cancelled. Handler
// errors abandon the message for redelivery; malformed bodies are
// dead-lettered so they do not loop forever.
func (b *EventBus) ProcessMessages(ctx context.Context, handler EventHandler) error {
	receiver, err := b.client.NewReceiverForQueue(b.queue, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer receiver.Close(context.Background())

	for {
		if ctx.Err() != nil {
			return nil
		}
		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive messages")
		}

		for _, msg := range messages {
			var event models.DomainEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				log.Error().Err(err).Str("message_id", msg.MessageID).Msg("Dead-lettering malformed event")
				_ = receiver.DeadLetterMessage(ctx, msg, nil)
				continue
			}

			if err := handler(ctx, event); err != nil {
				log.Error().Err(err).
					Str("trigger", string(event.Trigger)).
					Str("workspace_id", event.WorkspaceID.String()).
					Msg("Event handler failed, abandoning message")
				_ = receiver.AbandonMessage(ctx, msg, nil)
				continue
			}
			if err := receiver.CompleteMessage(ctx, msg, nil); err != nil {
				log.Warn().Err(err).Str("message_id", msg.MessageID).Msg("Failed to complete message")
			}
		}
	}
}

// Close closes the bus.
func (b *EventBus) Close() error {
	if b.sender != nil {
		if err := b.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if b.client != nil {
		return b.client.Close(context.Background())
	}
	return nil
}

// QueueSender sends opaque payloads to one named queue. The outbound channel
// senders use it to hand deliveries to the external bridge processes.
type QueueSender struct {
	sender *azservicebus.Sender
	queue  string
}

// NewQueueSender creates a sender for the named queue on a shared client.
func NewQueueSender(client *azservicebus.Client, queue string) (*QueueSender, error) {
	sender, err := client.NewSender(queue, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create sender for queue %s", queue)
	}
	return &QueueSender{sender: sender, queue: queue}, nil
}

// NewClient creates a bare Service Bus client for queue senders.
func NewClient(cfg config.AzureConfig) (*azservicebus.Client, error) {
	if cfg.ConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}
	return azservicebus.NewClientFromConnectionString(cfg.ConnStr, nil)
}

// Send marshals body to JSON and enqueues it.
func (s *QueueSender) Send(ctx context.Context, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}
	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"queued_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	return s.sender.SendMessage(ctx, msg, nil)
}

// Queue returns the queue name.
func (s *QueueSender) Queue() string { return s.queue }

// Close closes the sender.
func (s *QueueSender) Close() error {
	if s.sender != nil {
		return s.sender.Close(context.Background())
	}
	return nil
}
