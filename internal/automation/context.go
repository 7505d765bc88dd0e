package automation

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"example.com/careops/services/automation/internal/models"
)

// Payload keys prefixed with "_" are plumbing for the engine itself and are
// excluded from template interpolation and from persisted trigger payloads.
const (
	payloadKeyReminder = "_is_reminder"
)

// BookingPayload builds the template context for booking lifecycle events.
// Every booking trigger supplies the same fixed field set.
func BookingPayload(b *models.Booking, c *models.Contact) map[string]string {
	payload := map[string]string{
		"booking_id":   b.ID.String(),
		"booking_date": b.StartsAt.UTC().Format("January 2, 2006"),
		"booking_time": b.StartsAt.UTC().Format("3:04 PM"),
	}
	if c != nil {
		payload["contact_id"] = c.ID.String()
		payload["contact_name"] = c.FullName
		payload["contact_email"] = c.Email
		payload["contact_phone"] = c.Phone
	}
	return payload
}

// ContactPayload builds the context for contact-centric events such as
// new_lead and message_received.
func ContactPayload(c *models.Contact) map[string]string {
	return map[string]string{
		"contact_id":    c.ID.String(),
		"contact_name":  c.FullName,
		"contact_email": c.Email,
		"contact_phone": c.Phone,
	}
}

// InventoryPayload builds the context for inventory_low events.
func InventoryPayload(item *models.InventoryItem) map[string]string {
	return map[string]string{
		"item_id":   item.ID.String(),
		"item_name": item.Name,
		"quantity":  strconv.Itoa(item.Quantity),
		"unit":      item.Unit,
	}
}

// FormPayload builds the context for form_submitted events.
func FormPayload(form *models.Form, c *models.Contact, publicBaseURL string) map[string]string {
	payload := map[string]string{
		"form_id":    form.ID.String(),
		"form_title": form.Title,
		"form_url":   publicBaseURL + "/f/" + form.ID.String(),
	}
	if c != nil {
		payload["contact_id"] = c.ID.String()
		payload["contact_name"] = c.FullName
		payload["contact_email"] = c.Email
		payload["contact_phone"] = c.Phone
	}
	return payload
}

// NewEvent assembles a domain event for dispatch.
func NewEvent(trigger models.Trigger, workspaceID uuid.UUID, payload map[string]string) models.DomainEvent {
	return models.DomainEvent{
		Trigger:     trigger,
		WorkspaceID: workspaceID,
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}
}

// MarkReminder flags the event payload as a reminder pass so reminder-only
// rules fire.
func MarkReminder(payload map[string]string) map[string]string {
	payload[payloadKeyReminder] = "true"
	return payload
}

// IsReminderPass reports whether the payload carries the reminder marker.
func IsReminderPass(payload map[string]string) bool {
	return payload[payloadKeyReminder] == "true"
}

// CleanPayload strips internal keys before a payload is persisted in an
// automation log row.
func CleanPayload(payload map[string]string) map[string]string {
	clean := make(map[string]string, len(payload))
	for k, v := range payload {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		clean[k] = v
	}
	return clean
}
