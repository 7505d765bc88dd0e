package automation

import (
	"example.com/careops/services/automation/internal/models"
)

// DefaultRules returns the rule set seeded into every new workspace. Each is
// a normal editable rule after seeding; only the staff-reply pause notice is
// flagged as a system rule.
func DefaultRules() []models.AutomationRule {
	return []models.AutomationRule{
		{
			Name:    "Welcome New Lead",
			Trigger: models.TriggerNewLead,
			Action:  models.ActionSendEmail,
			Config: models.RuleConfig{
				Subject: "Thanks for reaching out!",
				Body:    "Hi {{contact_name}}, thanks for getting in touch. We'll get back to you within 24 hours.",
				Channel: "email",
			},
			IsActive: true,
		},
		{
			Name:    "Booking Confirmation",
			Trigger: models.TriggerBookingConfirmed,
			Action:  models.ActionSendEmail,
			Config: models.RuleConfig{
				Subject: "Your appointment is confirmed",
				Body:    "Hi {{contact_name}}, your appointment on {{booking_date}} at {{booking_time}} has been confirmed. We look forward to seeing you!",
				Channel: "email",
			},
			IsActive: true,
		},
		{
			Name:    "Post-Booking Intake Form",
			Trigger: models.TriggerBookingConfirmed,
			Action:  models.ActionDistributeForm,
			Config: models.RuleConfig{
				Template:     "intake_form",
				Message:      "Please complete this form before your appointment.",
				Channel:      "email",
				DelayMinutes: 10,
			},
			IsActive: true,
		},
		{
			Name:    "Booking Reminder",
			Trigger: models.TriggerBookingReminder,
			Action:  models.ActionSendEmail,
			Config: models.RuleConfig{
				Subject:     "Appointment Reminder",
				Body:        "Hi {{contact_name}}, this is a reminder about your appointment tomorrow at {{booking_time}}.",
				Channel:     "email",
				HoursBefore: 24,
			},
			IsActive: true,
		},
		{
			Name:    "Pending Form Reminder",
			Trigger: models.TriggerFormSubmitted,
			Action:  models.ActionSendEmail,
			Config: models.RuleConfig{
				Subject:    "Reminder: Please complete your form",
				Body:       "Hi {{contact_name}}, you haven't completed your intake form yet. Please complete it before your visit: {{form_url}}",
				Channel:    "email",
				IsReminder: true,
			},
			IsActive: true,
		},
		{
			Name:    "Low Stock Alert",
			Trigger: models.TriggerInventoryLow,
			Action:  models.ActionNotifyOwner,
			Config: models.RuleConfig{
				Message: "Item '{{item_name}}' is running low ({{quantity}} {{unit}} remaining).",
				Channel: "notification",
			},
			IsActive: true,
		},
		{
			Name:    "Staff Reply Pause",
			Trigger: models.TriggerMessageReceived,
			Action:  models.ActionNotifyOwner,
			Config: models.RuleConfig{
				Message:      "Staff replied to {{contact_name}}. Automation paused for this conversation.",
				Channel:      "system",
				IsSystemRule: true,
			},
			IsActive: true,
		},
	}
}
