package models

// BookingStatus is the lifecycle state of a booking. Mirrors the
// booking_status enum in Postgres.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
)

// Valid reports whether the status is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled, BookingNoShow:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingCompleted, BookingCancelled, BookingNoShow:
		return true
	}
	return false
}

// Trigger is a domain event type that can activate automation rules.
// The set is closed: unknown values are rejected at the API boundary,
// never stored.
type Trigger string

const (
	TriggerNewLead          Trigger = "new_lead"
	TriggerBookingCreated   Trigger = "booking_created"
	TriggerBookingConfirmed Trigger = "booking_confirmed"
	TriggerBookingCompleted Trigger = "booking_completed"
	TriggerBookingCancelled Trigger = "booking_cancelled"
	TriggerBookingNoShow    Trigger = "booking_no_show"
	TriggerBookingReminder  Trigger = "booking_reminder"
	TriggerMessageReceived  Trigger = "message_received"
	TriggerInventoryLow     Trigger = "inventory_low"
	TriggerFormSubmitted    Trigger = "form_submitted"
)

// Valid reports whether the trigger is part of the closed trigger set.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerNewLead, TriggerBookingCreated, TriggerBookingConfirmed,
		TriggerBookingCompleted, TriggerBookingCancelled, TriggerBookingNoShow,
		TriggerBookingReminder, TriggerMessageReceived, TriggerInventoryLow,
		TriggerFormSubmitted:
		return true
	}
	return false
}

// Action is a side-effect type an automation rule performs when triggered.
type Action string

const (
	ActionSendEmail           Action = "send_email"
	ActionSendWhatsApp        Action = "send_whatsapp"
	ActionSendNotification    Action = "send_notification"
	ActionNotifyOwner         Action = "notify_owner"
	ActionDistributeForm      Action = "distribute_form"
	ActionSendForm            Action = "send_form"
	ActionAdjustInventory     Action = "adjust_inventory"
	ActionPauseAutomation     Action = "pause_automation"
	ActionCreateCalendarEvent Action = "create_calendar_event"
)

// Valid reports whether the action is part of the closed action set.
func (a Action) Valid() bool {
	switch a {
	case ActionSendEmail, ActionSendWhatsApp, ActionSendNotification,
		ActionNotifyOwner, ActionDistributeForm, ActionSendForm,
		ActionAdjustInventory, ActionPauseAutomation, ActionCreateCalendarEvent:
		return true
	}
	return false
}

// LogStatus is the outcome recorded for one automation execution.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
	LogSkipped LogStatus = "skipped"
)

// Valid reports whether the status is a known log status.
func (s LogStatus) Valid() bool {
	switch s {
	case LogSuccess, LogFailed, LogSkipped:
		return true
	}
	return false
}

// Skip reasons recorded on skipped AutomationLog rows.
const (
	SkipReasonSuppressed       = "suppressed"
	SkipReasonStaleEntity      = "stale_entity"
	SkipReasonInactiveRule     = "inactive_rule"
	SkipReasonMissingRecipient = "missing_recipient"
	SkipReasonReminderOnly     = "reminder_only"
)
