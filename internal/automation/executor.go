package automation

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/internal/channels"
	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/models"
)

// BookingStore is the executor's view of bookings: re-reading current state
// for staleness checks and recording calendar refs.
type BookingStore interface {
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Booking, error)
	SetCalendarEventRef(ctx context.Context, bookingID uuid.UUID, ref *string) error
}

// RuleReader re-reads a rule so delayed jobs notice deactivation.
type RuleReader interface {
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.AutomationRule, error)
}

// NotificationStore records in-app notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// FormFinder picks the form a distribute_form action should link and checks
// for an existing submission.
type FormFinder interface {
	FindActive(ctx context.Context, workspaceID uuid.UUID, templateHint string) (*models.Form, error)
	HasSubmission(ctx context.Context, formID, contactID uuid.UUID) (bool, error)
}

// SuppressionSetter activates suppression, for the pause_automation action.
type SuppressionSetter interface {
	Set(ctx context.Context, workspaceID, contactID uuid.UUID, at time.Time) error
}

// InventoryAdjuster applies stock adjustments.
type InventoryAdjuster interface {
	Deduct(ctx context.Context, itemID uuid.UUID, qty int) (*models.InventoryItem, error)
}

// skipError aborts an execution with a skipped log row instead of a failure.
type skipError struct {
	reason string
}

func (e skipError) Error() string { return "skipped: " + e.reason }

// Executor dispatches resolved jobs to the channel and calendar contracts.
// Every execution writes exactly one automation log row: success with a
// non-null action result, failed with an error summary after the retry
// policy is exhausted, or skipped with a reason. Failures never propagate
// to the operation that produced the event.
type Executor struct {
	email         channels.Sender
	whatsapp      channels.Sender
	calendar      channels.CalendarConnector
	notifications NotificationStore
	forms         FormFinder
	suppressSet   SuppressionSetter
	suppression   SuppressionChecker
	inventory     InventoryAdjuster
	bookings      BookingStore
	rules         RuleReader
	logs          LogAppender
	retry         RetryPolicy
	publicBaseURL string
	suppressTTL   time.Duration
	collector     *metrics.Metrics
	now           func() time.Time
}

// ExecutorDeps carries the executor's collaborators.
type ExecutorDeps struct {
	Email         channels.Sender
	WhatsApp      channels.Sender
	Calendar      channels.CalendarConnector
	Notifications NotificationStore
	Forms         FormFinder
	SuppressSet   SuppressionSetter
	Suppression   SuppressionChecker
	Inventory     InventoryAdjuster
	Bookings      BookingStore
	Rules         RuleReader
	Logs          LogAppender
	Retry         RetryPolicy
	PublicBaseURL string
	SuppressTTL   time.Duration
	Collector     *metrics.Metrics
}

// NewExecutor wires the executor.
func NewExecutor(deps ExecutorDeps) *Executor {
	return &Executor{
		email:         deps.Email,
		whatsapp:      deps.WhatsApp,
		calendar:      deps.Calendar,
		notifications: deps.Notifications,
		forms:         deps.Forms,
		suppressSet:   deps.SuppressSet,
		suppression:   deps.Suppression,
		inventory:     deps.Inventory,
		bookings:      deps.Bookings,
		rules:         deps.Rules,
		logs:          deps.Logs,
		retry:         deps.Retry,
		publicBaseURL: deps.PublicBaseURL,
		suppressTTL:   deps.SuppressTTL,
		collector:     deps.Collector,
		now:           time.Now,
	}
}

// Execute runs one job to completion and records the outcome.
func (e *Executor) Execute(ctx context.Context, job Job) {
	started := e.now()
	result, err := e.run(ctx, job)
	e.collector.RecordTimer("execute", e.now().Sub(started).Milliseconds())

	payload, _ := json.Marshal(CleanPayload(job.Event.Payload))
	entry := &models.AutomationLog{
		ID:             uuid.New(),
		RuleID:         job.Rule.ID,
		WorkspaceID:    job.Event.WorkspaceID,
		TriggerPayload: payload,
		ExecutedAt:     e.now(),
	}

	var skip skipError
	switch {
	case err == nil:
		entry.Status = models.LogSuccess
		entry.ActionResult, _ = json.Marshal(result)
		e.collector.IncrementCounter("executions_succeeded")
		e.collector.RecordSuccess("action_" + string(job.Rule.Action))
	case errors.As(err, &skip):
		entry.Status = models.LogSkipped
		entry.Reason = skip.reason
		e.collector.IncrementCounter("executions_skipped")
	default:
		entry.Status = models.LogFailed
		entry.ErrorSummary = err.Error()
		e.collector.IncrementCounter("executions_failed")
		e.collector.RecordError("action_" + string(job.Rule.Action))
		log.Error().Err(err).
			Str("rule_id", job.Rule.ID.String()).
			Str("action", string(job.Rule.Action)).
			Msg("Automation action failed")
	}

	if logErr := e.logs.Append(ctx, entry); logErr != nil {
		log.Error().Err(logErr).
			Str("rule_id", job.Rule.ID.String()).
			Msg("Failed to append automation log")
	}
}

func (e *Executor) run(ctx context.Context, job Job) (map[string]string, error) {
	if job.Delayed {
		if err := e.revalidate(ctx, job); err != nil {
			return nil, err
		}
	}

	switch job.Rule.Action {
	case models.ActionSendEmail:
		return e.sendEmail(ctx, job)
	case models.ActionSendWhatsApp:
		return e.sendWhatsApp(ctx, job)
	case models.ActionSendNotification, models.ActionNotifyOwner:
		return e.notify(ctx, job)
	case models.ActionDistributeForm, models.ActionSendForm:
		return e.distributeForm(ctx, job)
	case models.ActionAdjustInventory:
		return e.adjustInventory(ctx, job)
	case models.ActionPauseAutomation:
		return e.pauseAutomation(ctx, job)
	case models.ActionCreateCalendarEvent:
		return e.createCalendarEvent(ctx, job)
	}
	// Unreachable for rules validated at the boundary; a rule predating an
	// enum change still must not vanish without a trace.
	return nil, errors.Errorf("unknown action %q", job.Rule.Action)
}

// revalidate re-reads the state a delayed job depends on. The scheduler
// never cancels jobs; irrelevant ones are detected here and skipped.
func (e *Executor) revalidate(ctx context.Context, job Job) error {
	rule, err := e.rules.GetByID(ctx, job.Event.WorkspaceID, job.Rule.ID)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return skipError{reason: models.SkipReasonInactiveRule}
		}
		return errors.Wrap(err, "failed to re-read rule")
	}
	if !rule.IsActive {
		return skipError{reason: models.SkipReasonInactiveRule}
	}

	if contactID, ok := job.Event.ContactID(); ok {
		suppressed, err := e.suppression.IsActive(ctx, job.Event.WorkspaceID, contactID, e.suppressTTL, e.now())
		if err == nil && suppressed {
			return skipError{reason: models.SkipReasonSuppressed}
		}
	}

	rawID, ok := job.Event.Payload["booking_id"]
	if !ok {
		return nil
	}
	bookingID, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}
	booking, err := e.bookings.GetByID(ctx, job.Event.WorkspaceID, bookingID)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return skipError{reason: models.SkipReasonStaleEntity}
		}
		return errors.Wrap(err, "failed to re-read booking")
	}
	switch {
	case booking.Status == models.BookingCancelled, booking.Status == models.BookingNoShow:
		return skipError{reason: models.SkipReasonStaleEntity}
	case job.Event.Trigger == models.TriggerBookingReminder && booking.Status != models.BookingConfirmed:
		// A reminder for a booking that already completed is noise.
		return skipError{reason: models.SkipReasonStaleEntity}
	}
	return nil
}

func (e *Executor) sendEmail(ctx context.Context, job Job) (map[string]string, error) {
	recipient := job.Event.Payload["contact_email"]
	if recipient == "" {
		return nil, skipError{reason: models.SkipReasonMissingRecipient}
	}
	body := job.Resolved.Body
	if body == "" {
		body = job.Resolved.Message
	}
	id, err := e.deliver(ctx, e.email, channels.Message{
		Recipient: recipient,
		Subject:   job.Resolved.Subject,
		Body:      body,
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"channel": "email", "message_id": id, "to": recipient}, nil
}

func (e *Executor) sendWhatsApp(ctx context.Context, job Job) (map[string]string, error) {
	recipient := job.Event.Payload["contact_phone"]
	if recipient == "" {
		return nil, skipError{reason: models.SkipReasonMissingRecipient}
	}
	body := job.Resolved.Body
	if body == "" {
		body = job.Resolved.Message
	}
	id, err := e.deliver(ctx, e.whatsapp, channels.Message{Recipient: recipient, Body: body})
	if err != nil {
		return nil, err
	}
	return map[string]string{"channel": "whatsapp", "message_id": id, "to": recipient}, nil
}

func (e *Executor) notify(ctx context.Context, job Job) (map[string]string, error) {
	message := job.Resolved.Message
	if message == "" {
		message = job.Resolved.Body
	}
	n := &models.Notification{
		ID:          uuid.New(),
		WorkspaceID: job.Event.WorkspaceID,
		Message:     message,
	}
	if err := e.notifications.Create(ctx, n); err != nil {
		return nil, errors.Wrap(err, "failed to store notification")
	}
	return map[string]string{"channel": "notification", "notification_id": n.ID.String()}, nil
}

func (e *Executor) distributeForm(ctx context.Context, job Job) (map[string]string, error) {
	recipient := job.Event.Payload["contact_email"]
	if recipient == "" {
		return nil, skipError{reason: models.SkipReasonMissingRecipient}
	}
	form, err := e.forms.FindActive(ctx, job.Event.WorkspaceID, job.Resolved.Template)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find form to distribute")
	}
	if form == nil {
		return nil, skipError{reason: "no_active_form"}
	}
	if contactID, ok := job.Event.ContactID(); ok {
		submitted, err := e.forms.HasSubmission(ctx, form.ID, contactID)
		if err == nil && submitted {
			// The contact already answered; a delayed send would only nag.
			return nil, skipError{reason: models.SkipReasonStaleEntity}
		}
	}

	formURL := e.publicBaseURL + "/f/" + form.ID.String()
	body := job.Resolved.Message
	if body == "" {
		body = "Please complete this form."
	}
	id, err := e.deliver(ctx, e.email, channels.Message{
		Recipient: recipient,
		Subject:   "Please complete: " + form.Title,
		Body:      body + "\n\n" + formURL,
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"channel":    "email",
		"message_id": id,
		"form_id":    form.ID.String(),
		"form_title": form.Title,
		"form_url":   formURL,
	}, nil
}

func (e *Executor) adjustInventory(ctx context.Context, job Job) (map[string]string, error) {
	rawID := job.Event.Payload["item_id"]
	if rawID == "" {
		return nil, skipError{reason: "no_inventory_item"}
	}
	itemID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, models.NewValidationError("item_id", "not a UUID")
	}
	qty := 1
	if raw := job.Event.Payload["adjust_by"]; raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			qty = parsed
		}
	}
	item, err := e.inventory.Deduct(ctx, itemID, qty)
	if err != nil {
		return nil, errors.Wrap(err, "failed to adjust inventory")
	}
	return map[string]string{
		"item_id":   item.ID.String(),
		"item_name": item.Name,
		"quantity":  strconv.Itoa(item.Quantity),
	}, nil
}

func (e *Executor) pauseAutomation(ctx context.Context, job Job) (map[string]string, error) {
	contactID, ok := job.Event.ContactID()
	if !ok {
		return nil, skipError{reason: models.SkipReasonMissingRecipient}
	}
	if err := e.suppressSet.Set(ctx, job.Event.WorkspaceID, contactID, e.now()); err != nil {
		return nil, errors.Wrap(err, "failed to pause automation")
	}
	return map[string]string{"status": "paused", "contact_id": contactID.String()}, nil
}

func (e *Executor) createCalendarEvent(ctx context.Context, job Job) (map[string]string, error) {
	rawID := job.Event.Payload["booking_id"]
	if rawID == "" {
		return nil, skipError{reason: models.SkipReasonStaleEntity}
	}
	bookingID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, models.NewValidationError("booking_id", "not a UUID")
	}
	booking, err := e.bookings.GetByID(ctx, job.Event.WorkspaceID, bookingID)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return nil, skipError{reason: models.SkipReasonStaleEntity}
		}
		return nil, errors.Wrap(err, "failed to load booking for calendar event")
	}
	if booking.Status == models.BookingCancelled || booking.Status == models.BookingNoShow {
		return nil, skipError{reason: models.SkipReasonStaleEntity}
	}

	var ref string
	err = e.retry.Run(ctx, func(ctx context.Context) error {
		var callErr error
		ref, callErr = e.calendar.CreateEvent(ctx, booking,
			job.Event.Payload["contact_name"], job.Event.Payload["contact_email"])
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if err := e.bookings.SetCalendarEventRef(ctx, booking.ID, &ref); err != nil {
		log.Warn().Err(err).
			Str("booking_id", booking.ID.String()).
			Msg("Calendar event created but ref not recorded")
	}
	return map[string]string{"event_ref": ref, "booking_id": booking.ID.String()}, nil
}

// deliver sends one message through the retry policy.
func (e *Executor) deliver(ctx context.Context, sender channels.Sender, msg channels.Message) (string, error) {
	var id string
	err := e.retry.Run(ctx, func(ctx context.Context) error {
		var sendErr error
		id, sendErr = sender.Send(ctx, msg)
		return sendErr
	})
	return id, err
}
