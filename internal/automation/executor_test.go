package automation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/careops/services/automation/internal/channels"
	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/models"
)

type MockSender struct {
	mock.Mock
	name string
}

func (m *MockSender) Channel() string { return m.name }

func (m *MockSender) Send(ctx context.Context, msg channels.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type MockBookingStore struct {
	mock.Mock
}

func (m *MockBookingStore) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingStore) SetCalendarEventRef(ctx context.Context, bookingID uuid.UUID, ref *string) error {
	args := m.Called(ctx, bookingID, ref)
	return args.Error(0)
}

type MockRuleReader struct {
	mock.Mock
}

func (m *MockRuleReader) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.AutomationRule, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AutomationRule), args.Error(1)
}

type MockSuppressionSetter struct {
	mock.Mock
}

func (m *MockSuppressionSetter) Set(ctx context.Context, workspaceID, contactID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, workspaceID, contactID, at)
	return args.Error(0)
}

func emailExecutor(email channels.Sender, logs LogAppender) *Executor {
	return NewExecutor(ExecutorDeps{
		Email:     email,
		Logs:      logs,
		Retry:     RetryPolicy{MaxAttempts: 3, Backoff: 0, Retryable: IsTransient},
		Collector: metrics.NewMetrics(),
	})
}

func emailJob(payload map[string]string) Job {
	rule := testRule(models.TriggerBookingConfirmed, models.ActionSendEmail, models.RuleConfig{
		Subject: "Booking confirmed",
		Body:    "See you soon",
	})
	return Job{
		Rule: rule,
		Event: models.DomainEvent{
			Trigger:     models.TriggerBookingConfirmed,
			WorkspaceID: uuid.New(),
			Payload:     payload,
		},
		Resolved: rule.Config,
	}
}

func TestExecuteEmailSuccessWritesOneSuccessLog(t *testing.T) {
	sender := &MockSender{name: "email"}
	sender.On("Send", mock.Anything, mock.AnythingOfType("channels.Message")).
		Return("msg-123", nil)

	logs := &logRecorder{}
	e := emailExecutor(sender, logs)

	e.Execute(context.Background(), emailJob(map[string]string{"contact_email": "amina@example.com"}))

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	require.Equal(t, models.LogSuccess, entry.Status)

	var result map[string]string
	require.NoError(t, json.Unmarshal(entry.ActionResult, &result))
	require.Equal(t, "msg-123", result["message_id"])
	require.Equal(t, "amina@example.com", result["to"])

	sent := sender.Calls[0].Arguments.Get(1).(channels.Message)
	require.Equal(t, "Booking confirmed", sent.Subject)
	require.Equal(t, "See you soon", sent.Body)
}

func TestExecuteEmailMissingRecipientSkips(t *testing.T) {
	sender := &MockSender{name: "email"}
	logs := &logRecorder{}
	e := emailExecutor(sender, logs)

	e.Execute(context.Background(), emailJob(map[string]string{}))

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogSkipped, logs.entries[0].Status)
	require.Equal(t, models.SkipReasonMissingRecipient, logs.entries[0].Reason)
}

func TestExecuteEmailRetriesThenFails(t *testing.T) {
	sender := &MockSender{name: "email"}
	sender.On("Send", mock.Anything, mock.AnythingOfType("channels.Message")).
		Return("", models.NewTransientChannelError("email", errors.New("broker unreachable")))

	logs := &logRecorder{}
	e := emailExecutor(sender, logs)

	e.Execute(context.Background(), emailJob(map[string]string{"contact_email": "amina@example.com"}))

	sender.AssertNumberOfCalls(t, "Send", 3)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogFailed, logs.entries[0].Status)
	require.Contains(t, logs.entries[0].ErrorSummary, "exhausted")
}

func TestExecuteDelayedJobSkipsCancelledBooking(t *testing.T) {
	workspaceID := uuid.New()
	bookingID := uuid.New()
	rule := testRule(models.TriggerBookingReminder, models.ActionSendEmail, models.RuleConfig{Body: "reminder"})

	rules := new(MockRuleReader)
	rules.On("GetByID", mock.Anything, workspaceID, rule.ID).Return(&rule, nil)

	bookings := new(MockBookingStore)
	bookings.On("GetByID", mock.Anything, workspaceID, bookingID).
		Return(&models.Booking{ID: bookingID, Status: models.BookingCancelled}, nil)

	suppression := new(MockSuppressionChecker)
	sender := &MockSender{name: "email"}
	logs := &logRecorder{}

	e := NewExecutor(ExecutorDeps{
		Email:       sender,
		Bookings:    bookings,
		Rules:       rules,
		Suppression: suppression,
		Logs:        logs,
		Retry:       RetryPolicy{MaxAttempts: 1, Retryable: IsTransient},
		Collector:   metrics.NewMetrics(),
	})

	e.Execute(context.Background(), Job{
		Rule: rule,
		Event: models.DomainEvent{
			Trigger:     models.TriggerBookingReminder,
			WorkspaceID: workspaceID,
			Payload: map[string]string{
				"booking_id":    bookingID.String(),
				"contact_email": "amina@example.com",
			},
		},
		Resolved: rule.Config,
		Delayed:  true,
	})

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogSkipped, logs.entries[0].Status)
	require.Equal(t, models.SkipReasonStaleEntity, logs.entries[0].Reason)
}

func TestExecuteDelayedJobSkipsDeactivatedRule(t *testing.T) {
	workspaceID := uuid.New()
	rule := testRule(models.TriggerBookingConfirmed, models.ActionSendEmail, models.RuleConfig{Body: "hi"})
	deactivated := rule
	deactivated.IsActive = false

	rules := new(MockRuleReader)
	rules.On("GetByID", mock.Anything, workspaceID, rule.ID).Return(&deactivated, nil)

	sender := &MockSender{name: "email"}
	logs := &logRecorder{}
	e := NewExecutor(ExecutorDeps{
		Email:     sender,
		Rules:     rules,
		Logs:      logs,
		Retry:     RetryPolicy{MaxAttempts: 1, Retryable: IsTransient},
		Collector: metrics.NewMetrics(),
	})

	e.Execute(context.Background(), Job{
		Rule: rule,
		Event: models.DomainEvent{
			Trigger:     models.TriggerBookingConfirmed,
			WorkspaceID: workspaceID,
			Payload:     map[string]string{"contact_email": "amina@example.com"},
		},
		Resolved: rule.Config,
		Delayed:  true,
	})

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.SkipReasonInactiveRule, logs.entries[0].Reason)
}

func TestExecutePauseAutomationSetsSuppression(t *testing.T) {
	workspaceID := uuid.New()
	contactID := uuid.New()
	rule := testRule(models.TriggerMessageReceived, models.ActionPauseAutomation, models.RuleConfig{})

	suppressSet := new(MockSuppressionSetter)
	suppressSet.On("Set", mock.Anything, workspaceID, contactID, mock.Anything).Return(nil)

	logs := &logRecorder{}
	e := NewExecutor(ExecutorDeps{
		SuppressSet: suppressSet,
		Logs:        logs,
		Retry:       RetryPolicy{MaxAttempts: 1, Retryable: IsTransient},
		Collector:   metrics.NewMetrics(),
	})

	e.Execute(context.Background(), Job{
		Rule: rule,
		Event: models.DomainEvent{
			Trigger:     models.TriggerMessageReceived,
			WorkspaceID: workspaceID,
			Payload:     map[string]string{"contact_id": contactID.String()},
		},
		Resolved: rule.Config,
	})

	suppressSet.AssertExpectations(t)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogSuccess, logs.entries[0].Status)
}

func TestExecuteNotifyOwnerStoresNotification(t *testing.T) {
	workspaceID := uuid.New()
	rule := testRule(models.TriggerInventoryLow, models.ActionNotifyOwner, models.RuleConfig{
		Message: "Item 'Gloves' is running low (3 boxes remaining).",
	})

	store := &notificationRecorder{}
	logs := &logRecorder{}
	e := NewExecutor(ExecutorDeps{
		Notifications: store,
		Logs:          logs,
		Retry:         RetryPolicy{MaxAttempts: 1, Retryable: IsTransient},
		Collector:     metrics.NewMetrics(),
	})

	e.Execute(context.Background(), Job{
		Rule: rule,
		Event: models.DomainEvent{
			Trigger:     models.TriggerInventoryLow,
			WorkspaceID: workspaceID,
			Payload:     map[string]string{"item_name": "Gloves"},
		},
		Resolved: rule.Config,
	})

	require.Len(t, store.created, 1)
	require.Equal(t, workspaceID, store.created[0].WorkspaceID)
	require.Equal(t, "Item 'Gloves' is running low (3 boxes remaining).", store.created[0].Message)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogSuccess, logs.entries[0].Status)
}

type notificationRecorder struct {
	created []*models.Notification
}

func (r *notificationRecorder) Create(ctx context.Context, n *models.Notification) error {
	r.created = append(r.created, n)
	return nil
}

func TestExecuteDistributeFormWithoutActiveFormSkips(t *testing.T) {
	workspaceID := uuid.New()
	rule := testRule(models.TriggerBookingConfirmed, models.ActionDistributeForm, models.RuleConfig{
		Template: "intake_form",
	})

	forms := &formStub{}
	sender := &MockSender{name: "email"}
	logs := &logRecorder{}
	e := NewExecutor(ExecutorDeps{
		Email:     sender,
		Forms:     forms,
		Logs:      logs,
		Retry:     RetryPolicy{MaxAttempts: 1, Retryable: IsTransient},
		Collector: metrics.NewMetrics(),
	})

	e.Execute(context.Background(), Job{
		Rule: rule,
		Event: models.DomainEvent{
			Trigger:     models.TriggerBookingConfirmed,
			WorkspaceID: workspaceID,
			Payload:     map[string]string{"contact_email": "amina@example.com"},
		},
		Resolved: rule.Config,
	})

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogSkipped, logs.entries[0].Status)
	require.Equal(t, "no_active_form", logs.entries[0].Reason)
}

func TestExecuteDistributeFormLinksPublicURL(t *testing.T) {
	workspaceID := uuid.New()
	form := &models.Form{ID: uuid.New(), WorkspaceID: workspaceID, Title: "Intake Form", IsActive: true}
	rule := testRule(models.TriggerBookingConfirmed, models.ActionDistributeForm, models.RuleConfig{
		Template: "intake_form",
		Message:  "Please fill this in before your visit.",
	})

	sender := &MockSender{name: "email"}
	sender.On("Send", mock.Anything, mock.AnythingOfType("channels.Message")).Return("msg-9", nil)

	logs := &logRecorder{}
	e := NewExecutor(ExecutorDeps{
		Email:         sender,
		Forms:         &formStub{form: form},
		Logs:          logs,
		Retry:         RetryPolicy{MaxAttempts: 1, Retryable: IsTransient},
		PublicBaseURL: "https://careops.example.com",
		Collector:     metrics.NewMetrics(),
	})

	e.Execute(context.Background(), Job{
		Rule: rule,
		Event: models.DomainEvent{
			Trigger:     models.TriggerBookingConfirmed,
			WorkspaceID: workspaceID,
			Payload:     map[string]string{"contact_email": "amina@example.com"},
		},
		Resolved: rule.Config,
	})

	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogSuccess, logs.entries[0].Status)

	sent := sender.Calls[0].Arguments.Get(1).(channels.Message)
	require.Equal(t, "Please complete: Intake Form", sent.Subject)
	require.Contains(t, sent.Body, "https://careops.example.com/f/"+form.ID.String())
}

type formStub struct {
	form      *models.Form
	submitted bool
}

func (s *formStub) FindActive(ctx context.Context, workspaceID uuid.UUID, templateHint string) (*models.Form, error) {
	return s.form, nil
}

func (s *formStub) HasSubmission(ctx context.Context, formID, contactID uuid.UUID) (bool, error) {
	return s.submitted, nil
}

func TestExecuteDistributeFormSkipsWhenAlreadySubmitted(t *testing.T) {
	workspaceID := uuid.New()
	form := &models.Form{ID: uuid.New(), WorkspaceID: workspaceID, Title: "Intake Form", IsActive: true}
	rule := testRule(models.TriggerBookingConfirmed, models.ActionDistributeForm, models.RuleConfig{
		Template: "intake_form",
	})

	sender := &MockSender{name: "email"}
	logs := &logRecorder{}
	e := NewExecutor(ExecutorDeps{
		Email:     sender,
		Forms:     &formStub{form: form, submitted: true},
		Logs:      logs,
		Retry:     RetryPolicy{MaxAttempts: 1, Retryable: IsTransient},
		Collector: metrics.NewMetrics(),
	})

	e.Execute(context.Background(), Job{
		Rule: rule,
		Event: models.DomainEvent{
			Trigger:     models.TriggerBookingConfirmed,
			WorkspaceID: workspaceID,
			Payload: map[string]string{
				"contact_id":    uuid.New().String(),
				"contact_email": "amina@example.com",
			},
		},
		Resolved: rule.Config,
	})

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogSkipped, logs.entries[0].Status)
	require.Equal(t, models.SkipReasonStaleEntity, logs.entries[0].Reason)
}
