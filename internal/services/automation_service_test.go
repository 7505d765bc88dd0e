package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/models"
)

type MockRuleStore struct {
	mock.Mock
}

func (m *MockRuleStore) Create(ctx context.Context, rule *models.AutomationRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleStore) Update(ctx context.Context, rule *models.AutomationRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleStore) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.AutomationRule, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AutomationRule), args.Error(1)
}

func (m *MockRuleStore) List(ctx context.Context, workspaceID uuid.UUID) ([]models.AutomationRule, error) {
	args := m.Called(ctx, workspaceID)
	return args.Get(0).([]models.AutomationRule), args.Error(1)
}

type MockSuppressionStore struct {
	mock.Mock
}

func (m *MockSuppressionStore) Set(ctx context.Context, workspaceID, contactID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, workspaceID, contactID, at)
	return args.Error(0)
}

func (m *MockSuppressionStore) Clear(ctx context.Context, workspaceID, contactID uuid.UUID) error {
	args := m.Called(ctx, workspaceID, contactID)
	return args.Error(0)
}

func (m *MockSuppressionStore) IsActive(ctx context.Context, workspaceID, contactID uuid.UUID, ttl time.Duration, now time.Time) (bool, error) {
	args := m.Called(ctx, workspaceID, contactID, ttl, now)
	return args.Bool(0), args.Error(1)
}

type MockFormStore struct {
	mock.Mock
}

func (m *MockFormStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Form, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Form), args.Error(1)
}

func (m *MockFormStore) CreateSubmission(ctx context.Context, sub *models.FormSubmission) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

type automationFixture struct {
	rules       *MockRuleStore
	suppression *MockSuppressionStore
	forms       *MockFormStore
	contacts    *MockContactStore
	publisher   *eventRecorder
	svc         *AutomationService
}

func newAutomationFixture() *automationFixture {
	f := &automationFixture{
		rules:       new(MockRuleStore),
		suppression: new(MockSuppressionStore),
		forms:       new(MockFormStore),
		contacts:    new(MockContactStore),
		publisher:   &eventRecorder{},
	}
	f.svc = NewAutomationService(f.rules, nil, f.suppression, f.forms, f.contacts,
		f.publisher, nil, metrics.NewMetrics(), "https://careops.example.com", 0)
	return f
}

func TestCreateRuleValidation(t *testing.T) {
	f := newAutomationFixture()
	ws := uuid.New()

	cases := []struct {
		name  string
		input RuleInput
		field string
	}{
		{"missing name", RuleInput{Trigger: models.TriggerNewLead, Action: models.ActionSendEmail}, "name"},
		{"bad trigger", RuleInput{Name: "r", Trigger: "nope", Action: models.ActionSendEmail}, "trigger"},
		{"bad action", RuleInput{Name: "r", Trigger: models.TriggerNewLead, Action: "nope"}, "action"},
		{"negative delay", RuleInput{
			Name: "r", Trigger: models.TriggerNewLead, Action: models.ActionSendEmail,
			Config: models.RuleConfig{DelayMinutes: -1},
		}, "config.delay_minutes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateRule(context.Background(), ws, tc.input)
			var validation *models.ValidationError
			require.ErrorAs(t, err, &validation)
			require.Equal(t, tc.field, validation.Field)
		})
	}
	f.rules.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateRulePersists(t *testing.T) {
	f := newAutomationFixture()
	ws := uuid.New()
	f.rules.On("Create", mock.Anything, mock.AnythingOfType("*models.AutomationRule")).Return(nil)

	rule, err := f.svc.CreateRule(context.Background(), ws, RuleInput{
		Name:     "Welcome New Lead",
		Trigger:  models.TriggerNewLead,
		Action:   models.ActionSendEmail,
		Config:   models.RuleConfig{Subject: "Welcome!", Body: "Hi {{contact_name}}"},
		IsActive: true,
	})
	require.NoError(t, err)
	require.Equal(t, ws, rule.WorkspaceID)
	require.True(t, rule.IsActive)
	require.NotEqual(t, uuid.Nil, rule.ID)
}

func TestUpdateRulePreservesSystemFlag(t *testing.T) {
	f := newAutomationFixture()
	ws := uuid.New()
	existing := &models.AutomationRule{
		ID: uuid.New(), WorkspaceID: ws, Name: "Staff Reply Pause",
		Trigger: models.TriggerMessageReceived, Action: models.ActionNotifyOwner,
		Config:   models.RuleConfig{Message: "old", IsSystemRule: true},
		IsActive: true,
	}
	f.rules.On("GetByID", mock.Anything, ws, existing.ID).Return(existing, nil)
	f.rules.On("Update", mock.Anything, existing).Return(nil)

	updated, err := f.svc.UpdateRule(context.Background(), ws, existing.ID, RuleInput{
		Name:     "Staff Reply Pause",
		Trigger:  models.TriggerMessageReceived,
		Action:   models.ActionNotifyOwner,
		Config:   models.RuleConfig{Message: "new"},
		IsActive: true,
	})
	require.NoError(t, err)
	require.Equal(t, "new", updated.Config.Message)
	require.True(t, updated.Config.IsSystemRule)
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	f := newAutomationFixture()
	ws := uuid.New()
	f.rules.On("List", mock.Anything, ws).
		Return([]models.AutomationRule{{ID: uuid.New()}}, nil)

	count, err := f.svc.SeedDefaults(context.Background(), ws)
	require.NoError(t, err)
	require.Zero(t, count)
	f.rules.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSeedDefaultsInstallsRuleSet(t *testing.T) {
	f := newAutomationFixture()
	ws := uuid.New()
	f.rules.On("List", mock.Anything, ws).Return([]models.AutomationRule{}, nil)
	f.rules.On("Create", mock.Anything, mock.AnythingOfType("*models.AutomationRule")).Return(nil)

	count, err := f.svc.SeedDefaults(context.Background(), ws)
	require.NoError(t, err)
	require.Equal(t, 7, count)
	f.rules.AssertNumberOfCalls(t, "Create", 7)

	for _, call := range f.rules.Calls {
		if call.Method != "Create" {
			continue
		}
		rule := call.Arguments.Get(1).(*models.AutomationRule)
		require.Equal(t, ws, rule.WorkspaceID)
		require.NotEqual(t, uuid.Nil, rule.ID)
		require.True(t, rule.IsActive)
	}
}

func TestFireTriggerRejectsUnknownTrigger(t *testing.T) {
	f := newAutomationFixture()

	err := f.svc.FireTrigger(context.Background(), uuid.New(), "made_up", nil)
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Empty(t, f.publisher.events)
}

func TestFireTriggerPublishes(t *testing.T) {
	f := newAutomationFixture()
	ws := uuid.New()

	err := f.svc.FireTrigger(context.Background(), ws, models.TriggerNewLead,
		map[string]string{"contact_email": "amina@example.com"})
	require.NoError(t, err)
	require.Len(t, f.publisher.events, 1)
	require.Equal(t, models.TriggerNewLead, f.publisher.events[0].Trigger)
	require.Equal(t, ws, f.publisher.events[0].WorkspaceID)
}

func TestStaffReplySuppressesAndPublishes(t *testing.T) {
	f := newAutomationFixture()
	ws := uuid.New()
	contact := &models.Contact{ID: uuid.New(), WorkspaceID: ws, FullName: "Amina Diallo"}

	f.contacts.On("GetByID", mock.Anything, ws, contact.ID).Return(contact, nil)
	f.suppression.On("Set", mock.Anything, ws, contact.ID, mock.Anything).Return(nil)

	require.NoError(t, f.svc.StaffReply(context.Background(), ws, contact.ID))

	f.suppression.AssertExpectations(t)
	require.Len(t, f.publisher.events, 1)
	require.Equal(t, models.TriggerMessageReceived, f.publisher.events[0].Trigger)
	require.Equal(t, contact.ID.String(), f.publisher.events[0].Payload["contact_id"])
}

func TestSubmitFormRejectsInactiveForm(t *testing.T) {
	f := newAutomationFixture()
	form := &models.Form{ID: uuid.New(), WorkspaceID: uuid.New(), Title: "Intake", IsActive: false}
	f.forms.On("GetByID", mock.Anything, form.ID).Return(form, nil)

	_, err := f.svc.SubmitForm(context.Background(), form.ID, nil, []byte(`{}`))
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
	f.forms.AssertNotCalled(t, "CreateSubmission", mock.Anything, mock.Anything)
	require.Empty(t, f.publisher.events)
}

func TestSubmitFormRecordsAndPublishes(t *testing.T) {
	f := newAutomationFixture()
	form := &models.Form{ID: uuid.New(), WorkspaceID: uuid.New(), Title: "Intake", IsActive: true}
	f.forms.On("GetByID", mock.Anything, form.ID).Return(form, nil)
	f.forms.On("CreateSubmission", mock.Anything, mock.AnythingOfType("*models.FormSubmission")).Return(nil)

	sub, err := f.svc.SubmitForm(context.Background(), form.ID, nil, []byte(`{"q1":"yes"}`))
	require.NoError(t, err)
	require.Equal(t, form.WorkspaceID, sub.WorkspaceID)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	require.Equal(t, models.TriggerFormSubmitted, event.Trigger)
	require.Equal(t, form.WorkspaceID, event.WorkspaceID)
	require.Equal(t, "https://careops.example.com/f/"+form.ID.String(), event.Payload["form_url"])

	// A plain submission is not a reminder pass.
	require.NotContains(t, event.Payload, "_is_reminder")
}

func TestPauseAutomationRequiresKnownContact(t *testing.T) {
	f := newAutomationFixture()
	ws := uuid.New()
	contactID := uuid.New()
	f.contacts.On("GetByID", mock.Anything, ws, contactID).
		Return(nil, &models.NotFoundError{Entity: "contact", ID: contactID.String()})

	err := f.svc.PauseAutomation(context.Background(), ws, contactID)
	var notFound *models.NotFoundError
	require.ErrorAs(t, err, &notFound)
	f.suppression.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
