package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/internal/automation"
	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/models"
	"example.com/careops/services/automation/internal/search"
)

// RuleStore is the automation service's persistence surface for rules.
type RuleStore interface {
	Create(ctx context.Context, rule *models.AutomationRule) error
	Update(ctx context.Context, rule *models.AutomationRule) error
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.AutomationRule, error)
	List(ctx context.Context, workspaceID uuid.UUID) ([]models.AutomationRule, error)
}

// LogStore reads the append-only automation log.
type LogStore interface {
	List(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.AutomationLog, error)
}

// SuppressionStore reads and writes per-contact suppression.
type SuppressionStore interface {
	Set(ctx context.Context, workspaceID, contactID uuid.UUID, at time.Time) error
	Clear(ctx context.Context, workspaceID, contactID uuid.UUID) error
	IsActive(ctx context.Context, workspaceID, contactID uuid.UUID, ttl time.Duration, now time.Time) (bool, error)
}

// FormStore reads forms and records submissions.
type FormStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Form, error)
	CreateSubmission(ctx context.Context, sub *models.FormSubmission) error
}

// LogSearcher queries the indexed audit trail. The Elasticsearch client
// satisfies it; nil disables search and callers fall back to the database.
type LogSearcher interface {
	SearchLogs(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error)
}

// RuleInput is a rule create/update request after transport decoding.
type RuleInput struct {
	Name     string
	Trigger  models.Trigger
	Action   models.Action
	Config   models.RuleConfig
	IsActive bool
}

// AutomationService owns rule management, the audit trail, suppression and
// the manual trigger surface.
type AutomationService struct {
	rules          RuleStore
	logs           LogStore
	suppression    SuppressionStore
	forms          FormStore
	contacts       ContactStore
	publisher      EventPublisher
	searcher       LogSearcher
	collector      *metrics.Metrics
	publicBaseURL  string
	suppressionTTL time.Duration
	now            func() time.Time
}

// NewAutomationService wires the automation service.
func NewAutomationService(
	rules RuleStore,
	logs LogStore,
	suppression SuppressionStore,
	forms FormStore,
	contacts ContactStore,
	publisher EventPublisher,
	searcher LogSearcher,
	collector *metrics.Metrics,
	publicBaseURL string,
	suppressionTTL time.Duration,
) *AutomationService {
	return &AutomationService{
		rules:          rules,
		logs:           logs,
		suppression:    suppression,
		forms:          forms,
		contacts:       contacts,
		publisher:      publisher,
		searcher:       searcher,
		collector:      collector,
		publicBaseURL:  publicBaseURL,
		suppressionTTL: suppressionTTL,
		now:            time.Now,
	}
}

// CreateRule validates and stores a new rule.
func (s *AutomationService) CreateRule(ctx context.Context, workspaceID uuid.UUID, input RuleInput) (*models.AutomationRule, error) {
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}
	rule := &models.AutomationRule{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        input.Name,
		Trigger:     input.Trigger,
		Action:      input.Action,
		Config:      input.Config,
		IsActive:    input.IsActive,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.collector.IncrementCounter("rules_created")
	return rule, nil
}

// UpdateRule replaces a rule's definition. System rules keep their flag so
// they stay recognizable after edits.
func (s *AutomationService) UpdateRule(ctx context.Context, workspaceID, ruleID uuid.UUID, input RuleInput) (*models.AutomationRule, error) {
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}
	rule, err := s.rules.GetByID(ctx, workspaceID, ruleID)
	if err != nil {
		return nil, err
	}
	wasSystem := rule.Config.IsSystemRule
	rule.Name = input.Name
	rule.Trigger = input.Trigger
	rule.Action = input.Action
	rule.Config = input.Config
	rule.Config.IsSystemRule = wasSystem
	rule.IsActive = input.IsActive
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// SetRuleActive toggles a rule without touching its definition. Deactivation
// also neutralizes already-scheduled delayed jobs: the executor re-checks
// the rule at fire time.
func (s *AutomationService) SetRuleActive(ctx context.Context, workspaceID, ruleID uuid.UUID, active bool) (*models.AutomationRule, error) {
	rule, err := s.rules.GetByID(ctx, workspaceID, ruleID)
	if err != nil {
		return nil, err
	}
	rule.IsActive = active
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// GetRule loads one rule.
func (s *AutomationService) GetRule(ctx context.Context, workspaceID, ruleID uuid.UUID) (*models.AutomationRule, error) {
	return s.rules.GetByID(ctx, workspaceID, ruleID)
}

// ListRules lists the workspace's rules in insertion order.
func (s *AutomationService) ListRules(ctx context.Context, workspaceID uuid.UUID) ([]models.AutomationRule, error) {
	return s.rules.List(ctx, workspaceID)
}

// SeedDefaults installs the default rule set into a workspace that has none
// yet. Seeding twice is a no-op.
func (s *AutomationService) SeedDefaults(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	existing, err := s.rules.List(ctx, workspaceID)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	defaults := automation.DefaultRules()
	for i := range defaults {
		defaults[i].ID = uuid.New()
		defaults[i].WorkspaceID = workspaceID
		if err := s.rules.Create(ctx, &defaults[i]); err != nil {
			return i, err
		}
	}
	log.Info().
		Int("count", len(defaults)).
		Str("workspace_id", workspaceID.String()).
		Msg("Seeded default automation rules")
	return len(defaults), nil
}

// ListLogs returns the newest log rows from the database.
func (s *AutomationService) ListLogs(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.AutomationLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.logs.List(ctx, workspaceID, limit)
}

// SearchLogs queries the indexed audit trail. Without a search backend the
// term is ignored and the database listing is returned instead.
func (s *AutomationService) SearchLogs(ctx context.Context, workspaceID uuid.UUID, term string, size int) ([]map[string]interface{}, error) {
	if size <= 0 || size > 500 {
		size = 100
	}
	if s.searcher == nil {
		rows, err := s.ListLogs(ctx, workspaceID, size)
		if err != nil {
			return nil, err
		}
		docs := make([]map[string]interface{}, 0, len(rows))
		for _, row := range rows {
			docs = append(docs, map[string]interface{}{
				"id":            row.ID.String(),
				"rule_id":       row.RuleID.String(),
				"status":        row.Status,
				"reason":        row.Reason,
				"error_summary": row.ErrorSummary,
				"executed_at":   row.ExecutedAt,
			})
		}
		return docs, nil
	}
	return s.searcher.SearchLogs(ctx, search.WorkspaceLogQuery(workspaceID.String(), term, size))
}

// FireTrigger publishes a manually fired event, the testing hook for rule
// authors.
func (s *AutomationService) FireTrigger(ctx context.Context, workspaceID uuid.UUID, trigger models.Trigger, payload map[string]string) error {
	if !trigger.Valid() {
		return models.NewValidationError("trigger", "unknown trigger "+string(trigger))
	}
	if payload == nil {
		payload = map[string]string{}
	}
	if s.publisher == nil {
		return errors.New("event bus is unavailable")
	}
	event := automation.NewEvent(trigger, workspaceID, payload)
	if err := s.publisher.Publish(ctx, event); err != nil {
		return err
	}
	s.collector.IncrementCounter("manual_triggers")
	return nil
}

// PauseAutomation suppresses automation for a contact's conversation.
func (s *AutomationService) PauseAutomation(ctx context.Context, workspaceID, contactID uuid.UUID) error {
	if _, err := s.contacts.GetByID(ctx, workspaceID, contactID); err != nil {
		return err
	}
	return s.suppression.Set(ctx, workspaceID, contactID, s.now())
}

// ResumeAutomation lifts suppression for a contact.
func (s *AutomationService) ResumeAutomation(ctx context.Context, workspaceID, contactID uuid.UUID) error {
	return s.suppression.Clear(ctx, workspaceID, contactID)
}

// IsPaused reports whether automation is currently suppressed for a contact.
func (s *AutomationService) IsPaused(ctx context.Context, workspaceID, contactID uuid.UUID) (bool, error) {
	return s.suppression.IsActive(ctx, workspaceID, contactID, s.suppressionTTL, s.now())
}

// StaffReply records a staff takeover of a conversation: automation pauses
// for the contact and message_received fires so rules can notify the owner.
func (s *AutomationService) StaffReply(ctx context.Context, workspaceID, contactID uuid.UUID) error {
	contact, err := s.contacts.GetByID(ctx, workspaceID, contactID)
	if err != nil {
		return err
	}
	if err := s.suppression.Set(ctx, workspaceID, contactID, s.now()); err != nil {
		return err
	}
	if s.publisher == nil {
		return nil
	}
	event := automation.NewEvent(models.TriggerMessageReceived, workspaceID, automation.ContactPayload(contact))
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("contact_id", contactID.String()).
			Msg("Failed to publish message_received event")
	}
	return nil
}

// SubmitForm records a form submission and fires form_submitted. The event
// is not a reminder pass, so reminder-only rules stay quiet. The workspace
// comes from the form itself: public submission links carry only a form ID.
func (s *AutomationService) SubmitForm(ctx context.Context, formID uuid.UUID, contactID *uuid.UUID, answers []byte) (*models.FormSubmission, error) {
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	if !form.IsActive {
		return nil, models.NewValidationError("form_id", "form is not accepting submissions")
	}
	workspaceID := form.WorkspaceID

	sub := &models.FormSubmission{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		FormID:      formID,
		ContactID:   contactID,
		Answers:     answers,
	}
	if err := s.forms.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}
	s.collector.IncrementCounter("form_submissions")

	var contact *models.Contact
	if contactID != nil {
		if c, err := s.contacts.GetByID(ctx, workspaceID, *contactID); err == nil {
			contact = c
		}
	}
	if s.publisher != nil {
		event := automation.NewEvent(models.TriggerFormSubmitted, workspaceID,
			automation.FormPayload(form, contact, s.publicBaseURL))
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Error().Err(err).
				Str("form_id", formID.String()).
				Msg("Failed to publish form_submitted event")
		}
	}
	return sub, nil
}

func validateRuleInput(input RuleInput) error {
	if input.Name == "" {
		return models.NewValidationError("name", "is required")
	}
	if !input.Trigger.Valid() {
		return models.NewValidationError("trigger", "unknown trigger "+string(input.Trigger))
	}
	if !input.Action.Valid() {
		return models.NewValidationError("action", "unknown action "+string(input.Action))
	}
	if input.Config.DelayMinutes < 0 {
		return models.NewValidationError("config.delay_minutes", "must not be negative")
	}
	return nil
}
