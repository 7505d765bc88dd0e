package automation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/models"
)

// Job is one resolved, ready-to-execute unit: one matched rule, its config
// resolved against the event context, and the delay decision already made.
type Job struct {
	Rule     models.AutomationRule
	Event    models.DomainEvent
	Resolved models.RuleConfig
	Delayed  bool
}

// RuleFinder loads the active rules for a trigger in insertion order.
type RuleFinder interface {
	FindActive(ctx context.Context, workspaceID uuid.UUID, trigger models.Trigger) ([]models.AutomationRule, error)
}

// LogAppender appends one immutable execution record.
type LogAppender interface {
	Append(ctx context.Context, entry *models.AutomationLog) error
}

// JobStore persists delayed jobs.
type JobStore interface {
	Schedule(ctx context.Context, job *models.ScheduledJob) error
}

// SuppressionChecker answers whether automation is paused for a contact.
type SuppressionChecker interface {
	IsActive(ctx context.Context, workspaceID, contactID uuid.UUID, ttl time.Duration, now time.Time) (bool, error)
}

// JobRunner executes one immediate job. The executor implements it.
type JobRunner interface {
	Execute(ctx context.Context, job Job)
}

// Dispatcher matches domain events against active rules and routes the
// resulting jobs: immediate ones to the executor, delayed ones to the
// persistent schedule. It never blocks the operation that produced the
// event; callers hand events over through the bus or a goroutine.
type Dispatcher struct {
	rules          RuleFinder
	logs           LogAppender
	jobs           JobStore
	suppression    SuppressionChecker
	runner         JobRunner
	suppressionTTL time.Duration
	collector      *metrics.Metrics
	now            func() time.Time
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(
	rules RuleFinder,
	logs LogAppender,
	jobs JobStore,
	suppression SuppressionChecker,
	runner JobRunner,
	suppressionTTL time.Duration,
	collector *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		rules:          rules,
		logs:           logs,
		jobs:           jobs,
		suppression:    suppression,
		runner:         runner,
		suppressionTTL: suppressionTTL,
		collector:      collector,
		now:            time.Now,
	}
}

// Dispatch routes one event. Exactly one log row results per matched active
// rule: suppressed and reminder-gated rules get a skipped row immediately,
// immediate jobs are logged by the executor, and delayed jobs are logged
// when they fire.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.DomainEvent) error {
	if !event.Trigger.Valid() {
		return models.NewValidationError("trigger", "unknown trigger "+string(event.Trigger))
	}

	started := d.now()
	rules, err := d.rules.FindActive(ctx, event.WorkspaceID, event.Trigger)
	if err != nil {
		return errors.Wrap(err, "failed to load rules for dispatch")
	}
	if len(rules) == 0 {
		return nil
	}

	suppressed := false
	if contactID, ok := event.ContactID(); ok {
		suppressed, err = d.suppression.IsActive(ctx, event.WorkspaceID, contactID, d.suppressionTTL, d.now())
		if err != nil {
			log.Warn().Err(err).
				Str("contact_id", contactID.String()).
				Msg("Suppression check failed, treating contact as not suppressed")
			suppressed = false
		}
	}

	for _, rule := range rules {
		if suppressed {
			d.logSkip(ctx, rule, event, models.SkipReasonSuppressed)
			continue
		}
		if rule.Config.IsReminder && !IsReminderPass(event.Payload) {
			d.logSkip(ctx, rule, event, models.SkipReasonReminderOnly)
			continue
		}

		job := Job{
			Rule:     rule,
			Event:    event,
			Resolved: ResolveConfig(rule.Config, event.Payload),
		}

		if job.Resolved.DelayMinutes > 0 {
			if err := d.schedule(ctx, job); err != nil {
				log.Error().Err(err).
					Str("rule_id", rule.ID.String()).
					Msg("Failed to schedule delayed job")
				d.logFailure(ctx, rule, event, err)
			}
			continue
		}

		d.runner.Execute(ctx, job)
	}

	d.collector.RecordTimer("dispatch", d.now().Sub(started).Milliseconds())
	d.collector.IncrementCounter("events_dispatched")
	return nil
}

func (d *Dispatcher) schedule(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job.Event.Payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job payload")
	}
	scheduled := &models.ScheduledJob{
		ID:             uuid.New(),
		WorkspaceID:    job.Event.WorkspaceID,
		RuleID:         job.Rule.ID,
		Trigger:        job.Event.Trigger,
		Payload:        payload,
		ResolvedConfig: job.Resolved,
		RunAt:          d.now().Add(time.Duration(job.Resolved.DelayMinutes) * time.Minute),
	}
	if err := d.jobs.Schedule(ctx, scheduled); err != nil {
		return err
	}
	d.collector.IncrementCounter("jobs_scheduled")
	log.Info().
		Str("rule_id", job.Rule.ID.String()).
		Str("job_id", scheduled.ID.String()).
		Time("run_at", scheduled.RunAt).
		Msg("Delayed job scheduled")
	return nil
}

func (d *Dispatcher) logSkip(ctx context.Context, rule models.AutomationRule, event models.DomainEvent, reason string) {
	payload, _ := json.Marshal(CleanPayload(event.Payload))
	entry := &models.AutomationLog{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		WorkspaceID:    event.WorkspaceID,
		Status:         models.LogSkipped,
		TriggerPayload: payload,
		Reason:         reason,
		ExecutedAt:     d.now(),
	}
	if err := d.logs.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("rule_id", rule.ID.String()).Msg("Failed to log skipped rule")
	}
	d.collector.IncrementCounter("executions_skipped")
}

func (d *Dispatcher) logFailure(ctx context.Context, rule models.AutomationRule, event models.DomainEvent, cause error) {
	payload, _ := json.Marshal(CleanPayload(event.Payload))
	entry := &models.AutomationLog{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		WorkspaceID:    event.WorkspaceID,
		Status:         models.LogFailed,
		TriggerPayload: payload,
		ErrorSummary:   cause.Error(),
		ExecutedAt:     d.now(),
	}
	if err := d.logs.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("rule_id", rule.ID.String()).Msg("Failed to log scheduling failure")
	}
	d.collector.IncrementCounter("executions_failed")
}
