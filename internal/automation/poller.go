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

// DefaultClaimBatch is how many due jobs one poll tick claims.
const DefaultClaimBatch = 50

// JobClaimer hands out due jobs at most once across concurrent pollers.
type JobClaimer interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error)
	MarkCompleted(ctx context.Context, jobID uuid.UUID, at time.Time) error
}

// Poller drains the persisted schedule. Each tick claims a batch of due jobs,
// reconstructs them and hands them to the executor. Jobs that fire late after
// a process outage still fire; the executor's revalidation decides whether
// they are still relevant.
//
// Every claimed job resolves to exactly one log row: runnable jobs are logged
// by the executor, permanently unrunnable ones get a skipped row here. A job
// whose rule cannot be loaded because of a transient failure is neither run
// nor completed; its claim lease expires and a later tick retries it.
type Poller struct {
	jobs      JobClaimer
	rules     RuleReader
	runner    JobRunner
	logs      LogAppender
	batchSize int
	collector *metrics.Metrics
	now       func() time.Time
}

// NewPoller wires the poller.
func NewPoller(jobs JobClaimer, rules RuleReader, runner JobRunner, logs LogAppender, collector *metrics.Metrics) *Poller {
	return &Poller{
		jobs:      jobs,
		rules:     rules,
		runner:    runner,
		logs:      logs,
		batchSize: DefaultClaimBatch,
		collector: collector,
		now:       time.Now,
	}
}

// Tick claims and executes one batch of due jobs. It returns the number of
// jobs executed so callers can decide to tick again immediately.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	claimed, err := p.jobs.ClaimDue(ctx, p.now(), p.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "failed to claim due jobs")
	}
	for i := range claimed {
		p.fire(ctx, &claimed[i])
	}
	if len(claimed) > 0 {
		p.collector.IncrementCounter("jobs_fired")
		log.Debug().Int("count", len(claimed)).Msg("Fired due automation jobs")
	}
	return len(claimed), nil
}

func (p *Poller) fire(ctx context.Context, scheduled *models.ScheduledJob) {
	job, err := p.rebuild(ctx, scheduled)

	var skip skipError
	switch {
	case err == nil:
		p.runner.Execute(ctx, job)
	case errors.As(err, &skip):
		// Permanently unrunnable: the rule row vanished or the payload is
		// unreadable. Record the skip so the job leaves a trace, then
		// complete it so it is never re-claimed.
		p.logSkip(ctx, scheduled, skip.reason)
	default:
		// Transient failure loading the rule. Leave the job uncompleted; the
		// claim lease expires and a later tick retries it.
		log.Warn().Err(err).
			Str("job_id", scheduled.ID.String()).
			Msg("Deferring scheduled job after load failure")
		return
	}

	if err := p.jobs.MarkCompleted(ctx, scheduled.ID, p.now()); err != nil {
		log.Error().Err(err).
			Str("job_id", scheduled.ID.String()).
			Msg("Failed to mark job completed")
	}
}

func (p *Poller) rebuild(ctx context.Context, scheduled *models.ScheduledJob) (Job, error) {
	var payload map[string]string
	if err := json.Unmarshal(scheduled.Payload, &payload); err != nil {
		log.Error().Err(err).
			Str("job_id", scheduled.ID.String()).
			Msg("Scheduled job payload is unreadable")
		return Job{}, skipError{reason: models.SkipReasonStaleEntity}
	}
	rule, err := p.rules.GetByID(ctx, scheduled.WorkspaceID, scheduled.RuleID)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return Job{}, skipError{reason: models.SkipReasonInactiveRule}
		}
		return Job{}, errors.Wrap(err, "failed to load rule for job")
	}
	return Job{
		Rule: *rule,
		Event: models.DomainEvent{
			Trigger:     scheduled.Trigger,
			WorkspaceID: scheduled.WorkspaceID,
			Payload:     payload,
			OccurredAt:  scheduled.CreatedAt,
		},
		Resolved: scheduled.ResolvedConfig,
		Delayed:  true,
	}, nil
}

func (p *Poller) logSkip(ctx context.Context, scheduled *models.ScheduledJob, reason string) {
	entry := &models.AutomationLog{
		ID:             uuid.New(),
		RuleID:         scheduled.RuleID,
		WorkspaceID:    scheduled.WorkspaceID,
		Status:         models.LogSkipped,
		TriggerPayload: scheduled.Payload,
		Reason:         reason,
		ExecutedAt:     p.now(),
	}
	if err := p.logs.Append(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("job_id", scheduled.ID.String()).
			Msg("Failed to log skipped job")
	}
	p.collector.IncrementCounter("executions_skipped")
}
