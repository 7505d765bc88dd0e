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

	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/models"
)

type MockJobClaimer struct {
	mock.Mock
}

func (m *MockJobClaimer) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]models.ScheduledJob), args.Error(1)
}

func (m *MockJobClaimer) MarkCompleted(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, jobID, at)
	return args.Error(0)
}

func scheduledJob(t *testing.T, rule models.AutomationRule, payload map[string]string) models.ScheduledJob {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return models.ScheduledJob{
		ID:             uuid.New(),
		WorkspaceID:    rule.WorkspaceID,
		RuleID:         rule.ID,
		Trigger:        rule.Trigger,
		Payload:        raw,
		ResolvedConfig: rule.Config,
		RunAt:          time.Now().Add(-time.Minute),
	}
}

func TestPollerTickExecutesClaimedJobs(t *testing.T) {
	rule := testRule(models.TriggerBookingConfirmed, models.ActionSendEmail, models.RuleConfig{Body: "hi"})
	rule.WorkspaceID = uuid.New()
	job := scheduledJob(t, rule, map[string]string{"contact_email": "amina@example.com"})

	claimer := new(MockJobClaimer)
	claimer.On("ClaimDue", mock.Anything, mock.Anything, DefaultClaimBatch).
		Return([]models.ScheduledJob{job}, nil)
	claimer.On("MarkCompleted", mock.Anything, job.ID, mock.Anything).Return(nil)

	rules := new(MockRuleReader)
	rules.On("GetByID", mock.Anything, rule.WorkspaceID, rule.ID).Return(&rule, nil)

	runner := new(MockJobRunner)
	runner.On("Execute", mock.Anything, mock.AnythingOfType("automation.Job"))

	p := NewPoller(claimer, rules, runner, &logRecorder{}, metrics.NewMetrics())
	fired, err := p.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	claimer.AssertExpectations(t)
	rebuilt := runner.Calls[0].Arguments.Get(1).(Job)
	require.True(t, rebuilt.Delayed)
	require.Equal(t, rule.ID, rebuilt.Rule.ID)
	require.Equal(t, "amina@example.com", rebuilt.Event.Payload["contact_email"])
}

func TestPollerTickLogsAndCompletesVanishedRule(t *testing.T) {
	rule := testRule(models.TriggerBookingConfirmed, models.ActionSendEmail, models.RuleConfig{Body: "hi"})
	rule.WorkspaceID = uuid.New()
	job := scheduledJob(t, rule, map[string]string{})

	claimer := new(MockJobClaimer)
	claimer.On("ClaimDue", mock.Anything, mock.Anything, DefaultClaimBatch).
		Return([]models.ScheduledJob{job}, nil)
	claimer.On("MarkCompleted", mock.Anything, job.ID, mock.Anything).Return(nil)

	rules := new(MockRuleReader)
	rules.On("GetByID", mock.Anything, rule.WorkspaceID, rule.ID).
		Return(nil, &models.NotFoundError{Entity: "automation_rule", ID: rule.ID.String()})

	runner := new(MockJobRunner)
	logs := &logRecorder{}

	p := NewPoller(claimer, rules, runner, logs, metrics.NewMetrics())
	fired, err := p.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	// The job never runs, leaves a skipped log row and is completed so it
	// cannot loop.
	runner.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	claimer.AssertExpectations(t)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogSkipped, logs.entries[0].Status)
	require.Equal(t, models.SkipReasonInactiveRule, logs.entries[0].Reason)
	require.Equal(t, rule.ID, logs.entries[0].RuleID)
}

func TestPollerTickLogsAndCompletesUnreadablePayload(t *testing.T) {
	rule := testRule(models.TriggerBookingConfirmed, models.ActionSendEmail, models.RuleConfig{Body: "hi"})
	rule.WorkspaceID = uuid.New()
	job := scheduledJob(t, rule, map[string]string{})
	job.Payload = []byte(`["not", "a", "payload"]`)

	claimer := new(MockJobClaimer)
	claimer.On("ClaimDue", mock.Anything, mock.Anything, DefaultClaimBatch).
		Return([]models.ScheduledJob{job}, nil)
	claimer.On("MarkCompleted", mock.Anything, job.ID, mock.Anything).Return(nil)

	runner := new(MockJobRunner)
	logs := &logRecorder{}

	p := NewPoller(claimer, new(MockRuleReader), runner, logs, metrics.NewMetrics())
	fired, err := p.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	runner.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	claimer.AssertExpectations(t)
	require.Len(t, logs.entries, 1)
	require.Equal(t, models.LogSkipped, logs.entries[0].Status)
	require.Equal(t, models.SkipReasonStaleEntity, logs.entries[0].Reason)
}

func TestPollerTickDefersJobOnTransientRuleLoadFailure(t *testing.T) {
	rule := testRule(models.TriggerBookingConfirmed, models.ActionSendEmail, models.RuleConfig{Body: "hi"})
	rule.WorkspaceID = uuid.New()
	job := scheduledJob(t, rule, map[string]string{"contact_email": "amina@example.com"})

	claimer := new(MockJobClaimer)
	claimer.On("ClaimDue", mock.Anything, mock.Anything, DefaultClaimBatch).
		Return([]models.ScheduledJob{job}, nil)

	rules := new(MockRuleReader)
	rules.On("GetByID", mock.Anything, rule.WorkspaceID, rule.ID).
		Return(nil, errors.New("connection refused"))

	runner := new(MockJobRunner)
	logs := &logRecorder{}

	p := NewPoller(claimer, rules, runner, logs, metrics.NewMetrics())
	fired, err := p.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	// A transient failure must not consume the job: no execution, no log
	// row and no completion, so the claim lease expires and a later tick
	// retries it.
	runner.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	claimer.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything)
	require.Empty(t, logs.entries)
}

func TestPollerTickEmptyBatch(t *testing.T) {
	claimer := new(MockJobClaimer)
	claimer.On("ClaimDue", mock.Anything, mock.Anything, DefaultClaimBatch).
		Return([]models.ScheduledJob{}, nil)

	runner := new(MockJobRunner)
	p := NewPoller(claimer, new(MockRuleReader), runner, &logRecorder{}, metrics.NewMetrics())

	fired, err := p.Tick(context.Background())
	require.NoError(t, err)
	require.Zero(t, fired)
	claimer.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything)
}
