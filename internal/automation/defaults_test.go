package automation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/careops/services/automation/internal/models"
)

func TestDefaultRulesAreValidAndActive(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, 7)

	for _, rule := range rules {
		require.NotEmpty(t, rule.Name)
		require.True(t, rule.Trigger.Valid(), "rule %q has invalid trigger", rule.Name)
		require.True(t, rule.Action.Valid(), "rule %q has invalid action", rule.Name)
		require.True(t, rule.IsActive)
	}
}

func TestDefaultRulesCoverCoreLifecycle(t *testing.T) {
	byTrigger := map[models.Trigger]int{}
	for _, rule := range DefaultRules() {
		byTrigger[rule.Trigger]++
	}

	require.Equal(t, 1, byTrigger[models.TriggerNewLead])
	require.Equal(t, 2, byTrigger[models.TriggerBookingConfirmed])
	require.Equal(t, 1, byTrigger[models.TriggerBookingReminder])
	require.Equal(t, 1, byTrigger[models.TriggerFormSubmitted])
	require.Equal(t, 1, byTrigger[models.TriggerInventoryLow])
	require.Equal(t, 1, byTrigger[models.TriggerMessageReceived])
}

func TestDefaultIntakeFormRuleIsDelayed(t *testing.T) {
	rules := DefaultRules()
	var intake *models.AutomationRule
	for i := range rules {
		if rules[i].Action == models.ActionDistributeForm {
			intake = &rules[i]
			break
		}
	}
	require.NotNil(t, intake)
	require.Equal(t, models.TriggerBookingConfirmed, intake.Trigger)
	require.Equal(t, 10, intake.Config.DelayMinutes)
	require.Equal(t, "intake_form", intake.Config.Template)
}

func TestDefaultStaffReplyRuleIsSystemRule(t *testing.T) {
	found := false
	for _, rule := range DefaultRules() {
		if rule.Trigger == models.TriggerMessageReceived {
			found = true
			require.True(t, rule.Config.IsSystemRule)
		}
	}
	require.True(t, found)
}
