package booking

import (
	"example.com/careops/services/automation/internal/models"
)

// transitions is the complete lifecycle table. Terminal states map to an
// empty set; a self-transition is never allowed.
var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:   {models.BookingConfirmed, models.BookingCancelled},
	models.BookingConfirmed: {models.BookingCompleted, models.BookingCancelled, models.BookingNoShow},
	models.BookingCompleted: {},
	models.BookingCancelled: {},
	models.BookingNoShow:    {},
}

// eventForTarget maps each reachable target state to the domain event the
// transition emits.
var eventForTarget = map[models.BookingStatus]models.Trigger{
	models.BookingConfirmed: models.TriggerBookingConfirmed,
	models.BookingCompleted: models.TriggerBookingCompleted,
	models.BookingCancelled: models.TriggerBookingCancelled,
	models.BookingNoShow:    models.TriggerBookingNoShow,
}

// AllowedTargets returns the targets reachable from the given state.
func AllowedTargets(current models.BookingStatus) []models.BookingStatus {
	return transitions[current]
}

// ValidateTransition returns an InvalidTransitionError if target is not
// reachable from current. The table is exhaustive, so unknown states simply
// have no allowed targets.
func ValidateTransition(current, target models.BookingStatus) error {
	for _, allowed := range transitions[current] {
		if allowed == target {
			return nil
		}
	}
	return &models.InvalidTransitionError{
		Current: current,
		Target:  target,
		Allowed: transitions[current],
	}
}

// EventFor returns the trigger emitted when a booking enters target. The
// second return is false for states no transition can enter (pending).
func EventFor(target models.BookingStatus) (models.Trigger, bool) {
	t, ok := eventForTarget[target]
	return t, ok
}
