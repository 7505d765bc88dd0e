package models

import "fmt"

// ValidationError is returned for malformed input: bad enum values, missing
// required fields, invalid time ranges. Nothing is applied when one occurs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError is returned when a booking status change is not
// permitted from the current state. The booking remains unchanged.
type InvalidTransitionError struct {
	Current BookingStatus
	Target  BookingStatus
	Allowed []BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition booking from %q to %q (allowed: %v)",
		e.Current, e.Target, e.Allowed)
}

// SlotConflictError is returned when a requested booking window overlaps an
// existing non-cancelled booking. The caller must re-query availability.
type SlotConflictError struct {
	StartsAt string
	EndsAt   string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("time slot %s to %s conflicts with an existing booking", e.StartsAt, e.EndsAt)
}

// ChannelError is a failure delivering an action via an external channel.
// Transient errors (network, 5xx, timeout) are eligible for retry; permanent
// errors (invalid recipient, disconnected channel) are not.
type ChannelError struct {
	Channel   string
	Transient bool
	Cause     error
}

func (e *ChannelError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s channel error (%s): %v", e.Channel, kind, e.Cause)
}

func (e *ChannelError) Unwrap() error { return e.Cause }

// NewTransientChannelError wraps a retryable delivery failure.
func NewTransientChannelError(channel string, cause error) *ChannelError {
	return &ChannelError{Channel: channel, Transient: true, Cause: cause}
}

// NewPermanentChannelError wraps a non-retryable delivery failure.
func NewPermanentChannelError(channel string, cause error) *ChannelError {
	return &ChannelError{Channel: channel, Transient: false, Cause: cause}
}

// StaleEntityError marks a delayed job whose target no longer warrants
// execution. It is logged as skipped, never surfaced to a user.
type StaleEntityError struct {
	Entity string
	Reason string
}

func (e *StaleEntityError) Error() string {
	return fmt.Sprintf("stale %s: %s", e.Entity, e.Reason)
}

// NotFoundError is returned when a referenced entity does not exist in the
// workspace.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
