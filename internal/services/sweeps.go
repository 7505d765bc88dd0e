package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/internal/automation"
	"example.com/careops/services/automation/internal/booking"
	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/models"
)

const sweepBatchSize = 100

// SweepStore is the persistence surface of the periodic sweeps.
type SweepStore interface {
	FindDueReminders(ctx context.Context, now time.Time, lead time.Duration, limit int) ([]models.Booking, error)
	MarkReminderSent(ctx context.Context, bookingID uuid.UUID, at time.Time) error
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	UpdateStatusVersioned(ctx context.Context, b *models.Booking, target models.BookingStatus, notes string) (bool, error)
}

// SweepService runs the worker's periodic passes over bookings: the reminder
// sweep and the auto-complete sweep. Both are idempotent per booking, so
// overlapping or restarted sweeps do no harm.
type SweepService struct {
	store        SweepStore
	publisher    EventPublisher
	collector    *metrics.Metrics
	reminderLead time.Duration
	now          func() time.Time
}

// NewSweepService wires the sweep service.
func NewSweepService(store SweepStore, publisher EventPublisher, collector *metrics.Metrics, reminderLead time.Duration) *SweepService {
	return &SweepService{
		store:        store,
		publisher:    publisher,
		collector:    collector,
		reminderLead: reminderLead,
		now:          time.Now,
	}
}

// ReminderSweep fires booking_reminder for confirmed bookings entering the
// lead window. The reminder marker is stamped before publishing, so a crash
// between the two loses at most one reminder rather than duplicating it.
func (s *SweepService) ReminderSweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.FindDueReminders(ctx, now, s.reminderLead, sweepBatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "reminder sweep failed to find due bookings")
	}

	fired := 0
	for i := range due {
		b := &due[i]
		if err := s.store.MarkReminderSent(ctx, b.ID, now); err != nil {
			log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("Failed to mark reminder sent")
			continue
		}
		payload := automation.MarkReminder(automation.BookingPayload(b, &b.Contact))
		event := automation.NewEvent(models.TriggerBookingReminder, b.WorkspaceID, payload)
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("Failed to publish booking reminder")
			continue
		}
		fired++
	}
	if fired > 0 {
		s.collector.IncrementCounterBy("reminders_fired", int64(fired))
		log.Info().Int("count", fired).Msg("Booking reminders fired")
	}
	return fired, nil
}

// AutoCompleteSweep transitions confirmed bookings whose end time has passed
// to completed, emitting booking_completed for each. Lost version races mean
// someone else just transitioned the booking; those are skipped silently.
func (s *SweepService) AutoCompleteSweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	overdue, err := s.store.FindOverdue(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "auto-complete sweep failed to find overdue bookings")
	}

	completed := 0
	for i := range overdue {
		b := &overdue[i]
		if err := booking.ValidateTransition(b.Status, models.BookingCompleted); err != nil {
			continue
		}
		won, err := s.store.UpdateStatusVersioned(ctx, b, models.BookingCompleted, "")
		if err != nil {
			log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("Failed to auto-complete booking")
			continue
		}
		if !won {
			continue
		}
		event := automation.NewEvent(models.TriggerBookingCompleted, b.WorkspaceID,
			automation.BookingPayload(b, &b.Contact))
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("Failed to publish booking_completed")
		}
		completed++
	}
	if completed > 0 {
		s.collector.IncrementCounterBy("bookings_auto_completed", int64(completed))
		log.Info().Int("count", completed).Msg("Overdue bookings auto-completed")
	}
	return completed, nil
}
