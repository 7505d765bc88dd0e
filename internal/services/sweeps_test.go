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

type MockSweepStore struct {
	mock.Mock
}

func (m *MockSweepStore) FindDueReminders(ctx context.Context, now time.Time, lead time.Duration, limit int) ([]models.Booking, error) {
	args := m.Called(ctx, now, lead, limit)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockSweepStore) MarkReminderSent(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, bookingID, at)
	return args.Error(0)
}

func (m *MockSweepStore) FindOverdue(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockSweepStore) UpdateStatusVersioned(ctx context.Context, b *models.Booking, target models.BookingStatus, notes string) (bool, error) {
	args := m.Called(ctx, b, target, notes)
	return args.Bool(0), args.Error(1)
}

func confirmedBooking(ws uuid.UUID, startsAt time.Time) models.Booking {
	return models.Booking{
		ID:          uuid.New(),
		WorkspaceID: ws,
		Status:      models.BookingConfirmed,
		StartsAt:    startsAt,
		EndsAt:      startsAt.Add(time.Hour),
		Version:     2,
		Contact:     models.Contact{ID: uuid.New(), FullName: "Amina Diallo", Email: "amina@example.com"},
	}
}

func TestReminderSweepMarksThenPublishes(t *testing.T) {
	ws := uuid.New()
	b := confirmedBooking(ws, bookingDay(10, 0))

	store := new(MockSweepStore)
	store.On("FindDueReminders", mock.Anything, mock.Anything, 24*time.Hour, sweepBatchSize).
		Return([]models.Booking{b}, nil)
	store.On("MarkReminderSent", mock.Anything, b.ID, mock.Anything).Return(nil)

	publisher := &eventRecorder{}
	svc := NewSweepService(store, publisher, metrics.NewMetrics(), 24*time.Hour)

	fired, err := svc.ReminderSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	store.AssertExpectations(t)
	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	require.Equal(t, models.TriggerBookingReminder, event.Trigger)
	require.Equal(t, b.ID.String(), event.Payload["booking_id"])

	// The reminder marker lets reminder-only rules fire.
	require.Equal(t, "true", event.Payload["_is_reminder"])
}

func TestReminderSweepSkipsBookingWhenMarkFails(t *testing.T) {
	ws := uuid.New()
	b := confirmedBooking(ws, bookingDay(10, 0))

	store := new(MockSweepStore)
	store.On("FindDueReminders", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Booking{b}, nil)
	store.On("MarkReminderSent", mock.Anything, b.ID, mock.Anything).
		Return(context.DeadlineExceeded)

	publisher := &eventRecorder{}
	svc := NewSweepService(store, publisher, metrics.NewMetrics(), 24*time.Hour)

	fired, err := svc.ReminderSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, fired)
	require.Empty(t, publisher.events)
}

func TestAutoCompleteSweepTransitionsOverdue(t *testing.T) {
	ws := uuid.New()
	b := confirmedBooking(ws, bookingDay(8, 0))

	store := new(MockSweepStore)
	store.On("FindOverdue", mock.Anything, mock.Anything, sweepBatchSize).
		Return([]models.Booking{b}, nil)
	store.On("UpdateStatusVersioned", mock.Anything, mock.AnythingOfType("*models.Booking"), models.BookingCompleted, "").
		Return(true, nil)

	publisher := &eventRecorder{}
	svc := NewSweepService(store, publisher, metrics.NewMetrics(), 24*time.Hour)

	completed, err := svc.AutoCompleteSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, completed)

	require.Len(t, publisher.events, 1)
	require.Equal(t, models.TriggerBookingCompleted, publisher.events[0].Trigger)
	require.Equal(t, b.ID.String(), publisher.events[0].Payload["booking_id"])
}

func TestAutoCompleteSweepSkipsLostRace(t *testing.T) {
	ws := uuid.New()
	b := confirmedBooking(ws, bookingDay(8, 0))

	store := new(MockSweepStore)
	store.On("FindOverdue", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Booking{b}, nil)
	store.On("UpdateStatusVersioned", mock.Anything, mock.AnythingOfType("*models.Booking"), models.BookingCompleted, "").
		Return(false, nil)

	publisher := &eventRecorder{}
	svc := NewSweepService(store, publisher, metrics.NewMetrics(), 24*time.Hour)

	completed, err := svc.AutoCompleteSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, completed)
	require.Empty(t, publisher.events)
}

func TestAutoCompleteSweepIgnoresNonConfirmed(t *testing.T) {
	ws := uuid.New()
	b := confirmedBooking(ws, bookingDay(8, 0))
	b.Status = models.BookingCancelled

	store := new(MockSweepStore)
	store.On("FindOverdue", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Booking{b}, nil)

	publisher := &eventRecorder{}
	svc := NewSweepService(store, publisher, metrics.NewMetrics(), 24*time.Hour)

	completed, err := svc.AutoCompleteSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, completed)
	store.AssertNotCalled(t, "UpdateStatusVersioned", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
