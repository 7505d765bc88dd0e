package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/internal/automation"
	"example.com/careops/services/automation/internal/booking"
	"example.com/careops/services/automation/internal/cache"
	"example.com/careops/services/automation/internal/channels"
	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/models"
)

const scheduleCacheTTL = 5 * time.Minute

// EventPublisher hands domain events to the worker. The service bus
// implements it; tests swap in a recorder.
type EventPublisher interface {
	Publish(ctx context.Context, event models.DomainEvent) error
}

// WorkspaceStore is the booking service's view of workspaces.
type WorkspaceStore interface {
	GetBySlug(ctx context.Context, slug string) (*models.Workspace, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
}

// ContactStore resolves and reads contact identities.
type ContactStore interface {
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Contact, error)
	FindOrCreate(ctx context.Context, workspaceID uuid.UUID, fullName, email, phone string) (*models.Contact, bool, error)
}

// ServiceStore reads bookable services.
type ServiceStore interface {
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Service, error)
	ListActive(ctx context.Context, workspaceID uuid.UUID) ([]models.Service, error)
}

// HourStore reads and writes weekly schedules.
type HourStore interface {
	ForDay(ctx context.Context, workspaceID uuid.UUID, dayOfWeek int) ([]models.BusinessHour, error)
	ForWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.BusinessHour, error)
	ReplaceDay(ctx context.Context, workspaceID uuid.UUID, dayOfWeek int, rows []models.BusinessHour) error
}

// BookingStore is the booking service's persistence surface.
type BookingStore interface {
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.Booking, error)
	ListForWindow(ctx context.Context, workspaceID uuid.UUID, from, to time.Time) ([]models.Booking, error)
	CreateChecked(ctx context.Context, b *models.Booking) error
	UpdateStatusVersioned(ctx context.Context, b *models.Booking, target models.BookingStatus, notes string) (bool, error)
}

// InventoryStore reads and adjusts linked stock.
type InventoryStore interface {
	ForService(ctx context.Context, workspaceID, serviceID uuid.UUID) ([]models.InventoryItem, error)
	Deduct(ctx context.Context, itemID uuid.UUID, qty int) (*models.InventoryItem, error)
}

// ScheduleCache caches the read-heavy availability inputs. *cache.RedisCache
// satisfies it; a nil cache disables caching.
type ScheduleCache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CreateBookingInput is the public booking request after transport decoding.
type CreateBookingInput struct {
	FullName  string
	Email     string
	Phone     string
	ServiceID *uuid.UUID
	StartsAt  time.Time
	Notes     string
}

// BookingService owns the booking lifecycle: public creation, staff
// transitions, availability and schedules. Every state change emits its
// domain event best-effort; a dead bus never fails a booking.
type BookingService struct {
	workspaces WorkspaceStore
	contacts   ContactStore
	services   ServiceStore
	hours      HourStore
	bookings   BookingStore
	inventory  InventoryStore
	calendar   channels.CalendarConnector
	publisher  EventPublisher
	cache      ScheduleCache
	collector  *metrics.Metrics
	now        func() time.Time
}

// NewBookingService wires the booking service.
func NewBookingService(
	workspaces WorkspaceStore,
	contacts ContactStore,
	services ServiceStore,
	hours HourStore,
	bookings BookingStore,
	inventory InventoryStore,
	calendar channels.CalendarConnector,
	publisher EventPublisher,
	scheduleCache ScheduleCache,
	collector *metrics.Metrics,
) *BookingService {
	return &BookingService{
		workspaces: workspaces,
		contacts:   contacts,
		services:   services,
		hours:      hours,
		bookings:   bookings,
		inventory:  inventory,
		calendar:   calendar,
		publisher:  publisher,
		cache:      scheduleCache,
		collector:  collector,
		now:        time.Now,
	}
}

// CreatePublicBooking handles the public booking form: resolve the contact,
// re-check the slot transactionally, create the pending booking, deduct
// linked inventory and emit the lifecycle events.
func (s *BookingService) CreatePublicBooking(ctx context.Context, slug string, input CreateBookingInput) (*models.Booking, error) {
	if input.FullName == "" {
		return nil, models.NewValidationError("full_name", "is required")
	}
	if input.StartsAt.IsZero() {
		return nil, models.NewValidationError("starts_at", "is required")
	}
	startsAt := input.StartsAt.UTC()
	if !startsAt.After(s.now().UTC()) {
		return nil, models.NewValidationError("starts_at", "must be in the future")
	}

	ws, err := s.workspaceBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	durationMins := ws.SlotDurationMins
	if input.ServiceID != nil {
		svc, err := s.services.GetByID(ctx, ws.ID, *input.ServiceID)
		if err != nil {
			return nil, err
		}
		if !svc.IsActive {
			return nil, models.NewValidationError("service_id", "service is not bookable")
		}
		durationMins = svc.DurationMins
	}
	endsAt := startsAt.Add(time.Duration(durationMins) * time.Minute)

	hours, err := s.hours.ForDay(ctx, ws.ID, int(startsAt.Weekday()))
	if err != nil {
		return nil, err
	}
	if !withinBusinessHours(hours, startsAt, endsAt) {
		return nil, models.NewValidationError("starts_at", "outside business hours")
	}

	contact, created, err := s.contacts.FindOrCreate(ctx, ws.ID, input.FullName, input.Email, input.Phone)
	if err != nil {
		return nil, err
	}
	if created {
		s.publish(ctx, automation.NewEvent(models.TriggerNewLead, ws.ID, automation.ContactPayload(contact)))
	}

	b := &models.Booking{
		ID:          uuid.New(),
		WorkspaceID: ws.ID,
		ContactID:   contact.ID,
		ServiceID:   input.ServiceID,
		Status:      models.BookingPending,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Notes:       input.Notes,
		Version:     1,
	}
	if err := s.bookings.CreateChecked(ctx, b); err != nil {
		return nil, err
	}
	b.Contact = *contact
	s.collector.IncrementCounter("bookings_created")

	if input.ServiceID != nil {
		s.deductInventory(ctx, ws.ID, *input.ServiceID)
	}

	s.publish(ctx, automation.NewEvent(models.TriggerBookingCreated, ws.ID, automation.BookingPayload(b, contact)))
	return b, nil
}

// Transition moves a booking to target through the state machine. A lost
// version race surfaces as a StaleEntityError so the caller re-reads and
// retries with current state.
func (s *BookingService) Transition(ctx context.Context, workspaceID, bookingID uuid.UUID, target models.BookingStatus, notes string) (*models.Booking, error) {
	if !target.Valid() {
		return nil, models.NewValidationError("status", "unknown status "+string(target))
	}
	b, err := s.bookings.GetByID(ctx, workspaceID, bookingID)
	if err != nil {
		return nil, err
	}
	if err := booking.ValidateTransition(b.Status, target); err != nil {
		return nil, err
	}

	won, err := s.bookings.UpdateStatusVersioned(ctx, b, target, notes)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, &models.StaleEntityError{Entity: "booking", Reason: "a concurrent transition won"}
	}
	s.collector.IncrementCounter("bookings_" + string(target))

	if target == models.BookingCancelled && b.CalendarEventRef != nil && s.calendar != nil {
		if err := s.calendar.DeleteEvent(ctx, *b.CalendarEventRef); err != nil {
			log.Warn().Err(err).
				Str("booking_id", b.ID.String()).
				Msg("Failed to remove calendar event for cancelled booking")
		}
	}

	if trigger, ok := booking.EventFor(target); ok {
		s.publish(ctx, automation.NewEvent(trigger, workspaceID, automation.BookingPayload(b, &b.Contact)))
	}
	return b, nil
}

// GetBooking loads one booking.
func (s *BookingService) GetBooking(ctx context.Context, workspaceID, bookingID uuid.UUID) (*models.Booking, error) {
	return s.bookings.GetByID(ctx, workspaceID, bookingID)
}

// ListBookings lists a workspace's bookings, newest start first.
func (s *BookingService) ListBookings(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.bookings.List(ctx, workspaceID, limit)
}

// AvailableSlots computes the bookable slots for one date on the public
// booking page.
func (s *BookingService) AvailableSlots(ctx context.Context, slug string, date time.Time, serviceID *uuid.UUID) ([]booking.Slot, error) {
	ws, err := s.workspaceBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	durationMins := ws.SlotDurationMins
	if serviceID != nil {
		svc, err := s.services.GetByID(ctx, ws.ID, *serviceID)
		if err != nil {
			return nil, err
		}
		durationMins = svc.DurationMins
	}

	hours, err := s.schedule(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	day := int(date.UTC().Weekday())
	dayHours := hours[:0:0]
	for _, h := range hours {
		if h.DayOfWeek == day {
			dayHours = append(dayHours, h)
		}
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	existing, err := s.bookings.ListForWindow(ctx, ws.ID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}

	return booking.AvailableSlots(date.UTC(), dayHours, existing, durationMins, s.now().UTC()), nil
}

// ListServices lists the workspace's bookable services.
func (s *BookingService) ListServices(ctx context.Context, slug string) ([]models.Service, error) {
	ws, err := s.workspaceBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.services.ListActive(ctx, ws.ID)
}

// GetSchedule returns the full weekly schedule.
func (s *BookingService) GetSchedule(ctx context.Context, workspaceID uuid.UUID) ([]models.BusinessHour, error) {
	return s.hours.ForWorkspace(ctx, workspaceID)
}

// ReplaceScheduleDay swaps one weekday's schedule and invalidates the cached
// copy so availability reflects it immediately.
func (s *BookingService) ReplaceScheduleDay(ctx context.Context, workspaceID uuid.UUID, dayOfWeek int, rows []models.BusinessHour) error {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return models.NewValidationError("day_of_week", "must be 0 through 6")
	}
	for _, row := range rows {
		if !row.IsOpen {
			continue
		}
		if _, _, err := booking.ParseClock(row.OpenTime); err != nil {
			return models.NewValidationError("open_time", err.Error())
		}
		if _, _, err := booking.ParseClock(row.CloseTime); err != nil {
			return models.NewValidationError("close_time", err.Error())
		}
	}
	if err := s.hours.ReplaceDay(ctx, workspaceID, dayOfWeek, rows); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.GetScheduleCacheKey(workspaceID)); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate schedule cache")
		}
	}
	return nil
}

// schedule loads the weekly schedule through the cache.
func (s *BookingService) schedule(ctx context.Context, workspaceID uuid.UUID) ([]models.BusinessHour, error) {
	key := cache.GetScheduleCacheKey(workspaceID)
	if s.cache != nil {
		var cached []models.BusinessHour
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}
	hours, err := s.hours.ForWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, hours, scheduleCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache schedule")
		}
	}
	return hours, nil
}

func (s *BookingService) workspaceBySlug(ctx context.Context, slug string) (*models.Workspace, error) {
	if slug == "" {
		return nil, models.NewValidationError("workspace", "slug is required")
	}
	key := cache.GetWorkspaceSlugCacheKey(slug)
	if s.cache != nil {
		var cached models.Workspace
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}
	ws, err := s.workspaces.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, ws, scheduleCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache workspace")
		}
	}
	return ws, nil
}

// deductInventory applies the per-booking stock deduction and fires
// inventory_low for items that cross their reorder threshold. Inventory
// problems never fail the booking.
func (s *BookingService) deductInventory(ctx context.Context, workspaceID, serviceID uuid.UUID) {
	items, err := s.inventory.ForService(ctx, workspaceID, serviceID)
	if err != nil {
		log.Error().Err(err).Str("service_id", serviceID.String()).Msg("Failed to load linked inventory")
		return
	}
	for _, item := range items {
		if item.DeductPerBooking <= 0 {
			continue
		}
		updated, err := s.inventory.Deduct(ctx, item.ID, item.DeductPerBooking)
		if err != nil {
			log.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to deduct inventory")
			continue
		}
		if updated.Quantity <= updated.ReorderThreshold {
			s.publish(ctx, automation.NewEvent(models.TriggerInventoryLow, workspaceID, automation.InventoryPayload(updated)))
		}
	}
}

// publish emits one event, logging instead of failing when the bus is down.
func (s *BookingService) publish(ctx context.Context, event models.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.collector.IncrementCounter("events_publish_failed")
		log.Error().Err(err).
			Str("trigger", string(event.Trigger)).
			Str("workspace_id", event.WorkspaceID.String()).
			Msg("Failed to publish domain event")
		return
	}
	s.collector.IncrementCounter("events_published")
}

// withinBusinessHours reports whether [startsAt, endsAt) fits one open block.
func withinBusinessHours(hours []models.BusinessHour, startsAt, endsAt time.Time) bool {
	dayStart := time.Date(startsAt.Year(), startsAt.Month(), startsAt.Day(), 0, 0, 0, 0, time.UTC)
	for _, block := range hours {
		if !block.IsOpen {
			continue
		}
		openH, openM, err := booking.ParseClock(block.OpenTime)
		if err != nil {
			continue
		}
		closeH, closeM, err := booking.ParseClock(block.CloseTime)
		if err != nil {
			continue
		}
		blockStart := dayStart.Add(time.Duration(openH)*time.Hour + time.Duration(openM)*time.Minute)
		blockEnd := dayStart.Add(time.Duration(closeH)*time.Hour + time.Duration(closeM)*time.Minute)
		if !startsAt.Before(blockStart) && !endsAt.After(blockEnd) {
			return true
		}
	}
	return false
}
