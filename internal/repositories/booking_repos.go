package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/careops/services/automation/internal/models"
)

// WorkspaceRepository provides access to workspace data.
type WorkspaceRepository struct {
	db *gorm.DB
}

// NewWorkspaceRepository creates a new workspace repository.
func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// GetBySlug gets a workspace by its public slug.
func (r *WorkspaceRepository) GetBySlug(ctx context.Context, slug string) (*models.Workspace, error) {
	var ws models.Workspace
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Entity: "workspace", ID: slug}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get workspace by slug")
	}
	return &ws, nil
}

// GetByID gets a workspace by ID.
func (r *WorkspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var ws models.Workspace
	err := r.db.WithContext(ctx).First(&ws, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Entity: "workspace", ID: id.String()}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get workspace by ID")
	}
	return &ws, nil
}

// ContactRepository provides access to contact identities.
type ContactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new contact repository.
func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// GetByID gets a contact by ID within a workspace.
func (r *ContactRepository) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Entity: "contact", ID: id.String()}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get contact by ID")
	}
	return &contact, nil
}

// FindOrCreate resolves a contact by phone first, then email, creating one
// when neither matches. A found contact gains any identity field it was
// missing. The second return reports whether the contact is new, which is
// what fires the new_lead trigger upstream.
func (r *ContactRepository) FindOrCreate(ctx context.Context, workspaceID uuid.UUID, fullName, email, phone string) (*models.Contact, bool, error) {
	var contact models.Contact
	query := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	switch {
	case phone != "":
		query = query.Where("phone = ?", phone)
	case email != "":
		query = query.Where("email = ?", email)
	default:
		return nil, false, models.NewValidationError("contact", "phone or email is required")
	}

	err := query.First(&contact).Error
	if err == nil {
		updates := map[string]interface{}{}
		if contact.Email == "" && email != "" {
			updates["email"] = email
		}
		if contact.Phone == "" && phone != "" {
			updates["phone"] = phone
		}
		if contact.FullName == "" && fullName != "" {
			updates["full_name"] = fullName
		}
		if len(updates) > 0 {
			if err := r.db.WithContext(ctx).Model(&contact).Updates(updates).Error; err != nil {
				return nil, false, errors.Wrap(err, "failed to backfill contact identity")
			}
		}
		return &contact, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "failed to look up contact")
	}

	contact = models.Contact{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		FullName:    fullName,
		Email:       email,
		Phone:       phone,
	}
	if err := r.db.WithContext(ctx).Create(&contact).Error; err != nil {
		return nil, false, errors.Wrap(err, "failed to create contact")
	}
	return &contact, true, nil
}

// ServiceRepository provides access to bookable services.
type ServiceRepository struct {
	db *gorm.DB
}

// NewServiceRepository creates a new service repository.
func NewServiceRepository(db *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// GetByID gets a service by ID within a workspace.
func (r *ServiceRepository) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Service, error) {
	var svc models.Service
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		First(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Entity: "service", ID: id.String()}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get service by ID")
	}
	return &svc, nil
}

// ListActive lists a workspace's active services ordered by name.
func (r *ServiceRepository) ListActive(ctx context.Context, workspaceID uuid.UUID) ([]models.Service, error) {
	var services []models.Service
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND is_active = ?", workspaceID, true).
		Order("name").
		Find(&services).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list services")
	}
	return services, nil
}

// BusinessHourRepository provides access to weekly schedules.
type BusinessHourRepository struct {
	db *gorm.DB
}

// NewBusinessHourRepository creates a new business-hours repository.
func NewBusinessHourRepository(db *gorm.DB) *BusinessHourRepository {
	return &BusinessHourRepository{db: db}
}

// ForDay returns the schedule rows for one weekday.
func (r *BusinessHourRepository) ForDay(ctx context.Context, workspaceID uuid.UUID, dayOfWeek int) ([]models.BusinessHour, error) {
	var hours []models.BusinessHour
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND day_of_week = ?", workspaceID, dayOfWeek).
		Order("open_time").
		Find(&hours).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get business hours for day")
	}
	return hours, nil
}

// ForWorkspace returns the full weekly schedule.
func (r *BusinessHourRepository) ForWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.BusinessHour, error) {
	var hours []models.BusinessHour
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("day_of_week, open_time").
		Find(&hours).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get business hours")
	}
	return hours, nil
}

// ReplaceDay swaps one weekday's schedule rows atomically.
func (r *BusinessHourRepository) ReplaceDay(ctx context.Context, workspaceID uuid.UUID, dayOfWeek int, rows []models.BusinessHour) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workspace_id = ? AND day_of_week = ?", workspaceID, dayOfWeek).
			Delete(&models.BusinessHour{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear business hours")
		}
		for i := range rows {
			rows[i].ID = uuid.New()
			rows[i].WorkspaceID = workspaceID
			rows[i].DayOfWeek = dayOfWeek
			if err := tx.Create(&rows[i]).Error; err != nil {
				return errors.Wrap(err, "failed to insert business hours")
			}
		}
		return nil
	})
}

// BookingRepository provides access to bookings.
type BookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// GetByID gets a booking with its contact preloaded.
func (r *BookingRepository) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := r.db.WithContext(ctx).
		Preload("Contact").
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Entity: "booking", ID: id.String()}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get booking by ID")
	}
	return &b, nil
}

// ListForWindow lists bookings whose start falls in [from, to).
func (r *BookingRepository) ListForWindow(ctx context.Context, workspaceID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND starts_at >= ? AND starts_at < ?", workspaceID, from, to).
		Order("starts_at").
		Find(&bookings).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bookings for window")
	}
	return bookings, nil
}

// List lists a workspace's bookings, newest start first.
func (r *BookingRepository) List(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Contact").
		Where("workspace_id = ?", workspaceID).
		Order("starts_at DESC").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bookings")
	}
	return bookings, nil
}

// CreateChecked inserts the booking after re-validating the slot inside the
// same transaction. The workspace row is locked first, so two concurrent
// requests for the same slot serialize here and the loser sees the winner's
// row: it gets a SlotConflictError and must re-fetch availability.
func (r *BookingRepository) CreateChecked(ctx context.Context, b *models.Booking) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ws models.Workspace
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ws, "id = ?", b.WorkspaceID).Error; err != nil {
			return errors.Wrap(err, "failed to lock workspace")
		}

		var count int64
		err := tx.Model(&models.Booking{}).
			Where("workspace_id = ? AND status <> ? AND starts_at < ? AND ends_at > ?",
				b.WorkspaceID, models.BookingCancelled, b.EndsAt, b.StartsAt).
			Count(&count).Error
		if err != nil {
			return errors.Wrap(err, "failed to check for slot conflicts")
		}
		if count > 0 {
			return &models.SlotConflictError{
				StartsAt: b.StartsAt.UTC().Format(time.RFC3339),
				EndsAt:   b.EndsAt.UTC().Format(time.RFC3339),
			}
		}

		if err := tx.Create(b).Error; err != nil {
			return errors.Wrap(err, "failed to create booking")
		}
		return nil
	})
}

// UpdateStatusVersioned applies a status change guarded by the optimistic
// version column. Returns false when another transition won the race.
func (r *BookingRepository) UpdateStatusVersioned(ctx context.Context, b *models.Booking, target models.BookingStatus, notes string) (bool, error) {
	updates := map[string]interface{}{
		"status":  target,
		"version": b.Version + 1,
	}
	if notes != "" {
		updates["notes"] = notes
	}
	result := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND version = ?", b.ID, b.Version).
		Updates(updates)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to update booking status")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	b.Status = target
	b.Version++
	if notes != "" {
		b.Notes = notes
	}
	return true, nil
}

// SetCalendarEventRef records the external calendar event for a booking.
func (r *BookingRepository) SetCalendarEventRef(ctx context.Context, bookingID uuid.UUID, ref *string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Update("calendar_event_ref", ref).Error
	return errors.Wrap(err, "failed to set calendar event ref")
}

// FindDueReminders returns confirmed bookings starting within the lead
// window that have not been reminded yet.
func (r *BookingRepository) FindDueReminders(ctx context.Context, now time.Time, lead time.Duration, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Contact").
		Where("status = ? AND reminder_sent_at IS NULL AND starts_at > ? AND starts_at <= ?",
			models.BookingConfirmed, now, now.Add(lead)).
		Order("starts_at").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find due reminders")
	}
	return bookings, nil
}

// MarkReminderSent stamps the reminder marker so the sweep never fires
// twice for one booking.
func (r *BookingRepository) MarkReminderSent(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND reminder_sent_at IS NULL", bookingID).
		Update("reminder_sent_at", at).Error
	return errors.Wrap(err, "failed to mark reminder sent")
}

// FindOverdue returns confirmed bookings whose end time has passed, for the
// auto-complete sweep.
func (r *BookingRepository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Contact").
		Where("status = ? AND ends_at < ?", models.BookingConfirmed, now).
		Order("ends_at").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find overdue bookings")
	}
	return bookings, nil
}
