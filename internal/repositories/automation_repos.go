package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/careops/services/automation/internal/models"
)

// RuleRepository provides access to automation rules.
type RuleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create inserts a rule. Trigger and action must already be validated
// against the closed enumerations.
func (r *RuleRepository) Create(ctx context.Context, rule *models.AutomationRule) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(rule).Error, "failed to create rule")
}

// Update persists changed rule fields.
func (r *RuleRepository) Update(ctx context.Context, rule *models.AutomationRule) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(rule).Error, "failed to update rule")
}

// GetByID gets a rule by ID within a workspace.
func (r *RuleRepository) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Entity: "automation rule", ID: id.String()}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rule by ID")
	}
	return &rule, nil
}

// List lists all rules for a workspace in insertion order.
func (r *RuleRepository) List(ctx context.Context, workspaceID uuid.UUID) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("seq").
		Find(&rules).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list rules")
	}
	return rules, nil
}

// FindActive returns the active rules for one trigger in insertion order,
// so effects are deterministic for a given event.
func (r *RuleRepository) FindActive(ctx context.Context, workspaceID uuid.UUID, trigger models.Trigger) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND trigger = ? AND is_active = ?", workspaceID, trigger, true).
		Order("seq").
		Find(&rules).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active rules")
	}
	return rules, nil
}

// LogRepository provides access to the append-only automation log.
type LogRepository struct {
	db *gorm.DB
}

// NewLogRepository creates a new log repository.
func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Append writes one execution record. Rows are never updated afterwards.
func (r *LogRepository) Append(ctx context.Context, entry *models.AutomationLog) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(entry).Error, "failed to append automation log")
}

// List returns log rows newest first.
func (r *LogRepository) List(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.AutomationLog, error) {
	var logs []models.AutomationLog
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("executed_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list automation logs")
	}
	return logs, nil
}

// JobRepository provides access to persisted delayed jobs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Schedule persists a delayed job so it survives process restarts.
func (r *JobRepository) Schedule(ctx context.Context, job *models.ScheduledJob) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(job).Error, "failed to schedule job")
}

// ClaimLease bounds how long a claim may sit without completion before the
// job becomes claimable again. Covers a worker that crashes between claiming
// and completing, and lets jobs deferred after a transient failure retry.
const ClaimLease = 10 * time.Minute

// ClaimDue claims up to limit due jobs. Each claim is a compare-and-swap on
// claimed_at, so concurrent pollers never execute the same job twice: only
// the poller whose UPDATE matched the claimable row wins it. A claim older
// than ClaimLease on an uncompleted job is stale and may be taken over.
func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error) {
	cutoff := now.Add(-ClaimLease)

	var candidates []models.ScheduledJob
	err := r.db.WithContext(ctx).
		Where("run_at <= ? AND completed_at IS NULL AND (claimed_at IS NULL OR claimed_at < ?)", now, cutoff).
		Order("run_at").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find due jobs")
	}

	claimed := make([]models.ScheduledJob, 0, len(candidates))
	for _, job := range candidates {
		result := r.db.WithContext(ctx).
			Model(&models.ScheduledJob{}).
			Where("id = ? AND completed_at IS NULL AND (claimed_at IS NULL OR claimed_at < ?)", job.ID, cutoff).
			Update("claimed_at", now)
		if result.Error != nil {
			return nil, errors.Wrap(result.Error, "failed to claim job")
		}
		if result.RowsAffected == 1 {
			job.ClaimedAt = &now
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

// MarkCompleted stamps a claimed job as done.
func (r *JobRepository) MarkCompleted(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.ScheduledJob{}).
		Where("id = ?", jobID).
		Update("completed_at", at).Error
	return errors.Wrap(err, "failed to mark job completed")
}

// SuppressionRepository provides access to per-contact suppression flags.
type SuppressionRepository struct {
	db *gorm.DB
}

// NewSuppressionRepository creates a new suppression repository.
func NewSuppressionRepository(db *gorm.DB) *SuppressionRepository {
	return &SuppressionRepository{db: db}
}

// Set activates suppression for a contact, upserting the flag row.
func (r *SuppressionRepository) Set(ctx context.Context, workspaceID, contactID uuid.UUID, at time.Time) error {
	var flag models.SuppressionFlag
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND contact_id = ?", workspaceID, contactID).
		First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		flag = models.SuppressionFlag{
			ID:          uuid.New(),
			WorkspaceID: workspaceID,
			ContactID:   contactID,
			Active:      true,
			SetAt:       at,
		}
		return errors.Wrap(r.db.WithContext(ctx).Create(&flag).Error, "failed to create suppression flag")
	}
	if err != nil {
		return errors.Wrap(err, "failed to look up suppression flag")
	}
	err = r.db.WithContext(ctx).
		Model(&flag).
		Updates(map[string]interface{}{"active": true, "set_at": at}).Error
	return errors.Wrap(err, "failed to activate suppression flag")
}

// Clear deactivates suppression for a contact.
func (r *SuppressionRepository) Clear(ctx context.Context, workspaceID, contactID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.SuppressionFlag{}).
		Where("workspace_id = ? AND contact_id = ?", workspaceID, contactID).
		Update("active", false).Error
	return errors.Wrap(err, "failed to clear suppression flag")
}

// IsActive reports whether automation is suppressed for the contact. A
// non-zero ttl treats flags older than it as expired.
func (r *SuppressionRepository) IsActive(ctx context.Context, workspaceID, contactID uuid.UUID, ttl time.Duration, now time.Time) (bool, error) {
	var flag models.SuppressionFlag
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND contact_id = ? AND active = ?", workspaceID, contactID, true).
		First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to check suppression flag")
	}
	if ttl > 0 && now.Sub(flag.SetAt) > ttl {
		return false, nil
	}
	return true, nil
}

// InventoryRepository provides access to stock levels.
type InventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository creates a new inventory repository.
func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// ForService returns the items deducted when the service is booked.
func (r *InventoryRepository) ForService(ctx context.Context, workspaceID, serviceID uuid.UUID) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND service_id = ?", workspaceID, serviceID).
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get inventory for service")
	}
	return items, nil
}

// Deduct atomically decrements an item's stock and returns the fresh row.
func (r *InventoryRepository) Deduct(ctx context.Context, itemID uuid.UUID, qty int) (*models.InventoryItem, error) {
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ?", itemID).
		Update("quantity", gorm.Expr("quantity - ?", qty)).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to deduct inventory")
	}
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, errors.Wrap(err, "failed to reload inventory item")
	}
	return &item, nil
}

// FormRepository provides access to forms and submissions.
type FormRepository struct {
	db *gorm.DB
}

// NewFormRepository creates a new form repository.
func NewFormRepository(db *gorm.DB) *FormRepository {
	return &FormRepository{db: db}
}

// GetByID gets a form by ID.
func (r *FormRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Form, error) {
	var form models.Form
	err := r.db.WithContext(ctx).First(&form, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Entity: "form", ID: id.String()}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get form by ID")
	}
	return &form, nil
}

// FindActive picks the workspace form to distribute, preferring a title
// matching the template hint and falling back to the first active one.
func (r *FormRepository) FindActive(ctx context.Context, workspaceID uuid.UUID, templateHint string) (*models.Form, error) {
	var forms []models.Form
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND is_active = ?", workspaceID, true).
		Order("created_at").
		Limit(5).
		Find(&forms).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active forms")
	}
	if len(forms) == 0 {
		return nil, nil
	}
	if templateHint != "" {
		for i := range forms {
			if containsFold(forms[i].Title, templateHint) {
				return &forms[i], nil
			}
		}
	}
	return &forms[0], nil
}

// CreateSubmission records one form submission.
func (r *FormRepository) CreateSubmission(ctx context.Context, sub *models.FormSubmission) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(sub).Error, "failed to create form submission")
}

// HasSubmission reports whether the contact already answered the form.
func (r *FormRepository) HasSubmission(ctx context.Context, formID, contactID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FormSubmission{}).
		Where("form_id = ? AND contact_id = ?", formID, contactID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check form submissions")
	}
	return count > 0, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// NotificationRepository provides access to in-app notifications.
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts one notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(n).Error, "failed to create notification")
}
