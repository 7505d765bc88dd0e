package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Workspace is the tenant boundary. Every other row is scoped to one.
type Workspace struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
	Name             string         `gorm:"not null" json:"name"`
	Slug             string         `gorm:"not null;uniqueIndex" json:"slug"`
	SlotDurationMins int            `gorm:"not null;default:30" json:"slot_duration_mins"`
}

// Contact is an identity resolved by phone or email, used for template
// interpolation and suppression keying.
type Contact struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	FullName    string         `gorm:"not null" json:"full_name"`
	Email       string         `gorm:"index" json:"email"`
	Phone       string         `gorm:"index" json:"phone"`
}

// Service is a bookable offering with a fixed duration.
type Service struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	WorkspaceID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Name         string         `gorm:"not null" json:"name"`
	DurationMins int            `gorm:"not null" json:"duration_mins"`
	PriceCents   int64          `gorm:"not null;default:0" json:"price_cents"`
	IsActive     bool           `gorm:"not null;default:true" json:"is_active"`
}

// BusinessHour is one open/close range for one weekday. A weekday may carry
// several non-overlapping ranges; is_open=false marks the whole day closed.
// DayOfWeek follows time.Weekday (0=Sunday).
type BusinessHour struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	DayOfWeek   int            `gorm:"not null" json:"day_of_week"`
	IsOpen      bool           `gorm:"not null;default:true" json:"is_open"`
	OpenTime    string         `gorm:"not null" json:"open_time"`  // "09:00"
	CloseTime   string         `gorm:"not null" json:"close_time"` // "17:00"
}

// Booking is the central lifecycle entity. Status changes only through the
// state machine; Version guards concurrent transitions optimistically.
type Booking struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
	WorkspaceID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	ContactID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"contact_id"`
	ServiceID        *uuid.UUID     `gorm:"type:uuid" json:"service_id"`
	Status           BookingStatus  `gorm:"not null;default:pending;index" json:"status"`
	StartsAt         time.Time      `gorm:"not null;index" json:"starts_at"`
	EndsAt           time.Time      `gorm:"not null" json:"ends_at"`
	Notes            string         `json:"notes"`
	CalendarEventRef *string        `json:"calendar_event_ref"`
	ReminderSentAt   *time.Time     `json:"reminder_sent_at"`
	Version          int64          `gorm:"not null;default:1" json:"version"`
	Contact          Contact        `gorm:"foreignKey:ContactID" json:"-"`
}

// RuleConfig is the per-action configuration of an automation rule, stored
// as a JSONB column.
type RuleConfig struct {
	Subject      string `json:"subject,omitempty"`
	Body         string `json:"body,omitempty"`
	Message      string `json:"message,omitempty"`
	Template     string `json:"template,omitempty"`
	Channel      string `json:"channel,omitempty"`
	DelayMinutes int    `json:"delay_minutes"`
	HoursBefore  int    `json:"hours_before,omitempty"`
	IsReminder   bool   `json:"is_reminder,omitempty"`
	IsSystemRule bool   `json:"is_system_rule,omitempty"`
}

// Value implements driver.Valuer so GORM stores the config as JSONB.
func (c RuleConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *RuleConfig) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = RuleConfig{}
		return nil
	}
	return errors.Errorf("cannot scan %T into RuleConfig", src)
}

// AutomationRule binds exactly one trigger to one action within a workspace.
// Rules are soft-disabled via IsActive, never hard-deleted while logs
// reference them. Seq preserves insertion order so rule effects are
// deterministic for a given event.
type AutomationRule struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Seq         int64          `gorm:"autoIncrement;uniqueIndex" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Trigger     Trigger        `gorm:"not null;index" json:"trigger"`
	Action      Action         `gorm:"not null" json:"action"`
	Config      RuleConfig     `gorm:"type:jsonb" json:"config"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
}

// AutomationLog is the append-only audit trail: exactly one row per executed
// action attempt batch, plus rows for rules evaluated but suppressed or
// skipped. Rows are never mutated after insert.
type AutomationLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RuleID         uuid.UUID `gorm:"type:uuid;not null;index" json:"rule_id"`
	WorkspaceID    uuid.UUID `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Status         LogStatus `gorm:"not null" json:"status"`
	TriggerPayload []byte    `gorm:"type:jsonb" json:"trigger_payload"`
	ActionResult   []byte    `gorm:"type:jsonb" json:"action_result"`
	Reason         string    `json:"reason,omitempty"`
	ErrorSummary   string    `json:"error_summary,omitempty"`
	ExecutedAt     time.Time `gorm:"autoCreateTime;index:,sort:desc" json:"executed_at"`
}

// ScheduledJob is a delayed automation job persisted so it survives process
// restarts. ClaimedAt is the compare-and-swap marker that prevents double
// execution when multiple workers poll concurrently.
type ScheduledJob struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	WorkspaceID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"workspace_id"`
	RuleID         uuid.UUID  `gorm:"type:uuid;not null" json:"rule_id"`
	Trigger        Trigger    `gorm:"not null" json:"trigger"`
	Payload        []byte     `gorm:"type:jsonb" json:"payload"`
	ResolvedConfig RuleConfig `gorm:"type:jsonb" json:"resolved_config"`
	RunAt          time.Time  `gorm:"not null;index" json:"run_at"`
	ClaimedAt      *time.Time `json:"claimed_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// SuppressionFlag pauses automation for one contact's conversation once a
// staff member has intervened. Cleared by explicit resume or by TTL expiry.
type SuppressionFlag struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index:idx_suppression_contact" json:"workspace_id"`
	ContactID   uuid.UUID `gorm:"type:uuid;not null;index:idx_suppression_contact" json:"contact_id"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	SetAt       time.Time `gorm:"not null" json:"set_at"`
}

// InventoryItem is stock deducted when a linked service is booked. Falling
// to or below ReorderThreshold fires the inventory_low trigger.
type InventoryItem struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
	WorkspaceID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	ServiceID        *uuid.UUID     `gorm:"type:uuid;index" json:"service_id"`
	Name             string         `gorm:"not null" json:"name"`
	Unit             string         `gorm:"not null;default:unit" json:"unit"`
	Quantity         int            `gorm:"not null;default:0" json:"quantity"`
	DeductPerBooking int            `gorm:"not null;default:1" json:"deduct_per_booking"`
	ReorderThreshold int            `gorm:"not null;default:0" json:"reorder_threshold"`
}

// Form is a distributable intake/feedback form. Only the link target lives
// here; form building and rendering belong to the presentation layer.
type Form struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Title       string         `gorm:"not null" json:"title"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
}

// FormSubmission records one contact's answer set for a form.
type FormSubmission struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;not null;index" json:"workspace_id"`
	FormID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"form_id"`
	ContactID   *uuid.UUID `gorm:"type:uuid" json:"contact_id"`
	Answers     []byte     `gorm:"type:jsonb" json:"answers"`
}

// Notification is an in-app notification row, the concrete target of the
// notify_owner / send_notification actions.
type Notification struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Message     string     `gorm:"not null" json:"message"`
	ReadAt      *time.Time `json:"read_at"`
}

// DomainEvent is the ephemeral unit flowing from state changes to the rule
// engine. It is never persisted directly; only its effects are.
type DomainEvent struct {
	Trigger     Trigger           `json:"trigger"`
	WorkspaceID uuid.UUID         `json:"workspace_id"`
	Payload     map[string]string `json:"payload"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// ContactID returns the contact the event concerns, if the payload carries
// one. Suppression is keyed on this.
func (e DomainEvent) ContactID() (uuid.UUID, bool) {
	raw, ok := e.Payload["contact_id"]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// SetupModels configures GORM models and runs migrations.
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Workspace{},
		&Contact{},
		&Service{},
		&BusinessHour{},
		&Booking{},
		&AutomationRule{},
		&AutomationLog{},
		&ScheduledJob{},
		&SuppressionFlag{},
		&InventoryItem{},
		&Form{},
		&FormSubmission{},
		&Notification{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
