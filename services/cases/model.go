package cases

import (
	"time"

	"github.com/google/uuid"
)

// Warning is a moderator-issued warning against a user. Status moves only
// through StateMachine transitions; warnings referenced by an appeal are
// never hard-deleted.
type Warning struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectUserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"subject_user_id"`
	IssuerModeratorID uuid.UUID  `gorm:"type:uuid;not null;index" json:"issuer_moderator_id"`
	Level             int        `gorm:"not null" json:"level"`
	Reason            string     `gorm:"type:text;not null" json:"reason"`
	Status            string     `gorm:"type:text;not null;index" json:"status"`
	ExpiresAt         *time.Time `gorm:"type:timestamptz" json:"expires_at,omitempty"`
	AppealDeadline    *time.Time `gorm:"type:timestamptz" json:"appeal_deadline,omitempty"`
	AcknowledgedAt    *time.Time `gorm:"type:timestamptz" json:"acknowledged_at,omitempty"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime" json:"updated_at"`
}

// Escalation records a severity increase applied to a warning.
type Escalation struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WarningID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"warning_id"`
	FromLevel         int        `gorm:"not null" json:"from_level"`
	ToLevel           int        `gorm:"not null" json:"to_level"`
	Reason            string     `gorm:"type:text;not null" json:"reason"`
	EscalatedBy       uuid.UUID  `gorm:"type:uuid;not null" json:"escalated_by"`
	SeniorModeratorID *uuid.UUID `gorm:"type:uuid" json:"senior_moderator_id,omitempty"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime" json:"created_at"`
}

// UserRestriction limits what a user may do on the platform.
// Invariants: IsPermanent implies a nil ExpiresAt; a restriction that is not
// active never carries the active status.
type UserRestriction struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectUserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"subject_user_id"`
	IssuerModeratorID uuid.UUID  `gorm:"type:uuid;not null" json:"issuer_moderator_id"`
	RestrictionType   string     `gorm:"type:text;not null;index" json:"restriction_type"`
	IsPermanent       bool       `gorm:"not null;default:false" json:"is_permanent"`
	StartsAt          time.Time  `gorm:"type:timestamptz;not null" json:"starts_at"`
	ExpiresAt         *time.Time `gorm:"type:timestamptz" json:"expires_at,omitempty"`
	IsActive          bool       `gorm:"not null;default:true;index" json:"is_active"`
	Status            string     `gorm:"type:text;not null;index" json:"status"`
	SourceWarningID   *uuid.UUID `gorm:"type:uuid" json:"source_warning_id,omitempty"`
	LiftedAt          *time.Time `gorm:"type:timestamptz" json:"lifted_at,omitempty"`
	LiftedBy          *uuid.UUID `gorm:"type:uuid" json:"lifted_by,omitempty"`
	LiftReason        string     `gorm:"type:text" json:"lift_reason,omitempty"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime" json:"updated_at"`
}

// Appeal contests a warning or restriction. At most one non-terminal appeal
// exists per appealable entity.
type Appeal struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectUserID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"subject_user_id"`
	AppealableType string     `gorm:"type:text;not null;index:idx_appeals_appealable" json:"appealable_type"`
	AppealableID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_appeals_appealable" json:"appealable_id"`
	Reason         string     `gorm:"type:text;not null" json:"reason"`
	Status         string     `gorm:"type:text;not null;index" json:"status"`
	ReviewerID     *uuid.UUID `gorm:"type:uuid" json:"reviewer_id,omitempty"`
	ReviewNotes    string     `gorm:"type:text" json:"review_notes,omitempty"`
	ReviewedAt     *time.Time `gorm:"type:timestamptz" json:"reviewed_at,omitempty"`
	DeadlineAt     time.Time  `gorm:"type:timestamptz;not null" json:"deadline_at"`
	CreatedAt      time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime" json:"updated_at"`
}

// AppealEvidence is one stored evidence item attached to an appeal,
// ordered by Position.
type AppealEvidence struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AppealID    uuid.UUID `gorm:"type:uuid;not null;index" json:"appeal_id"`
	Position    int       `gorm:"not null" json:"position"`
	BlobPath    string    `gorm:"type:text;not null" json:"blob_path"`
	ContentType string    `gorm:"type:text" json:"content_type,omitempty"`
	SHA256      string    `gorm:"type:text" json:"sha256,omitempty"`
	ScanClean   bool      `gorm:"not null;default:false" json:"scan_clean"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime" json:"created_at"`
}

// Terminal reports whether an appeal status is final.
func (a Appeal) Terminal() bool {
	return a.Status == AppealApproved || a.Status == AppealDenied
}
