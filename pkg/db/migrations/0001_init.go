package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type AuditRecord struct {
	SequenceID         int64             `gorm:"type:bigserial;primaryKey"`
	EventType          string            `gorm:"type:text;not null"`
	ActorType          string            `gorm:"type:text;not null"`
	ActorID            *uuid.UUID        `gorm:"type:uuid;index"`
	TargetType         string            `gorm:"type:text;not null;index:idx_audit_target"`
	TargetID           string            `gorm:"type:text;not null;index:idx_audit_target"`
	Action             string            `gorm:"type:text;not null;index"`
	OldValues          datatypes.JSONMap `gorm:"type:jsonb"`
	NewValues          datatypes.JSONMap `gorm:"type:jsonb"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb"`
	IPAddress          string            `gorm:"type:text;index"`
	UserAgent          string            `gorm:"type:text"`
	RecordHash         string            `gorm:"type:text;not null"`
	PreviousRecordHash string            `gorm:"type:text;not null;index"`
	CreatedAt          time.Time         `gorm:"type:timestamptz;not null;default:now();index"`
}

func (AuditRecord) TableName() string { return "audit_records" }

type SecurityAlert struct {
	ID        int64             `gorm:"type:bigserial;primaryKey"`
	AlertType string            `gorm:"type:text;not null;index"`
	Severity  string            `gorm:"type:text;not null"`
	Details   string            `gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"type:timestamptz;not null;default:now()"`
}

func (SecurityAlert) TableName() string { return "security_alerts" }

type Warning struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SubjectUserID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	IssuerModeratorID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Level             int        `gorm:"not null"`
	Reason            string     `gorm:"type:text;not null"`
	Status            string     `gorm:"type:text;not null;index"`
	ExpiresAt         *time.Time `gorm:"type:timestamptz"`
	AppealDeadline    *time.Time `gorm:"type:timestamptz"`
	AcknowledgedAt    *time.Time `gorm:"type:timestamptz"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Escalation struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	WarningID         uuid.UUID  `gorm:"type:uuid;not null;index"`
	FromLevel         int        `gorm:"not null"`
	ToLevel           int        `gorm:"not null"`
	Reason            string     `gorm:"type:text;not null"`
	EscalatedBy       uuid.UUID  `gorm:"type:uuid;not null"`
	SeniorModeratorID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Warning           Warning    `gorm:"foreignKey:WarningID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type UserRestriction struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SubjectUserID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	IssuerModeratorID uuid.UUID  `gorm:"type:uuid;not null"`
	RestrictionType   string     `gorm:"type:text;not null;index"`
	IsPermanent       bool       `gorm:"not null;default:false"`
	StartsAt          time.Time  `gorm:"type:timestamptz;not null"`
	ExpiresAt         *time.Time `gorm:"type:timestamptz"`
	IsActive          bool       `gorm:"not null;default:true;index"`
	Status            string     `gorm:"type:text;not null;index"`
	SourceWarningID   *uuid.UUID `gorm:"type:uuid"`
	LiftedAt          *time.Time `gorm:"type:timestamptz"`
	LiftedBy          *uuid.UUID `gorm:"type:uuid"`
	LiftReason        string     `gorm:"type:text"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type Appeal struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SubjectUserID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	AppealableType string     `gorm:"type:text;not null;index:idx_appeals_appealable"`
	AppealableID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_appeals_appealable"`
	Reason         string     `gorm:"type:text;not null"`
	Status         string     `gorm:"type:text;not null;index"`
	ReviewerID     *uuid.UUID `gorm:"type:uuid"`
	ReviewNotes    string     `gorm:"type:text"`
	ReviewedAt     *time.Time `gorm:"type:timestamptz"`
	DeadlineAt     time.Time  `gorm:"type:timestamptz;not null"`
	CreatedAt      time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type AppealEvidence struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	AppealID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Position    int       `gorm:"not null"`
	BlobPath    string    `gorm:"type:text;not null"`
	ContentType string    `gorm:"type:text"`
	SHA256      string    `gorm:"type:text"`
	ScanClean   bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Appeal      Appeal    `gorm:"foreignKey:AppealID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Report struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ReporterID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	TargetUserID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Category     string     `gorm:"type:text;not null"`
	Details      string     `gorm:"type:text"`
	Status       string     `gorm:"type:text;not null;index"`
	HandledBy    *uuid.UUID `gorm:"type:uuid;index"`
	ResolvedAt   *time.Time `gorm:"type:timestamptz"`
	CreatedAt    time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type ModerationScore struct {
	ID         int64             `gorm:"type:bigserial;primaryKey"`
	SubjectID  uuid.UUID         `gorm:"type:uuid;not null;index:idx_scores_subject"`
	Kind       string            `gorm:"type:text;not null;index:idx_scores_subject"`
	Score      int               `gorm:"not null"`
	RiskLevel  string            `gorm:"type:text;not null"`
	Factors    datatypes.JSONMap `gorm:"type:jsonb"`
	ComputedAt time.Time         `gorm:"type:timestamptz;not null;default:now()"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&AuditRecord{},
		&SecurityAlert{},
		&Warning{},
		&Escalation{},
		&UserRestriction{},
		&Appeal{},
		&AppealEvidence{},
		&Report{},
		&ModerationScore{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if err := m.CreateConstraint(&Escalation{}, "Warning"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&AppealEvidence{}, "Appeal"); err != nil {
		return err
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).Migrator().DropTable(
		&ModerationScore{},
		&Report{},
		&AppealEvidence{},
		&Appeal{},
		&UserRestriction{},
		&Escalation{},
		&Warning{},
		&SecurityAlert{},
		&AuditRecord{},
	); err != nil {
		return err
	}

	return nil
}
