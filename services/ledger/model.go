package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GenesisHash is the previous-record hash carried by the first record in the
// chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Actor types recorded on audit records.
const (
	ActorUser      = "user"
	ActorModerator = "moderator"
	ActorSystem    = "system"
)

// AuditRecord is one immutable entry in the hash-chained moderation audit
// log. Rows are only ever written through Ledger.Append; mutating them in
// place breaks the chain and is what VerifyChain detects.
type AuditRecord struct {
	SequenceID         int64             `gorm:"type:bigserial;primaryKey" json:"sequence_id"`
	EventType          string            `gorm:"type:text;not null" json:"event_type"`
	ActorType          string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID            *uuid.UUID        `gorm:"type:uuid;index" json:"actor_id,omitempty"`
	TargetType         string            `gorm:"type:text;not null" json:"target_type"`
	TargetID           string            `gorm:"type:text;not null" json:"target_id"`
	Action             string            `gorm:"type:text;not null" json:"action"`
	OldValues          datatypes.JSONMap `gorm:"type:jsonb" json:"old_values,omitempty"`
	NewValues          datatypes.JSONMap `gorm:"type:jsonb" json:"new_values,omitempty"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	IPAddress          string            `gorm:"type:text;index" json:"ip_address,omitempty"`
	UserAgent          string            `gorm:"type:text" json:"user_agent,omitempty"`
	RecordHash         string            `gorm:"type:text;not null" json:"record_hash"`
	PreviousRecordHash string            `gorm:"type:text;not null;index" json:"previous_record_hash"`
	CreatedAt          time.Time         `gorm:"type:timestamptz;not null;default:now()" json:"created_at"`
}

func (AuditRecord) TableName() string { return "audit_records" }

// SecurityAlert is a side-channel record raised by the tamper and abuse
// detectors. Alerts live outside the hash chain.
type SecurityAlert struct {
	ID        int64             `gorm:"type:bigserial;primaryKey" json:"id"`
	AlertType string            `gorm:"type:text;not null;index" json:"alert_type"`
	Severity  string            `gorm:"type:text;not null" json:"severity"`
	Details   string            `gorm:"type:text;not null" json:"details"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"type:timestamptz;not null;default:now()" json:"created_at"`
}

func (SecurityAlert) TableName() string { return "security_alerts" }

// Entry carries the caller-supplied fields for a new audit record.
type Entry struct {
	EventType  string
	ActorType  string
	ActorID    *uuid.UUID
	TargetType string
	TargetID   string
	Action     string
	OldValues  map[string]any
	NewValues  map[string]any
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
}
