package anomaly

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Score kinds.
const (
	KindModerator = "moderator"
	KindReporter  = "reporter"
)

// Risk levels, ordered by severity.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Default trailing windows for metric aggregation.
const (
	ModeratorWindow = 30 * 24 * time.Hour
	ReporterWindow  = 90 * 24 * time.Hour
)

const maxScore = 100

// Result is one scoring outcome. Factors lists exactly the rules that
// fired, each with the measured value that triggered it. Failed marks a
// result produced when metric loading broke; it carries score zero and
// must never block the moderation action that requested it.
type Result struct {
	Score   int      `json:"score"`
	Level   string   `json:"level"`
	Factors []string `json:"factors"`
	Failed  bool     `json:"failed,omitempty"`
}

// ModerationScore is a cached scoring result.
type ModerationScore struct {
	ID         int64             `gorm:"type:bigserial;primaryKey" json:"id"`
	SubjectID  uuid.UUID         `gorm:"type:uuid;not null;index:idx_scores_subject" json:"subject_id"`
	Kind       string            `gorm:"type:text;not null;index:idx_scores_subject" json:"kind"`
	Score      int               `gorm:"not null" json:"score"`
	RiskLevel  string            `gorm:"type:text;not null" json:"risk_level"`
	Factors    datatypes.JSONMap `gorm:"type:jsonb" json:"factors"`
	ComputedAt time.Time         `gorm:"type:timestamptz;not null;default:now()" json:"computed_at"`
}

func capScore(score int) int {
	if score > maxScore {
		return maxScore
	}
	return score
}
