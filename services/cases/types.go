package cases

import (
	"time"

	"github.com/google/uuid"
)

// Warning statuses.
const (
	WarningActive       = "active"
	WarningAcknowledged = "acknowledged"
	WarningEscalated    = "escalated"
	WarningExpired      = "expired"
	WarningOverturned   = "overturned"
)

// Restriction statuses.
const (
	RestrictionActive  = "active"
	RestrictionLifted  = "lifted"
	RestrictionExpired = "expired"
)

// Restriction kinds. PermanentBan carries the hard precondition of at least
// three currently-active warnings.
const (
	RestrictionPosting      = "posting"
	RestrictionMessaging    = "messaging"
	RestrictionGroupAccess  = "group_access"
	RestrictionPermanentBan = "permanent_ban"
)

// Appeal statuses.
const (
	AppealPending     = "pending"
	AppealUnderReview = "under_review"
	AppealApproved    = "approved"
	AppealDenied      = "denied"
)

// Warning severity bounds.
const (
	MinWarningLevel = 1
	MaxWarningLevel = 4
)

// Appeal windows and the review SLA.
const (
	WarningAppealWindow     = 7 * 24 * time.Hour
	RestrictionAppealWindow = 30 * 24 * time.Hour
	AppealReviewSLA         = 7 * 24 * time.Hour
)

// AppealableKind tags the entity an appeal contests.
type AppealableKind string

const (
	AppealableWarning     AppealableKind = "warning"
	AppealableRestriction AppealableKind = "restriction"
)

// AppealableRef names a Warning or UserRestriction explicitly. Resolution
// happens once at the boundary; nothing downstream inspects runtime types.
type AppealableRef struct {
	Kind AppealableKind `json:"kind"`
	ID   uuid.UUID      `json:"id"`
}

// Valid reports whether the reference names a known appealable kind.
func (r AppealableRef) Valid() bool {
	return (r.Kind == AppealableWarning || r.Kind == AppealableRestriction) && r.ID != uuid.Nil
}

// Actor identifies who is performing a state transition, plus the request
// context recorded on audit entries.
type Actor struct {
	ID        uuid.UUID
	Type      string // ledger actor type: user, moderator, system
	IPAddress string
	UserAgent string
}

// EvidenceDescriptor is a stored evidence item attached to an appeal.
type EvidenceDescriptor struct {
	BlobPath    string `json:"blob_path"`
	ContentType string `json:"content_type"`
	SHA256      string `json:"sha256"`
	ScanClean   bool   `json:"scan_clean"`
}

func validWarningStatus(s string) bool {
	switch s {
	case WarningActive, WarningAcknowledged, WarningEscalated, WarningExpired, WarningOverturned:
		return true
	}
	return false
}

func validRestrictionType(t string) bool {
	switch t {
	case RestrictionPosting, RestrictionMessaging, RestrictionGroupAccess, RestrictionPermanentBan:
		return true
	}
	return false
}

// warningChallengeable reports whether a warning can still be appealed.
func warningChallengeable(status string) bool {
	return status == WarningActive || status == WarningEscalated
}

// warningAppealDeadline returns the effective appeal deadline: the explicit
// deadline if one was set, otherwise issuance plus the standard window.
func warningAppealDeadline(createdAt time.Time, explicit *time.Time) time.Time {
	if explicit != nil {
		return *explicit
	}
	return createdAt.Add(WarningAppealWindow)
}
