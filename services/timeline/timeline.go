package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Case kinds a timeline can be built for.
const (
	CaseWarning     = "warning"
	CaseRestriction = "restriction"
	CaseAppeal      = "appeal"
)

// Event kinds.
const (
	EventCreated      = "created"
	EventEvidence     = "evidence"
	EventStatusChange = "status_change"
	EventAudit        = "audit"
	EventSynthetic    = "synthetic"
)

// Violation kinds.
const (
	ViolationSLABreach = "review_sla_breach"
	ViolationEventGap  = "event_gap"
	ViolationBackdated = "backdated_event"
)

// ReviewSLA is the window within which a case must be reviewed.
const ReviewSLA = 7 * 24 * time.Hour

// maxEventGap is the largest acceptable silence between consecutive events.
const maxEventGap = 48 * time.Hour

// CaseRef names the case a timeline is built for.
type CaseRef struct {
	Kind string    `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// Valid reports whether the reference names a known case kind.
func (r CaseRef) Valid() bool {
	switch r.Kind {
	case CaseWarning, CaseRestriction, CaseAppeal:
		return r.ID != uuid.Nil
	}
	return false
}

// Event is one entry in the merged case view.
type Event struct {
	Timestamp   time.Time      `json:"timestamp"`
	Kind        string         `json:"kind"`
	Description string         `json:"description"`
	Actor       string         `json:"actor,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Violation is a detected irregularity. Violations are reported, never
// auto-corrected.
type Violation struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Timeline is the assembled read view of one case.
type Timeline struct {
	Case        CaseRef     `json:"case"`
	Events      []Event     `json:"events"`
	Violations  []Violation `json:"violations"`
	SLADeadline *time.Time  `json:"sla_deadline,omitempty"`
}

// sortEvents orders events by timestamp ascending, keeping insertion order
// for equal timestamps.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// detectViolations flags SLA breaches, long silences and backdated events.
// The events slice must already be sorted; createdAt is the case's creation
// time and reviewedAt its review timestamp, nil while unreviewed. A nil
// deadline disables the SLA check for case kinds without a review step.
func detectViolations(events []Event, createdAt time.Time, reviewedAt *time.Time, deadline *time.Time, now time.Time) []Violation {
	var violations []Violation

	if deadline != nil && reviewedAt == nil && now.After(*deadline) {
		violations = append(violations, Violation{
			Kind:   ViolationSLABreach,
			Detail: fmt.Sprintf("review deadline %s passed without review", deadline.UTC().Format(time.RFC3339)),
		})
	}

	for i := 1; i < len(events); i++ {
		gap := events[i].Timestamp.Sub(events[i-1].Timestamp)
		if gap > maxEventGap {
			violations = append(violations, Violation{
				Kind: ViolationEventGap,
				Detail: fmt.Sprintf("%.0fh gap between %q and %q", gap.Hours(),
					events[i-1].Description, events[i].Description),
			})
		}
	}

	for _, e := range events {
		if e.Timestamp.Before(createdAt) {
			violations = append(violations, Violation{
				Kind: ViolationBackdated,
				Detail: fmt.Sprintf("event %q timestamped %s before case creation %s",
					e.Description, e.Timestamp.UTC().Format(time.RFC3339), createdAt.UTC().Format(time.RFC3339)),
			})
		}
	}

	return violations
}
