package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"modguard/pkg/clock"
	"modguard/pkg/db"
)

// Builder assembles merged, time-ordered case views from the case tables
// and the audit log. All queries are read-only.
type Builder struct {
	pool   *pgxpool.Pool
	clk    clock.Clock
	logger *log.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(pool *pgxpool.Pool, clk clock.Clock, logger *log.Logger) (*Builder, error) {
	if pool == nil {
		return nil, errors.New("timeline: pool is required")
	}
	if clk == nil {
		return nil, errors.New("timeline: clock is required")
	}
	return &Builder{pool: pool, clk: clk, logger: logger}, nil
}

// caseHeader is the common shape read from whichever case table the
// reference points at.
type caseHeader struct {
	CreatedAt  time.Time  `db:"created_at"`
	Status     string     `db:"status"`
	ReviewedAt *time.Time `db:"reviewed_at"`
	DeadlineAt *time.Time `db:"deadline_at"`
}

type auditRow struct {
	SequenceID int64      `db:"sequence_id"`
	ActorType  string     `db:"actor_type"`
	ActorID    *uuid.UUID `db:"actor_id"`
	Action     string     `db:"action"`
	Metadata   []byte     `db:"metadata"`
	CreatedAt  time.Time  `db:"created_at"`
}

type evidenceRow struct {
	Position    int       `db:"position"`
	BlobPath    string    `db:"blob_path"`
	ContentType string    `db:"content_type"`
	CreatedAt   time.Time `db:"created_at"`
}

// Build assembles the timeline for one case: the creation event, evidence
// submissions, audit entries targeting the case, and synthetic reminder
// markers, sorted by timestamp with violations attached.
func (b *Builder) Build(ctx context.Context, ref CaseRef) (Timeline, error) {
	if !ref.Valid() {
		return Timeline{}, fmt.Errorf("timeline: invalid case reference %+v", ref)
	}

	header, err := b.loadHeader(ctx, ref)
	if err != nil {
		return Timeline{}, err
	}

	now := b.clk.Now().UTC()
	events := []Event{{
		Timestamp:   header.CreatedAt,
		Kind:        EventCreated,
		Description: fmt.Sprintf("%s created", ref.Kind),
	}}

	if ref.Kind == CaseAppeal {
		evidence, err := b.loadEvidence(ctx, ref.ID)
		if err != nil {
			return Timeline{}, err
		}
		events = append(events, evidence...)
	}

	audits, err := b.loadAuditEvents(ctx, ref)
	if err != nil {
		return Timeline{}, err
	}
	events = append(events, audits...)
	events = append(events, b.syntheticEvents(header, audits, now)...)

	sortEvents(events)

	deadline := reviewDeadline(ref.Kind, header)
	timeline := Timeline{
		Case:        ref,
		Events:      events,
		Violations:  detectViolations(events, header.CreatedAt, header.ReviewedAt, deadline, now),
		SLADeadline: deadline,
	}
	return timeline, nil
}

func (b *Builder) loadHeader(ctx context.Context, ref CaseRef) (caseHeader, error) {
	var header caseHeader
	var query string
	switch ref.Kind {
	case CaseWarning:
		query = `SELECT created_at, status, acknowledged_at AS reviewed_at, appeal_deadline AS deadline_at
			FROM warnings WHERE id = $1`
	case CaseRestriction:
		query = `SELECT created_at, status, NULL::timestamptz AS reviewed_at, NULL::timestamptz AS deadline_at
			FROM user_restrictions WHERE id = $1`
	case CaseAppeal:
		query = `SELECT created_at, status, reviewed_at, deadline_at FROM appeals WHERE id = $1`
	}

	if err := db.Get(ctx, b.pool, &header, query, ref.ID); err != nil {
		return caseHeader{}, fmt.Errorf("timeline: load %s %s: %w", ref.Kind, ref.ID, err)
	}
	return header, nil
}

func (b *Builder) loadEvidence(ctx context.Context, appealID uuid.UUID) ([]Event, error) {
	var rows []evidenceRow
	err := db.Select(ctx, b.pool, &rows, `
		SELECT position, blob_path, content_type, created_at
		FROM appeal_evidences WHERE appeal_id = $1 ORDER BY position`, appealID)
	if err != nil {
		return nil, fmt.Errorf("timeline: load evidence: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, Event{
			Timestamp:   row.CreatedAt,
			Kind:        EventEvidence,
			Description: fmt.Sprintf("evidence item %d submitted", row.Position+1),
			Metadata:    map[string]any{"blob_path": row.BlobPath, "content_type": row.ContentType},
		})
	}
	return events, nil
}

func (b *Builder) loadAuditEvents(ctx context.Context, ref CaseRef) ([]Event, error) {
	var rows []auditRow
	err := db.Select(ctx, b.pool, &rows, `
		SELECT sequence_id, actor_type, actor_id, action, metadata, created_at
		FROM audit_records
		WHERE target_type = $1 AND target_id = $2
		ORDER BY sequence_id`, ref.Kind, ref.ID.String())
	if err != nil {
		return nil, fmt.Errorf("timeline: load audit records: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		event := Event{
			Timestamp:   row.CreatedAt,
			Kind:        classifyAction(row.Action),
			Description: row.Action,
			Actor:       formatActor(row.ActorType, row.ActorID),
		}
		if len(row.Metadata) > 0 {
			var meta map[string]any
			if err := json.Unmarshal(row.Metadata, &meta); err == nil && len(meta) > 0 {
				event.Metadata = meta
			}
		}
		events = append(events, event)
	}
	return events, nil
}

// syntheticEvents adds computed markers: a reminder 24h before an unmet
// review deadline, and one marker per automatically applied action.
func (b *Builder) syntheticEvents(header caseHeader, audits []Event, now time.Time) []Event {
	var events []Event

	if header.DeadlineAt != nil && header.ReviewedAt == nil {
		reminder := header.DeadlineAt.Add(-24 * time.Hour)
		if !now.Before(reminder) {
			events = append(events, Event{
				Timestamp:   reminder,
				Kind:        EventSynthetic,
				Description: "review deadline approaching",
			})
		}
	}

	for _, e := range audits {
		if auto, ok := e.Metadata["auto_applied"].(bool); ok && auto {
			events = append(events, Event{
				Timestamp:   e.Timestamp,
				Kind:        EventSynthetic,
				Description: fmt.Sprintf("automatic escalation: %s", e.Description),
				Metadata:    e.Metadata,
			})
		}
	}

	return events
}

// reviewDeadline computes the SLA deadline for kinds with a review step.
// Restrictions have none.
func reviewDeadline(kind string, header caseHeader) *time.Time {
	switch kind {
	case CaseAppeal, CaseWarning:
		if header.DeadlineAt != nil {
			return header.DeadlineAt
		}
		d := header.CreatedAt.Add(ReviewSLA)
		return &d
	}
	return nil
}

var statusChangeActions = map[string]bool{
	"warning_acknowledged": true,
	"warning_escalated":    true,
	"warning_expired":      true,
	"warning_overturned":   true,
	"restriction_lifted":   true,
	"restriction_extended": true,
	"restriction_expired":  true,
	"appeal_claimed":       true,
	"appeal_decided":       true,
	"report_resolved":      true,
	"report_retracted":     true,
}

func classifyAction(action string) string {
	if statusChangeActions[action] {
		return EventStatusChange
	}
	return EventAudit
}

func formatActor(actorType string, actorID *uuid.UUID) string {
	if actorID == nil {
		return actorType
	}
	return fmt.Sprintf("%s %s", actorType, actorID)
}
