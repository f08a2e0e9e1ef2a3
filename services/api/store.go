package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"modguard/pkg/db"
	"modguard/services/cases"
	"modguard/services/ledger"
)

// Store is the read side of the API: paginated, filterable list queries
// running directly against the pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("api: pool is required")
	}
	return &Store{pool: pool}, nil
}

// ListFilter carries the optional list constraints shared by every list
// endpoint. Zero values mean "no constraint".
type ListFilter struct {
	SubjectUserID uuid.UUID
	Status        string
	Type          string
	From          *time.Time
	To            *time.Time
	Page          page
}

// whereBuilder accumulates numbered SQL conditions.
type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) add(format string, arg any) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, fmt.Sprintf(format, len(b.args)))
}

func (b *whereBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func (b *whereBuilder) paginate(p page) string {
	b.args = append(b.args, p.limit())
	limit := len(b.args)
	b.args = append(b.args, p.offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", limit, len(b.args))
}

func (b *whereBuilder) timeRange(column string, from, to *time.Time) {
	if from != nil {
		b.add(column+" >= $%d", *from)
	}
	if to != nil {
		b.add(column+" <= $%d", *to)
	}
}

// ListWarnings returns warnings matching the filter, newest first.
func (s *Store) ListWarnings(ctx context.Context, f ListFilter) ([]cases.Warning, error) {
	var b whereBuilder
	if f.SubjectUserID != uuid.Nil {
		b.add("subject_user_id = $%d", f.SubjectUserID)
	}
	if f.Status != "" {
		b.add("status = $%d", f.Status)
	}
	b.timeRange("created_at", f.From, f.To)

	query := `SELECT id, subject_user_id, issuer_moderator_id, level, reason, status,
			expires_at, appeal_deadline, acknowledged_at, created_at, updated_at
		FROM warnings` + b.clause() + " ORDER BY created_at DESC" + b.paginate(f.Page)

	var warnings []cases.Warning
	if err := db.Select(ctx, s.pool, &warnings, query, b.args...); err != nil {
		return nil, fmt.Errorf("api: list warnings: %w", err)
	}
	return warnings, nil
}

// ListRestrictions returns restrictions matching the filter, newest first.
func (s *Store) ListRestrictions(ctx context.Context, f ListFilter) ([]cases.UserRestriction, error) {
	var b whereBuilder
	if f.SubjectUserID != uuid.Nil {
		b.add("subject_user_id = $%d", f.SubjectUserID)
	}
	if f.Status != "" {
		b.add("status = $%d", f.Status)
	}
	if f.Type != "" {
		b.add("restriction_type = $%d", f.Type)
	}
	b.timeRange("created_at", f.From, f.To)

	query := `SELECT id, subject_user_id, issuer_moderator_id, restriction_type, is_permanent,
			starts_at, expires_at, is_active, status, source_warning_id,
			lifted_at, lifted_by, lift_reason, created_at, updated_at
		FROM user_restrictions` + b.clause() + " ORDER BY created_at DESC" + b.paginate(f.Page)

	var restrictions []cases.UserRestriction
	if err := db.Select(ctx, s.pool, &restrictions, query, b.args...); err != nil {
		return nil, fmt.Errorf("api: list restrictions: %w", err)
	}
	return restrictions, nil
}

// ListAppeals returns appeals matching the filter, newest first.
func (s *Store) ListAppeals(ctx context.Context, f ListFilter) ([]cases.Appeal, error) {
	var b whereBuilder
	if f.SubjectUserID != uuid.Nil {
		b.add("subject_user_id = $%d", f.SubjectUserID)
	}
	if f.Status != "" {
		b.add("status = $%d", f.Status)
	}
	if f.Type != "" {
		b.add("appealable_type = $%d", f.Type)
	}
	b.timeRange("created_at", f.From, f.To)

	query := `SELECT id, subject_user_id, appealable_type, appealable_id, reason, status,
			reviewer_id, review_notes, reviewed_at, deadline_at, created_at, updated_at
		FROM appeals` + b.clause() + " ORDER BY created_at DESC" + b.paginate(f.Page)

	var appeals []cases.Appeal
	if err := db.Select(ctx, s.pool, &appeals, query, b.args...); err != nil {
		return nil, fmt.Errorf("api: list appeals: %w", err)
	}
	return appeals, nil
}

// ListReports returns reports matching the filter, newest first. The Type
// filter matches the report category.
func (s *Store) ListReports(ctx context.Context, f ListFilter) ([]cases.Report, error) {
	var b whereBuilder
	if f.SubjectUserID != uuid.Nil {
		b.add("target_user_id = $%d", f.SubjectUserID)
	}
	if f.Status != "" {
		b.add("status = $%d", f.Status)
	}
	if f.Type != "" {
		b.add("category = $%d", f.Type)
	}
	b.timeRange("created_at", f.From, f.To)

	query := `SELECT id, reporter_id, target_user_id, category, details, status,
			handled_by, resolved_at, created_at
		FROM reports` + b.clause() + " ORDER BY created_at DESC" + b.paginate(f.Page)

	var reports []cases.Report
	if err := db.Select(ctx, s.pool, &reports, query, b.args...); err != nil {
		return nil, fmt.Errorf("api: list reports: %w", err)
	}
	return reports, nil
}

// AuditFilter narrows audit record listings.
type AuditFilter struct {
	TargetType string
	TargetID   string
	Action     string
	ActorID    uuid.UUID
	From       *time.Time
	To         *time.Time
	Page       page
}

// ListAuditRecords returns chained records matching the filter, newest
// first.
func (s *Store) ListAuditRecords(ctx context.Context, f AuditFilter) ([]ledger.AuditRecord, error) {
	var b whereBuilder
	if f.TargetType != "" {
		b.add("target_type = $%d", f.TargetType)
	}
	if f.TargetID != "" {
		b.add("target_id = $%d", f.TargetID)
	}
	if f.Action != "" {
		b.add("action = $%d", f.Action)
	}
	if f.ActorID != uuid.Nil {
		b.add("actor_id = $%d", f.ActorID)
	}
	b.timeRange("created_at", f.From, f.To)

	query := `SELECT sequence_id, event_type, actor_type, actor_id, target_type, target_id,
			action, old_values, new_values, metadata, ip_address, user_agent,
			record_hash, previous_record_hash, created_at
		FROM audit_records` + b.clause() + " ORDER BY sequence_id DESC" + b.paginate(f.Page)

	var records []ledger.AuditRecord
	if err := db.Select(ctx, s.pool, &records, query, b.args...); err != nil {
		return nil, fmt.Errorf("api: list audit records: %w", err)
	}
	return records, nil
}

// ListAlerts returns security alerts, newest first. The Type filter
// matches the alert type, Status the severity.
func (s *Store) ListAlerts(ctx context.Context, f ListFilter) ([]ledger.SecurityAlert, error) {
	var b whereBuilder
	if f.Type != "" {
		b.add("alert_type = $%d", f.Type)
	}
	if f.Status != "" {
		b.add("severity = $%d", f.Status)
	}
	b.timeRange("created_at", f.From, f.To)

	query := `SELECT id, alert_type, severity, details, metadata, created_at
		FROM security_alerts` + b.clause() + " ORDER BY id DESC" + b.paginate(f.Page)

	var alerts []ledger.SecurityAlert
	if err := db.Select(ctx, s.pool, &alerts, query, b.args...); err != nil {
		return nil, fmt.Errorf("api: list alerts: %w", err)
	}
	return alerts, nil
}
