package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"modguard/pkg/db"
)

// Loader aggregates scoring metrics with read-only SQL. Queries run
// against a slightly stale snapshot; no locks are taken.
type Loader struct {
	pool *pgxpool.Pool
}

// NewLoader constructs a Loader.
func NewLoader(pool *pgxpool.Pool) (*Loader, error) {
	if pool == nil {
		return nil, errors.New("anomaly: pool is required")
	}
	return &Loader{pool: pool}, nil
}

type handledStats struct {
	Handled    int     `db:"handled"`
	AvgMinutes float64 `db:"avg_minutes"`
	SLARate    float64 `db:"sla_rate"`
}

type issuedStats struct {
	Issued   int `db:"issued"`
	Reversed int `db:"reversed"`
}

type hourStats struct {
	Total   int `db:"total"`
	Unusual int `db:"unusual"`
}

// LoadModeratorMetrics aggregates one moderator's activity since now-window.
func (l *Loader) LoadModeratorMetrics(ctx context.Context, moderatorID uuid.UUID, window time.Duration, now time.Time) (ModeratorMetrics, error) {
	since := now.Add(-window)
	var m ModeratorMetrics

	var handled handledStats
	err := db.Get(ctx, l.pool, &handled, `
		SELECT COUNT(*) AS handled,
		       COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 60.0), 0) AS avg_minutes,
		       COALESCE(AVG(CASE WHEN resolved_at <= created_at + INTERVAL '7 days' THEN 1.0 ELSE 0.0 END), 0) AS sla_rate
		FROM reports
		WHERE handled_by = $1 AND resolved_at >= $2`, moderatorID, since)
	if err != nil {
		return m, fmt.Errorf("anomaly: load handled reports: %w", err)
	}
	m.ReportsHandled = handled.Handled
	m.AvgResolutionMinutes = handled.AvgMinutes
	m.ResolutionRate = handled.SLARate

	if err := db.Get(ctx, l.pool, &m.ReportsAgainst, `
		SELECT COUNT(*) FROM reports
		WHERE target_user_id = $1 AND created_at >= $2`, moderatorID, since); err != nil {
		return m, fmt.Errorf("anomaly: load reports against moderator: %w", err)
	}

	var warnings issuedStats
	if err := db.Get(ctx, l.pool, &warnings, `
		SELECT COUNT(*) AS issued,
		       COUNT(*) FILTER (WHERE status = 'overturned') AS reversed
		FROM warnings
		WHERE issuer_moderator_id = $1 AND created_at >= $2`, moderatorID, since); err != nil {
		return m, fmt.Errorf("anomaly: load issued warnings: %w", err)
	}

	var restrictions issuedStats
	if err := db.Get(ctx, l.pool, &restrictions, `
		SELECT COUNT(*) AS issued,
		       COUNT(*) FILTER (WHERE status = 'lifted' AND lift_reason = 'appeal approved') AS reversed
		FROM user_restrictions
		WHERE issuer_moderator_id = $1 AND created_at >= $2`, moderatorID, since); err != nil {
		return m, fmt.Errorf("anomaly: load issued restrictions: %w", err)
	}

	if issued := warnings.Issued + restrictions.Issued; issued > 0 {
		m.ReversalRate = float64(warnings.Reversed+restrictions.Reversed) / float64(issued)
	}
	if m.ReportsHandled > 0 {
		m.RestrictionRate = float64(restrictions.Issued) / float64(m.ReportsHandled)
	}

	var hours hourStats
	if err := db.Get(ctx, l.pool, &hours, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC') >= 22
		                           OR EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC') < 6) AS unusual
		FROM audit_records
		WHERE actor_id = $1 AND created_at >= $2`, moderatorID, since); err != nil {
		return m, fmt.Errorf("anomaly: load action hours: %w", err)
	}
	if hours.Total > 0 {
		m.UnusualHoursRate = float64(hours.Unusual) / float64(hours.Total)
	}

	var categoryCounts []int
	if err := db.Select(ctx, l.pool, &categoryCounts, `
		SELECT COUNT(*) AS n FROM reports
		WHERE handled_by = $1 AND status = 'actioned' AND resolved_at >= $2
		GROUP BY category ORDER BY n DESC`, moderatorID, since); err != nil {
		return m, fmt.Errorf("anomaly: load category counts: %w", err)
	}
	m.CategoryBias = concentration(categoryCounts)

	return m, nil
}

type reporterStats struct {
	Total     int `db:"total"`
	Dismissed int `db:"dismissed"`
	Actioned  int `db:"actioned"`
	Retracted int `db:"retracted"`
}

// LoadReporterMetrics aggregates one reporter's filing behavior since
// now-window.
func (l *Loader) LoadReporterMetrics(ctx context.Context, reporterID uuid.UUID, window time.Duration, now time.Time) (ReporterMetrics, error) {
	since := now.Add(-window)
	var m ReporterMetrics

	var stats reporterStats
	err := db.Get(ctx, l.pool, &stats, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status = 'dismissed') AS dismissed,
		       COUNT(*) FILTER (WHERE status = 'actioned') AS actioned,
		       COUNT(*) FILTER (WHERE status = 'retracted') AS retracted
		FROM reports
		WHERE reporter_id = $1 AND created_at >= $2`, reporterID, since)
	if err != nil {
		return m, fmt.Errorf("anomaly: load report stats: %w", err)
	}
	m.TotalReports = stats.Total
	m.Retracted = stats.Retracted
	if stats.Total > 0 {
		m.DismissalRate = float64(stats.Dismissed) / float64(stats.Total)
		m.SuccessRate = float64(stats.Actioned) / float64(stats.Total)
	}

	var targetCounts []int
	if err := db.Select(ctx, l.pool, &targetCounts, `
		SELECT COUNT(*) AS n FROM reports
		WHERE reporter_id = $1 AND created_at >= $2
		GROUP BY target_user_id ORDER BY n DESC`, reporterID, since); err != nil {
		return m, fmt.Errorf("anomaly: load target counts: %w", err)
	}
	if len(targetCounts) > 0 {
		m.MaxSameTarget = targetCounts[0]
	}
	m.TargetConcentration = concentration(targetCounts)

	if err := db.Get(ctx, l.pool, &m.MaxDuplicates, `
		SELECT COALESCE(MAX(n), 0) FROM (
			SELECT COUNT(*) AS n FROM reports
			WHERE reporter_id = $1 AND created_at >= $2
			GROUP BY target_user_id, category
		) grouped`, reporterID, since); err != nil {
		return m, fmt.Errorf("anomaly: load duplicate counts: %w", err)
	}

	var filedAt []time.Time
	if err := db.Select(ctx, l.pool, &filedAt, `
		SELECT created_at FROM reports
		WHERE reporter_id = $1 AND created_at >= $2
		ORDER BY created_at`, reporterID, since); err != nil {
		return m, fmt.Errorf("anomaly: load filing times: %w", err)
	}
	m.BurstMax = maxWithinWindow(filedAt, burstWindow)

	return m, nil
}

// concentration returns the largest group's share of the total. Counts
// must be sorted descending.
func concentration(counts []int) float64 {
	if len(counts) == 0 {
		return 0
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(counts[0]) / float64(total)
}
