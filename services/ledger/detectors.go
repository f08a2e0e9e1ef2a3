package ledger

import (
	"context"
	"fmt"
	"time"

	"modguard/pkg/bus"
)

// Alert types raised by the append-time detectors.
const (
	AlertRapidActions = "rapid_actions_from_ip"
	AlertAfterHours   = "suspicious_after_hours_action"
	AlertFailedLogins = "multiple_failed_logins"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

// alertSeverity is the static severity lookup keyed by alert type.
var alertSeverity = map[string]string{
	AlertRapidActions: SeverityHigh,
	AlertAfterHours:   SeverityMedium,
	AlertFailedLogins: SeverityCritical,
}

const (
	rapidFireWindow    = 5 * time.Minute
	rapidFireThreshold = 10

	bruteForceWindow    = 15 * time.Minute
	bruteForceThreshold = 5

	actionLoginFailed = "login_failed"
)

// sensitiveActions are the actions the after-hours detector cares about.
var sensitiveActions = map[string]struct{}{
	"ban":              {},
	"content_deletion": {},
	"mass_action":      {},
}

// runDetectors evaluates all append-time detectors against the freshly
// committed record and returns the alerts to raise. Query failures are
// logged and the corresponding detector skipped; detection is best-effort
// and must never fail the append.
func (l *Ledger) runDetectors(ctx context.Context, rec AuditRecord) []SecurityAlert {
	var alerts []SecurityAlert

	if rec.IPAddress != "" {
		count, err := l.countSince(ctx, rec.CreatedAt.Add(-rapidFireWindow), "ip_address = ?", rec.IPAddress)
		if err != nil {
			l.logf("WARN rapid-fire detector: %v", err)
		} else if count > rapidFireThreshold {
			alerts = append(alerts, newAlert(AlertRapidActions,
				fmt.Sprintf("%d audit records from %s within %s", count, rec.IPAddress, rapidFireWindow),
				map[string]any{
					"ip_address": rec.IPAddress,
					"count":      count,
					"window":     rapidFireWindow.String(),
				}, rec.CreatedAt))
		}
	}

	if localHour := rec.CreatedAt.In(l.loc).Hour(); isAfterHours(localHour) && isSensitiveAction(rec.Action) {
		alerts = append(alerts, newAlert(AlertAfterHours,
			fmt.Sprintf("%s performed at local hour %d", rec.Action, localHour),
			map[string]any{
				"action":      rec.Action,
				"local_hour":  localHour,
				"sequence_id": rec.SequenceID,
			}, rec.CreatedAt))
	}

	if rec.Action == actionLoginFailed && rec.ActorID != nil {
		count, err := l.countSince(ctx, rec.CreatedAt.Add(-bruteForceWindow), "action = ? AND actor_id = ?", actionLoginFailed, *rec.ActorID)
		if err != nil {
			l.logf("WARN brute-force detector: %v", err)
		} else if count >= bruteForceThreshold {
			alerts = append(alerts, newAlert(AlertFailedLogins,
				fmt.Sprintf("%d failed logins by actor %s within %s", count, rec.ActorID, bruteForceWindow),
				map[string]any{
					"actor_id": rec.ActorID.String(),
					"count":    count,
					"window":   bruteForceWindow.String(),
				}, rec.CreatedAt))
		}
	}

	return alerts
}

func (l *Ledger) countSince(ctx context.Context, since time.Time, cond string, args ...any) (int64, error) {
	var count int64
	err := l.orm.WithContext(ctx).
		Model(&AuditRecord{}).
		Where("created_at > ?", since).
		Where(cond, args...).
		Count(&count).Error
	return count, err
}

func (l *Ledger) raiseAlert(ctx context.Context, alert SecurityAlert) error {
	if err := l.orm.WithContext(ctx).Create(&alert).Error; err != nil {
		return err
	}

	alertsTotal.WithLabelValues(alert.AlertType).Inc()
	l.logf("WARN security alert %s (%s): %s", alert.AlertType, alert.Severity, alert.Details)

	if l.bus != nil {
		if err := l.bus.Publish(ctx, bus.SubjectAlertRaised, alert); err != nil {
			l.logf("WARN publish alert: %v", err)
		}
	}
	return nil
}

func newAlert(alertType, details string, metadata map[string]any, at time.Time) SecurityAlert {
	return SecurityAlert{
		AlertType: alertType,
		Severity:  alertSeverity[alertType],
		Details:   details,
		Metadata:  metadata,
		CreatedAt: at,
	}
}

// isAfterHours reports whether the local hour falls in the [22, 6) window.
func isAfterHours(hour int) bool {
	return hour >= 22 || hour < 6
}

func isSensitiveAction(action string) bool {
	_, ok := sensitiveActions[action]
	return ok
}
