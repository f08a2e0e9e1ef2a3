package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"modguard/services/ledger"
)

// Report statuses. A report leaves pending exactly once: a moderator
// resolves it (actioned or dismissed) or the reporter retracts it.
const (
	ReportPending   = "pending"
	ReportActioned  = "actioned"
	ReportDismissed = "dismissed"
	ReportRetracted = "retracted"
)

const targetReport = "report"

// Report is a user complaint about another user. Resolution outcomes feed
// the anomaly scorers for both the handling moderator and the reporter.
type Report struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReporterID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"reporter_id"`
	TargetUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"target_user_id"`
	Category     string     `gorm:"type:text;not null" json:"category"`
	Details      string     `gorm:"type:text" json:"details,omitempty"`
	Status       string     `gorm:"type:text;not null;index" json:"status"`
	HandledBy    *uuid.UUID `gorm:"type:uuid;index" json:"handled_by,omitempty"`
	ResolvedAt   *time.Time `gorm:"type:timestamptz" json:"resolved_at,omitempty"`
	CreatedAt    time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime" json:"created_at"`
}

// FileReportInput carries the fields for a new report.
type FileReportInput struct {
	TargetUserID uuid.UUID
	Category     string
	Details      string
}

// FileReport records a user's complaint against another user.
func (sm *StateMachine) FileReport(ctx context.Context, actor Actor, in FileReportInput) (Report, error) {
	if actor.Type != ledger.ActorUser {
		return Report{}, failf(CodeNotAuthorized, "reports are filed by users")
	}
	if in.TargetUserID == uuid.Nil {
		return Report{}, errors.New("cases: target user id is required")
	}
	if in.TargetUserID == actor.ID {
		return Report{}, failf(CodeInvalidState, "users cannot report themselves")
	}
	if in.Category == "" {
		return Report{}, errors.New("cases: report category is required")
	}

	now := sm.clk.Now().UTC()
	report := Report{
		ID:           uuid.New(),
		ReporterID:   actor.ID,
		TargetUserID: in.TargetUserID,
		Category:     in.Category,
		Details:      in.Details,
		Status:       ReportPending,
		CreatedAt:    now,
	}

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := tx.Create(&report).Error; err != nil {
			return err
		}
		return sm.appendAudit(ctx, tx, audit, actor, targetReport, report.ID.String(),
			"report_filed", nil, reportValues(report), nil)
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

// ResolveReport closes a pending report as actioned or dismissed and
// records the handling moderator.
func (sm *StateMachine) ResolveReport(ctx context.Context, actor Actor, reportID uuid.UUID, actioned bool) (Report, error) {
	if err := requireModerator(actor); err != nil {
		return Report{}, err
	}

	var report Report

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := lockByID(tx, &report, reportID); err != nil {
			return err
		}
		if report.Status != ReportPending {
			return failf(CodeInvalidState, fmt.Sprintf("report is %s, not pending", report.Status))
		}

		old := reportValues(report)
		now := sm.clk.Now().UTC()
		handler := actor.ID
		report.Status = ReportDismissed
		if actioned {
			report.Status = ReportActioned
		}
		report.HandledBy = &handler
		report.ResolvedAt = &now
		if err := tx.Save(&report).Error; err != nil {
			return err
		}

		return sm.appendAudit(ctx, tx, audit, actor, targetReport, report.ID.String(),
			"report_resolved", old, reportValues(report), map[string]any{"actioned": actioned})
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

// RetractReport lets the reporter withdraw their own pending report.
func (sm *StateMachine) RetractReport(ctx context.Context, actor Actor, reportID uuid.UUID) (Report, error) {
	var report Report

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := lockByID(tx, &report, reportID); err != nil {
			return err
		}
		if actor.Type != ledger.ActorUser || actor.ID != report.ReporterID {
			return failf(CodeNotAuthorized, "only the reporter can retract a report")
		}
		if report.Status != ReportPending {
			return failf(CodeInvalidState, fmt.Sprintf("report is %s, not pending", report.Status))
		}

		old := reportValues(report)
		now := sm.clk.Now().UTC()
		report.Status = ReportRetracted
		report.ResolvedAt = &now
		if err := tx.Save(&report).Error; err != nil {
			return err
		}

		return sm.appendAudit(ctx, tx, audit, actor, targetReport, report.ID.String(),
			"report_retracted", old, reportValues(report), nil)
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func reportValues(r Report) map[string]any {
	return map[string]any{
		"status":         r.Status,
		"reporter_id":    r.ReporterID.String(),
		"target_user_id": r.TargetUserID.String(),
		"category":       r.Category,
		"handled_by":     uuidString(r.HandledBy),
	}
}
