package cases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"modguard/pkg/clock"
	"modguard/services/ledger"
	"modguard/services/notify"
)

// Advisory lock classes for check-then-create races. Locking on
// (class, hashtext(entity id)) serializes concurrent creators of the same
// logical resource even when no row exists yet to lock.
const (
	restrictionLockClass = 4201
	appealLockClass      = 4202
)

const (
	eventModeration = "moderation"

	targetWarning     = "warning"
	targetRestriction = "restriction"
	targetAppeal      = "appeal"
)

// StateMachine validates and applies every Warning, UserRestriction and
// Appeal transition. Each transition commits atomically with its audit
// record; a failed precondition surfaces as a typed *Failure and leaves no
// trace in the ledger.
type StateMachine struct {
	orm    *gorm.DB
	ledger *ledger.Ledger
	clk    clock.Clock
	sink   notify.Sink
	logger *log.Logger
}

// New constructs a StateMachine. The notification sink is optional.
func New(orm *gorm.DB, lg *ledger.Ledger, clk clock.Clock, sink notify.Sink, logger *log.Logger) (*StateMachine, error) {
	if orm == nil {
		return nil, errors.New("cases: orm is required")
	}
	if lg == nil {
		return nil, errors.New("cases: ledger is required")
	}
	if clk == nil {
		return nil, errors.New("cases: clock is required")
	}

	return &StateMachine{orm: orm, ledger: lg, clk: clk, sink: sink, logger: logger}, nil
}

// auditCollector accumulates records appended inside a transaction so the
// post-append side checks run only after the transaction commits.
type auditCollector struct {
	records []ledger.AuditRecord
}

func (sm *StateMachine) transact(ctx context.Context, fn func(tx *gorm.DB, audit *auditCollector) error) error {
	collector := &auditCollector{}
	if err := sm.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, collector)
	}); err != nil {
		return err
	}

	for _, rec := range collector.records {
		sm.ledger.PostAppend(ctx, rec)
	}
	return nil
}

func (sm *StateMachine) appendAudit(ctx context.Context, tx *gorm.DB, audit *auditCollector, actor Actor, targetType, targetID, action string, oldValues, newValues, metadata map[string]any) error {
	var actorID *uuid.UUID
	if actor.Type != ledger.ActorSystem {
		id := actor.ID
		actorID = &id
	}

	rec, err := sm.ledger.AppendTx(ctx, tx, ledger.Entry{
		EventType:  eventModeration,
		ActorType:  actor.Type,
		ActorID:    actorID,
		TargetType: targetType,
		TargetID:   targetID,
		Action:     action,
		OldValues:  oldValues,
		NewValues:  newValues,
		Metadata:   metadata,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
	})
	if err != nil {
		return err
	}

	audit.records = append(audit.records, rec)
	return nil
}

// IssueWarningInput carries the fields for a new warning.
type IssueWarningInput struct {
	SubjectUserID uuid.UUID
	Level         int
	Reason        string
	ExpiresAt     *time.Time
	Metadata      map[string]any
}

// IssueWarning creates an active warning against a user. The appeal window
// opens immediately and closes seven days after issuance.
func (sm *StateMachine) IssueWarning(ctx context.Context, actor Actor, in IssueWarningInput) (Warning, error) {
	if err := requireModerator(actor); err != nil {
		return Warning{}, err
	}
	if in.SubjectUserID == uuid.Nil {
		return Warning{}, errors.New("cases: subject user id is required")
	}
	if in.Level < MinWarningLevel || in.Level > MaxWarningLevel {
		return Warning{}, fmt.Errorf("cases: warning level must be between %d and %d", MinWarningLevel, MaxWarningLevel)
	}
	if in.Reason == "" {
		return Warning{}, errors.New("cases: reason is required")
	}

	now := sm.clk.Now().UTC()
	deadline := now.Add(WarningAppealWindow)
	warning := Warning{
		ID:                uuid.New(),
		SubjectUserID:     in.SubjectUserID,
		IssuerModeratorID: actor.ID,
		Level:             in.Level,
		Reason:            in.Reason,
		Status:            WarningActive,
		ExpiresAt:         in.ExpiresAt,
		AppealDeadline:    &deadline,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := tx.Create(&warning).Error; err != nil {
			return err
		}
		return sm.appendAudit(ctx, tx, audit, actor, targetWarning, warning.ID.String(),
			"warning_issued", nil, warningValues(warning), in.Metadata)
	})
	if err != nil {
		return Warning{}, err
	}

	sm.notify(ctx, warning.SubjectUserID, notify.TemplateWarningIssued, map[string]any{
		"Level":          warning.Level,
		"Reason":         warning.Reason,
		"ExpiresAt":      formatTime(warning.ExpiresAt),
		"AppealDeadline": formatTime(warning.AppealDeadline),
	})

	return warning, nil
}

// AcknowledgeWarning moves an active warning to acknowledged. Only the
// warned user may acknowledge their own warning.
func (sm *StateMachine) AcknowledgeWarning(ctx context.Context, actor Actor, warningID uuid.UUID) (Warning, error) {
	var warning Warning

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := lockByID(tx, &warning, warningID); err != nil {
			return err
		}
		old := warningValues(warning)
		if err := acknowledgeWarning(&warning, actor, sm.clk.Now().UTC()); err != nil {
			return err
		}
		if err := tx.Save(&warning).Error; err != nil {
			return err
		}

		return sm.appendAudit(ctx, tx, audit, actor, targetWarning, warning.ID.String(),
			"warning_acknowledged", old, warningValues(warning), nil)
	})
	if err != nil {
		return Warning{}, err
	}
	return warning, nil
}

// EscalateWarningInput carries the fields for a moderator escalation.
type EscalateWarningInput struct {
	WarningID         uuid.UUID
	ToLevel           int
	Reason            string
	SeniorModeratorID *uuid.UUID
}

// EscalateWarning raises an active warning's severity and records the
// escalation sub-record.
func (sm *StateMachine) EscalateWarning(ctx context.Context, actor Actor, in EscalateWarningInput) (Warning, error) {
	if err := requireModerator(actor); err != nil {
		return Warning{}, err
	}
	if in.Reason == "" {
		return Warning{}, errors.New("cases: escalation reason is required")
	}
	if in.ToLevel < MinWarningLevel || in.ToLevel > MaxWarningLevel {
		return Warning{}, fmt.Errorf("cases: escalation level must be between %d and %d", MinWarningLevel, MaxWarningLevel)
	}

	var warning Warning

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := lockByID(tx, &warning, in.WarningID); err != nil {
			return err
		}
		old := warningValues(warning)
		now := sm.clk.Now().UTC()
		fromLevel := warning.Level
		if err := escalateWarning(&warning, in.ToLevel, now); err != nil {
			return err
		}

		escalation := Escalation{
			ID:                uuid.New(),
			WarningID:         warning.ID,
			FromLevel:         fromLevel,
			ToLevel:           in.ToLevel,
			Reason:            in.Reason,
			EscalatedBy:       actor.ID,
			SeniorModeratorID: in.SeniorModeratorID,
			CreatedAt:         now,
		}
		if err := tx.Create(&escalation).Error; err != nil {
			return err
		}
		if err := tx.Save(&warning).Error; err != nil {
			return err
		}

		return sm.appendAudit(ctx, tx, audit, actor, targetWarning, warning.ID.String(),
			"warning_escalated", old, warningValues(warning), map[string]any{
				"escalation_id":       escalation.ID.String(),
				"from_level":          escalation.FromLevel,
				"to_level":            escalation.ToLevel,
				"senior_moderator_id": uuidString(escalation.SeniorModeratorID),
			})
	})
	if err != nil {
		return Warning{}, err
	}
	return warning, nil
}

// ExpireWarnings moves every active or escalated warning past its expiry to
// expired. Run by the scheduled system sweep.
func (sm *StateMachine) ExpireWarnings(ctx context.Context) (int, error) {
	now := sm.clk.Now().UTC()
	expired := 0

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		var warnings []Warning
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
				[]string{WarningActive, WarningEscalated}, now).
			Find(&warnings).Error; err != nil {
			return err
		}

		for i := range warnings {
			old := warningValues(warnings[i])
			warnings[i].Status = WarningExpired
			warnings[i].UpdatedAt = now
			if err := tx.Save(&warnings[i]).Error; err != nil {
				return err
			}
			if err := sm.appendAudit(ctx, tx, audit, systemActor(), targetWarning, warnings[i].ID.String(),
				"warning_expired", old, warningValues(warnings[i]), nil); err != nil {
				return err
			}
		}
		expired = len(warnings)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

// CreateRestrictionInput carries the fields for a new restriction.
type CreateRestrictionInput struct {
	SubjectUserID   uuid.UUID
	Type            string
	IsPermanent     bool
	Days            int
	Reason          string
	SourceWarningID *uuid.UUID
	Metadata        map[string]any
}

// CreateRestriction applies a restriction to a user. At most one active
// restriction of a given type may exist per user, and a permanent ban
// requires at least three currently-active warnings.
func (sm *StateMachine) CreateRestriction(ctx context.Context, actor Actor, in CreateRestrictionInput) (UserRestriction, error) {
	if actor.Type != ledger.ActorModerator && actor.Type != ledger.ActorSystem {
		return UserRestriction{}, failf(CodeNotAuthorized, "restrictions are created by moderators or the system")
	}
	if in.SubjectUserID == uuid.Nil {
		return UserRestriction{}, errors.New("cases: subject user id is required")
	}
	if !validRestrictionType(in.Type) {
		return UserRestriction{}, fmt.Errorf("cases: unknown restriction type %q", in.Type)
	}
	if in.Reason == "" {
		return UserRestriction{}, errors.New("cases: reason is required")
	}
	if in.Type == RestrictionPermanentBan {
		in.IsPermanent = true
	}
	if !in.IsPermanent && in.Days <= 0 {
		return UserRestriction{}, errors.New("cases: duration in days is required for temporary restrictions")
	}

	now := sm.clk.Now().UTC()
	restriction := UserRestriction{
		ID:                uuid.New(),
		SubjectUserID:     in.SubjectUserID,
		IssuerModeratorID: actor.ID,
		RestrictionType:   in.Type,
		IsPermanent:       in.IsPermanent,
		StartsAt:          now,
		IsActive:          true,
		Status:            RestrictionActive,
		SourceWarningID:   in.SourceWarningID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !in.IsPermanent {
		expires := now.Add(time.Duration(in.Days) * 24 * time.Hour)
		restriction.ExpiresAt = &expires
	}

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?, hashtext(?))",
			restrictionLockClass, in.SubjectUserID.String()).Error; err != nil {
			return fmt.Errorf("cases: acquire restriction lock: %w", err)
		}

		var count int64
		if err := tx.Model(&UserRestriction{}).
			Where("subject_user_id = ? AND restriction_type = ? AND is_active = TRUE", in.SubjectUserID, in.Type).
			Count(&count).Error; err != nil {
			return err
		}
		activeWarnings := 0
		if in.Type == RestrictionPermanentBan {
			n, err := sm.activeWarningCount(tx, in.SubjectUserID, now)
			if err != nil {
				return err
			}
			activeWarnings = n
		}
		if err := checkRestrictionCreate(in.Type, count, activeWarnings); err != nil {
			return err
		}

		if err := tx.Create(&restriction).Error; err != nil {
			return err
		}

		action := "restriction_applied"
		if in.Type == RestrictionPermanentBan {
			action = "ban"
		}
		return sm.appendAudit(ctx, tx, audit, actor, targetRestriction, restriction.ID.String(),
			action, nil, restrictionValues(restriction), in.Metadata)
	})
	if err != nil {
		return UserRestriction{}, err
	}

	sm.notify(ctx, restriction.SubjectUserID, notify.TemplateRestrictionApplied, map[string]any{
		"Type":        restriction.RestrictionType,
		"IsPermanent": restriction.IsPermanent,
		"ExpiresAt":   formatTime(restriction.ExpiresAt),
		"Reason":      in.Reason,
	})

	return restriction, nil
}

// LiftRestriction removes an active restriction. A non-empty reason is
// required.
func (sm *StateMachine) LiftRestriction(ctx context.Context, actor Actor, restrictionID uuid.UUID, reason string) (UserRestriction, error) {
	if err := requireModerator(actor); err != nil {
		return UserRestriction{}, err
	}
	if reason == "" {
		return UserRestriction{}, errors.New("cases: lift reason is required")
	}

	var restriction UserRestriction

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := lockByID(tx, &restriction, restrictionID); err != nil {
			return err
		}
		if restriction.Status != RestrictionActive {
			return failf(CodeInvalidState, fmt.Sprintf("restriction is %s, not active", restriction.Status))
		}

		old := restrictionValues(restriction)
		now := sm.clk.Now().UTC()
		liftedBy := actor.ID
		restriction.Status = RestrictionLifted
		restriction.IsActive = false
		restriction.LiftedAt = &now
		restriction.LiftedBy = &liftedBy
		restriction.LiftReason = reason
		restriction.UpdatedAt = now
		if err := tx.Save(&restriction).Error; err != nil {
			return err
		}

		return sm.appendAudit(ctx, tx, audit, actor, targetRestriction, restriction.ID.String(),
			"restriction_lifted", old, restrictionValues(restriction), nil)
	})
	if err != nil {
		return UserRestriction{}, err
	}

	sm.notify(ctx, restriction.SubjectUserID, notify.TemplateRestrictionLifted, map[string]any{
		"Type":   restriction.RestrictionType,
		"Reason": reason,
	})

	return restriction, nil
}

// ExtendRestriction adds days to an active, non-permanent restriction's
// expiry. When the restriction has no expiry yet, the extension counts from
// now.
func (sm *StateMachine) ExtendRestriction(ctx context.Context, actor Actor, restrictionID uuid.UUID, days int) (UserRestriction, error) {
	if err := requireModerator(actor); err != nil {
		return UserRestriction{}, err
	}
	if days <= 0 {
		return UserRestriction{}, errors.New("cases: extension days must be positive")
	}

	var restriction UserRestriction

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := lockByID(tx, &restriction, restrictionID); err != nil {
			return err
		}
		if !restriction.IsActive || restriction.IsPermanent {
			return failf(CodeInvalidState, "only active, temporary restrictions can be extended")
		}

		old := restrictionValues(restriction)
		now := sm.clk.Now().UTC()
		base := now
		if restriction.ExpiresAt != nil {
			base = *restriction.ExpiresAt
		}
		extended := base.Add(time.Duration(days) * 24 * time.Hour)
		restriction.ExpiresAt = &extended
		restriction.UpdatedAt = now
		if err := tx.Save(&restriction).Error; err != nil {
			return err
		}

		return sm.appendAudit(ctx, tx, audit, actor, targetRestriction, restriction.ID.String(),
			"restriction_extended", old, restrictionValues(restriction), map[string]any{"days": days})
	})
	if err != nil {
		return UserRestriction{}, err
	}
	return restriction, nil
}

// ExpireRestrictions moves every active, non-permanent restriction past its
// expiry to expired. Run by the scheduled system sweep.
func (sm *StateMachine) ExpireRestrictions(ctx context.Context) (int, error) {
	now := sm.clk.Now().UTC()
	expired := 0

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		var restrictions []UserRestriction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ? AND is_permanent = FALSE AND expires_at IS NOT NULL AND expires_at <= ?",
				RestrictionActive, now).
			Find(&restrictions).Error; err != nil {
			return err
		}

		for i := range restrictions {
			old := restrictionValues(restrictions[i])
			restrictions[i].Status = RestrictionExpired
			restrictions[i].IsActive = false
			restrictions[i].UpdatedAt = now
			if err := tx.Save(&restrictions[i]).Error; err != nil {
				return err
			}
			if err := sm.appendAudit(ctx, tx, audit, systemActor(), targetRestriction, restrictions[i].ID.String(),
				"restriction_expired", old, restrictionValues(restrictions[i]), nil); err != nil {
				return err
			}
		}
		expired = len(restrictions)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

// ActiveWarningCount reports the user's currently-active warning count.
func (sm *StateMachine) ActiveWarningCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return sm.activeWarningCount(sm.orm.WithContext(ctx), userID, sm.clk.Now().UTC())
}

func (sm *StateMachine) activeWarningCount(tx *gorm.DB, userID uuid.UUID, now time.Time) (int, error) {
	var count int64
	err := tx.Model(&Warning{}).
		Where("subject_user_id = ? AND status IN ? AND (expires_at IS NULL OR expires_at > ?)",
			userID, []string{WarningActive, WarningEscalated}, now).
		Count(&count).Error
	return int(count), err
}

func requireModerator(actor Actor) error {
	if actor.Type != ledger.ActorModerator {
		return failf(CodeNotAuthorized, "moderator role required")
	}
	return nil
}

func systemActor() Actor {
	return Actor{Type: ledger.ActorSystem}
}

func (sm *StateMachine) notify(ctx context.Context, userID uuid.UUID, template string, payload map[string]any) {
	if sm.sink == nil {
		return
	}
	sm.sink.Notify(ctx, userID, template, payload)
}

func lockByID(tx *gorm.DB, dest any, id uuid.UUID) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(dest, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return failf(CodeInvalidState, fmt.Sprintf("entity %s not found", id))
	}
	return err
}

func warningValues(w Warning) map[string]any {
	return map[string]any{
		"status":          w.Status,
		"level":           w.Level,
		"subject_user_id": w.SubjectUserID.String(),
		"expires_at":      formatTime(w.ExpiresAt),
		"appeal_deadline": formatTime(w.AppealDeadline),
	}
}

func restrictionValues(r UserRestriction) map[string]any {
	return map[string]any{
		"status":           r.Status,
		"restriction_type": r.RestrictionType,
		"subject_user_id":  r.SubjectUserID.String(),
		"is_permanent":     r.IsPermanent,
		"is_active":        r.IsActive,
		"expires_at":       formatTime(r.ExpiresAt),
	}
}

func appealValues(a Appeal) map[string]any {
	return map[string]any{
		"status":          a.Status,
		"appealable_type": a.AppealableType,
		"appealable_id":   a.AppealableID.String(),
		"subject_user_id": a.SubjectUserID.String(),
		"reviewer_id":     uuidString(a.ReviewerID),
		"deadline_at":     a.DeadlineAt.UTC().Format(time.RFC3339Nano),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
