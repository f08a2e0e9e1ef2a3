package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"modguard/services/ledger"
	"modguard/services/notify"
)

// CreateAppealInput carries the fields for a new appeal. Evidence items are
// stored through the evidence collector before this call; only descriptors
// of successfully stored items are attached here.
type CreateAppealInput struct {
	Ref      AppealableRef
	Reason   string
	Evidence []EvidenceDescriptor
}

// CreateAppeal opens an appeal against a warning or restriction. The
// appealable must still be challengeable, the appeal window must be open,
// and no other non-terminal appeal may exist for the same entity.
func (sm *StateMachine) CreateAppeal(ctx context.Context, actor Actor, in CreateAppealInput) (Appeal, error) {
	if actor.Type != ledger.ActorUser {
		return Appeal{}, failf(CodeNotAuthorized, "appeals are filed by the affected user")
	}
	if !in.Ref.Valid() {
		return Appeal{}, errors.New("cases: a valid appealable reference is required")
	}
	if in.Reason == "" {
		return Appeal{}, errors.New("cases: appeal reason is required")
	}

	now := sm.clk.Now().UTC()
	appeal := Appeal{
		ID:             uuid.New(),
		AppealableType: string(in.Ref.Kind),
		AppealableID:   in.Ref.ID,
		Reason:         in.Reason,
		Status:         AppealPending,
		DeadlineAt:     now.Add(AppealReviewSLA),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?, hashtext(?))",
			appealLockClass, in.Ref.ID.String()).Error; err != nil {
			return fmt.Errorf("cases: acquire appeal lock: %w", err)
		}

		subjectID, err := sm.checkChallengeable(tx, in.Ref, now)
		if err != nil {
			return err
		}
		if actor.ID != subjectID {
			return failf(CodeNotAuthorized, "only the affected user can appeal")
		}
		appeal.SubjectUserID = subjectID

		var open int64
		if err := tx.Model(&Appeal{}).
			Where("appealable_type = ? AND appealable_id = ? AND status IN ?",
				appeal.AppealableType, appeal.AppealableID, []string{AppealPending, AppealUnderReview}).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return failf(CodeAppealExists, "an open appeal already exists for this entity")
		}

		if err := tx.Create(&appeal).Error; err != nil {
			return err
		}

		for i, item := range in.Evidence {
			evidence := AppealEvidence{
				ID:          uuid.New(),
				AppealID:    appeal.ID,
				Position:    i,
				BlobPath:    item.BlobPath,
				ContentType: item.ContentType,
				SHA256:      item.SHA256,
				ScanClean:   item.ScanClean,
				CreatedAt:   now,
			}
			if err := tx.Create(&evidence).Error; err != nil {
				return err
			}
		}

		return sm.appendAudit(ctx, tx, audit, actor, targetAppeal, appeal.ID.String(),
			"appeal_created", nil, appealValues(appeal), map[string]any{
				"evidence_count": len(in.Evidence),
			})
	})
	if err != nil {
		return Appeal{}, err
	}

	sm.notify(ctx, appeal.SubjectUserID, notify.TemplateAppealReceived, map[string]any{
		"AppealableType": appeal.AppealableType,
		"ReviewDeadline": appeal.DeadlineAt.UTC().Format("2006-01-02"),
	})

	return appeal, nil
}

// checkChallengeable resolves the appealable entity, verifies it is in a
// challengeable state and inside its appeal window, and returns the subject
// user.
func (sm *StateMachine) checkChallengeable(tx *gorm.DB, ref AppealableRef, now time.Time) (uuid.UUID, error) {
	switch ref.Kind {
	case AppealableWarning:
		var warning Warning
		if err := lockByID(tx, &warning, ref.ID); err != nil {
			return uuid.Nil, err
		}
		if err := challengeableWarning(warning, now); err != nil {
			return uuid.Nil, err
		}
		return warning.SubjectUserID, nil

	case AppealableRestriction:
		var restriction UserRestriction
		if err := lockByID(tx, &restriction, ref.ID); err != nil {
			return uuid.Nil, err
		}
		if err := challengeableRestriction(restriction, now); err != nil {
			return uuid.Nil, err
		}
		return restriction.SubjectUserID, nil
	}

	return uuid.Nil, fmt.Errorf("cases: unknown appealable kind %q", ref.Kind)
}

// ClaimAppeal moves a pending appeal to under_review and assigns the
// claiming moderator as reviewer.
func (sm *StateMachine) ClaimAppeal(ctx context.Context, actor Actor, appealID uuid.UUID) (Appeal, error) {
	if err := requireModerator(actor); err != nil {
		return Appeal{}, err
	}

	var appeal Appeal

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := lockByID(tx, &appeal, appealID); err != nil {
			return err
		}
		old := appealValues(appeal)
		if err := claimAppeal(&appeal, actor.ID, sm.clk.Now().UTC()); err != nil {
			return err
		}
		if err := tx.Save(&appeal).Error; err != nil {
			return err
		}

		return sm.appendAudit(ctx, tx, audit, actor, targetAppeal, appeal.ID.String(),
			"appeal_claimed", old, appealValues(appeal), nil)
	})
	if err != nil {
		return Appeal{}, err
	}
	return appeal, nil
}

// DecideAppeal closes an appeal as approved or denied. Approval reverses
// the appealable entity inside the same transaction: a warning is
// overturned, a restriction is lifted.
func (sm *StateMachine) DecideAppeal(ctx context.Context, actor Actor, appealID uuid.UUID, approve bool, notes string) (Appeal, error) {
	if err := requireModerator(actor); err != nil {
		return Appeal{}, err
	}
	if notes == "" {
		return Appeal{}, errors.New("cases: review notes are required")
	}

	var appeal Appeal

	err := sm.transact(ctx, func(tx *gorm.DB, audit *auditCollector) error {
		if err := lockByID(tx, &appeal, appealID); err != nil {
			return err
		}
		old := appealValues(appeal)
		now := sm.clk.Now().UTC()
		if err := decideAppeal(&appeal, actor.ID, approve, notes, now); err != nil {
			return err
		}
		if err := tx.Save(&appeal).Error; err != nil {
			return err
		}

		if err := sm.appendAudit(ctx, tx, audit, actor, targetAppeal, appeal.ID.String(),
			"appeal_decided", old, appealValues(appeal), map[string]any{"approved": approve}); err != nil {
			return err
		}

		if approve {
			return sm.reverseAppealable(ctx, tx, audit, appeal, actor, now)
		}
		return nil
	})
	if err != nil {
		return Appeal{}, err
	}

	decision := "denied"
	if approve {
		decision = "approved"
	}
	sm.notify(ctx, appeal.SubjectUserID, notify.TemplateAppealDecided, map[string]any{
		"AppealableType": appeal.AppealableType,
		"Decision":       decision,
		"Notes":          notes,
	})

	return appeal, nil
}

// reverseAppealable applies the approval side effect to the appealed
// entity. An appealable that already reached a terminal state by other
// means (expiry during review) is left untouched; the decision audit record
// still notes the approval.
func (sm *StateMachine) reverseAppealable(ctx context.Context, tx *gorm.DB, audit *auditCollector, appeal Appeal, actor Actor, now time.Time) error {
	switch AppealableKind(appeal.AppealableType) {
	case AppealableWarning:
		var warning Warning
		if err := lockByID(tx, &warning, appeal.AppealableID); err != nil {
			return err
		}
		old := warningValues(warning)
		if !overturnForAppeal(&warning, now) {
			sm.logf("WARN appeal %s approved but warning %s is already %s", appeal.ID, warning.ID, warning.Status)
			return nil
		}
		if err := tx.Save(&warning).Error; err != nil {
			return err
		}
		return sm.appendAudit(ctx, tx, audit, systemActor(), targetWarning, warning.ID.String(),
			"warning_overturned", old, warningValues(warning), map[string]any{"appeal_id": appeal.ID.String()})

	case AppealableRestriction:
		var restriction UserRestriction
		if err := lockByID(tx, &restriction, appeal.AppealableID); err != nil {
			return err
		}
		old := restrictionValues(restriction)
		if !liftForAppeal(&restriction, actor.ID, now) {
			sm.logf("WARN appeal %s approved but restriction %s is already %s", appeal.ID, restriction.ID, restriction.Status)
			return nil
		}
		if err := tx.Save(&restriction).Error; err != nil {
			return err
		}
		return sm.appendAudit(ctx, tx, audit, systemActor(), targetRestriction, restriction.ID.String(),
			"restriction_lifted", old, restrictionValues(restriction), map[string]any{"appeal_id": appeal.ID.String()})
	}

	return fmt.Errorf("cases: unknown appealable type %q", appeal.AppealableType)
}

func (sm *StateMachine) logf(format string, args ...any) {
	if sm.logger == nil {
		return
	}
	sm.logger.Printf(format, args...)
}
