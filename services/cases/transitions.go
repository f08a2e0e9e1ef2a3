package cases

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"modguard/services/ledger"
)

// Transition checks and mutations, pure over already-loaded entities. The
// state machine's transactional methods hold the row locks, call these,
// and persist the results.

// challengeableWarning verifies a warning can still be appealed at now.
func challengeableWarning(w Warning, now time.Time) error {
	if !warningChallengeable(w.Status) {
		return failf(CodeInvalidState, fmt.Sprintf("warning is %s and can no longer be appealed", w.Status))
	}
	if now.After(warningAppealDeadline(w.CreatedAt, w.AppealDeadline)) {
		return failf(CodeAppealDeadlinePassed, "the appeal window for this warning has closed")
	}
	return nil
}

// challengeableRestriction verifies a restriction can still be appealed at
// now. Only active restrictions qualify, and only within the window after
// they took effect.
func challengeableRestriction(r UserRestriction, now time.Time) error {
	if r.Status != RestrictionActive {
		return failf(CodeInvalidState, fmt.Sprintf("restriction is %s and can no longer be appealed", r.Status))
	}
	if now.After(r.StartsAt.Add(RestrictionAppealWindow)) {
		return failf(CodeAppealDeadlinePassed, "the appeal window for this restriction has closed")
	}
	return nil
}

// acknowledgeWarning moves an active warning to acknowledged. Only the
// warned user may acknowledge.
func acknowledgeWarning(w *Warning, actor Actor, now time.Time) error {
	if actor.Type != ledger.ActorUser || actor.ID != w.SubjectUserID {
		return failf(CodeNotAuthorized, "only the warned user can acknowledge a warning")
	}
	if w.Status != WarningActive {
		return failf(CodeInvalidState, fmt.Sprintf("warning is %s, not active", w.Status))
	}
	w.Status = WarningAcknowledged
	w.AcknowledgedAt = &now
	w.UpdatedAt = now
	return nil
}

// escalateWarning raises an active warning's level. The level must strictly
// increase.
func escalateWarning(w *Warning, toLevel int, now time.Time) error {
	if w.Status != WarningActive {
		return failf(CodeInvalidState, fmt.Sprintf("warning is %s, not active", w.Status))
	}
	if toLevel <= w.Level {
		return failf(CodeInvalidState, "escalation must increase the warning level")
	}
	w.Status = WarningEscalated
	w.Level = toLevel
	w.UpdatedAt = now
	return nil
}

// claimAppeal moves a pending appeal under review and assigns the reviewer.
func claimAppeal(a *Appeal, reviewer uuid.UUID, now time.Time) error {
	if a.Status != AppealPending {
		return failf(CodeInvalidState, fmt.Sprintf("appeal is %s, not pending", a.Status))
	}
	a.Status = AppealUnderReview
	a.ReviewerID = &reviewer
	a.UpdatedAt = now
	return nil
}

// decideAppeal closes a non-terminal appeal as approved or denied. A
// reviewer set by an earlier claim is kept.
func decideAppeal(a *Appeal, reviewer uuid.UUID, approve bool, notes string, now time.Time) error {
	if a.Terminal() {
		return failf(CodeInvalidState, fmt.Sprintf("appeal is already %s", a.Status))
	}
	if a.ReviewerID == nil {
		a.ReviewerID = &reviewer
	}
	a.Status = AppealDenied
	if approve {
		a.Status = AppealApproved
	}
	a.ReviewNotes = notes
	a.ReviewedAt = &now
	a.UpdatedAt = now
	return nil
}

// overturnForAppeal applies the approval side effect to a warning. It
// reports false, leaving the warning untouched, when the warning already
// reached a terminal state by other means.
func overturnForAppeal(w *Warning, now time.Time) bool {
	if !warningChallengeable(w.Status) {
		return false
	}
	w.Status = WarningOverturned
	w.UpdatedAt = now
	return true
}

// liftForAppeal applies the approval side effect to a restriction,
// reporting false when it is no longer active.
func liftForAppeal(r *UserRestriction, liftedBy uuid.UUID, now time.Time) bool {
	if r.Status != RestrictionActive {
		return false
	}
	r.Status = RestrictionLifted
	r.IsActive = false
	r.LiftedAt = &now
	r.LiftedBy = &liftedBy
	r.LiftReason = "appeal approved"
	r.UpdatedAt = now
	return true
}

// checkRestrictionCreate verifies the in-transaction preconditions for a
// new restriction given the user's current counts: no duplicate active
// restriction of the same type, and at least three active warnings before
// a permanent ban.
func checkRestrictionCreate(restrictionType string, activeSameType int64, activeWarnings int) error {
	if activeSameType > 0 {
		return failf(CodeRestrictionExists,
			fmt.Sprintf("user already has an active %s restriction", restrictionType))
	}
	if restrictionType == RestrictionPermanentBan && activeWarnings < 3 {
		return failf(CodeInsufficientWarnings,
			fmt.Sprintf("permanent ban requires at least 3 active warnings, user has %d", activeWarnings))
	}
	return nil
}
