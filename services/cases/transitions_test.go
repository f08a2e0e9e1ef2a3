package cases

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"modguard/services/ledger"
)

func failureCode(t *testing.T, err error) string {
	t.Helper()
	failure, ok := AsFailure(err)
	if !ok {
		t.Fatalf("expected a typed failure, got %v", err)
	}
	return failure.Code
}

func TestChallengeableWarningDeadlineBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	warning := Warning{ID: uuid.New(), SubjectUserID: uuid.New(), Status: WarningActive, CreatedAt: issued}
	deadline := issued.Add(WarningAppealWindow)

	if err := challengeableWarning(warning, deadline.Add(-time.Second)); err != nil {
		t.Fatalf("one second inside the window: %v", err)
	}
	if err := challengeableWarning(warning, deadline); err != nil {
		t.Fatalf("exactly at the deadline: %v", err)
	}

	err := challengeableWarning(warning, deadline.Add(time.Second))
	if code := failureCode(t, err); code != CodeAppealDeadlinePassed {
		t.Fatalf("one second past the deadline: code = %q, want %q", code, CodeAppealDeadlinePassed)
	}
}

func TestChallengeableWarningExplicitDeadlineWins(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	explicit := issued.Add(48 * time.Hour)
	warning := Warning{Status: WarningEscalated, CreatedAt: issued, AppealDeadline: &explicit}

	if err := challengeableWarning(warning, explicit.Add(-time.Minute)); err != nil {
		t.Fatalf("inside the explicit deadline: %v", err)
	}
	// The default seven-day window would still be open here.
	err := challengeableWarning(warning, explicit.Add(time.Minute))
	if code := failureCode(t, err); code != CodeAppealDeadlinePassed {
		t.Fatalf("past the explicit deadline: code = %q, want %q", code, CodeAppealDeadlinePassed)
	}
}

func TestChallengeableWarningStatus(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	issued := now.Add(-time.Hour)

	for _, status := range []string{WarningAcknowledged, WarningExpired, WarningOverturned} {
		warning := Warning{Status: status, CreatedAt: issued}
		err := challengeableWarning(warning, now)
		if code := failureCode(t, err); code != CodeInvalidState {
			t.Errorf("status %s: code = %q, want %q", status, code, CodeInvalidState)
		}
	}
	for _, status := range []string{WarningActive, WarningEscalated} {
		warning := Warning{Status: status, CreatedAt: issued}
		if err := challengeableWarning(warning, now); err != nil {
			t.Errorf("status %s: unexpected error %v", status, err)
		}
	}
}

func TestChallengeableRestriction(t *testing.T) {
	starts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := starts.Add(RestrictionAppealWindow)

	active := UserRestriction{Status: RestrictionActive, StartsAt: starts}
	if err := challengeableRestriction(active, deadline.Add(-time.Second)); err != nil {
		t.Fatalf("inside the window: %v", err)
	}

	err := challengeableRestriction(active, deadline.Add(time.Second))
	if code := failureCode(t, err); code != CodeAppealDeadlinePassed {
		t.Fatalf("past the window: code = %q, want %q", code, CodeAppealDeadlinePassed)
	}

	lifted := UserRestriction{Status: RestrictionLifted, StartsAt: starts}
	err = challengeableRestriction(lifted, starts.Add(time.Hour))
	if code := failureCode(t, err); code != CodeInvalidState {
		t.Fatalf("lifted restriction: code = %q, want %q", code, CodeInvalidState)
	}
}

func TestAcknowledgeWarningTransition(t *testing.T) {
	subject := uuid.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	warning := Warning{ID: uuid.New(), SubjectUserID: subject, Status: WarningActive}
	actor := Actor{ID: subject, Type: ledger.ActorUser}
	if err := acknowledgeWarning(&warning, actor, now); err != nil {
		t.Fatalf("acknowledgeWarning: %v", err)
	}
	if warning.Status != WarningAcknowledged {
		t.Fatalf("status = %q, want %q", warning.Status, WarningAcknowledged)
	}
	if warning.AcknowledgedAt == nil || !warning.AcknowledgedAt.Equal(now) {
		t.Fatalf("AcknowledgedAt = %v, want %v", warning.AcknowledgedAt, now)
	}

	other := Warning{ID: uuid.New(), SubjectUserID: subject, Status: WarningActive}
	err := acknowledgeWarning(&other, Actor{ID: uuid.New(), Type: ledger.ActorUser}, now)
	if code := failureCode(t, err); code != CodeNotAuthorized {
		t.Fatalf("wrong user: code = %q, want %q", code, CodeNotAuthorized)
	}
	err = acknowledgeWarning(&other, Actor{ID: subject, Type: ledger.ActorModerator}, now)
	if code := failureCode(t, err); code != CodeNotAuthorized {
		t.Fatalf("moderator actor: code = %q, want %q", code, CodeNotAuthorized)
	}

	expired := Warning{ID: uuid.New(), SubjectUserID: subject, Status: WarningExpired}
	err = acknowledgeWarning(&expired, actor, now)
	if code := failureCode(t, err); code != CodeInvalidState {
		t.Fatalf("expired warning: code = %q, want %q", code, CodeInvalidState)
	}
}

func TestEscalateWarningTransition(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	warning := Warning{Status: WarningActive, Level: 2}
	if err := escalateWarning(&warning, 3, now); err != nil {
		t.Fatalf("escalateWarning: %v", err)
	}
	if warning.Status != WarningEscalated || warning.Level != 3 {
		t.Fatalf("got status %q level %d, want %q level 3", warning.Status, warning.Level, WarningEscalated)
	}

	same := Warning{Status: WarningActive, Level: 2}
	err := escalateWarning(&same, 2, now)
	if code := failureCode(t, err); code != CodeInvalidState {
		t.Fatalf("same level: code = %q, want %q", code, CodeInvalidState)
	}

	done := Warning{Status: WarningOverturned, Level: 1}
	err = escalateWarning(&done, 2, now)
	if code := failureCode(t, err); code != CodeInvalidState {
		t.Fatalf("overturned warning: code = %q, want %q", code, CodeInvalidState)
	}
}

func TestClaimAppealTransition(t *testing.T) {
	reviewer := uuid.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	appeal := Appeal{Status: AppealPending}
	if err := claimAppeal(&appeal, reviewer, now); err != nil {
		t.Fatalf("claimAppeal: %v", err)
	}
	if appeal.Status != AppealUnderReview {
		t.Fatalf("status = %q, want %q", appeal.Status, AppealUnderReview)
	}
	if appeal.ReviewerID == nil || *appeal.ReviewerID != reviewer {
		t.Fatalf("ReviewerID = %v, want %v", appeal.ReviewerID, reviewer)
	}

	for _, status := range []string{AppealUnderReview, AppealApproved, AppealDenied} {
		a := Appeal{Status: status}
		err := claimAppeal(&a, reviewer, now)
		if code := failureCode(t, err); code != CodeInvalidState {
			t.Errorf("status %s: code = %q, want %q", status, code, CodeInvalidState)
		}
	}
}

func TestDecideAppealTransition(t *testing.T) {
	reviewer := uuid.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	approved := Appeal{Status: AppealPending}
	if err := decideAppeal(&approved, reviewer, true, "evidence is convincing", now); err != nil {
		t.Fatalf("decideAppeal: %v", err)
	}
	if approved.Status != AppealApproved {
		t.Fatalf("status = %q, want %q", approved.Status, AppealApproved)
	}
	if approved.ReviewNotes != "evidence is convincing" {
		t.Fatalf("ReviewNotes = %q", approved.ReviewNotes)
	}
	if approved.ReviewedAt == nil || !approved.ReviewedAt.Equal(now) {
		t.Fatalf("ReviewedAt = %v, want %v", approved.ReviewedAt, now)
	}
	if approved.ReviewerID == nil || *approved.ReviewerID != reviewer {
		t.Fatalf("ReviewerID = %v, want %v", approved.ReviewerID, reviewer)
	}

	// A reviewer assigned by an earlier claim is kept.
	claimer := uuid.New()
	claimed := Appeal{Status: AppealUnderReview, ReviewerID: &claimer}
	if err := decideAppeal(&claimed, reviewer, false, "no grounds", now); err != nil {
		t.Fatalf("decideAppeal: %v", err)
	}
	if claimed.Status != AppealDenied {
		t.Fatalf("status = %q, want %q", claimed.Status, AppealDenied)
	}
	if *claimed.ReviewerID != claimer {
		t.Fatalf("ReviewerID = %v, want the claiming reviewer %v", *claimed.ReviewerID, claimer)
	}

	for _, status := range []string{AppealApproved, AppealDenied} {
		a := Appeal{Status: status}
		err := decideAppeal(&a, reviewer, true, "again", now)
		if code := failureCode(t, err); code != CodeInvalidState {
			t.Errorf("status %s: code = %q, want %q", status, code, CodeInvalidState)
		}
	}
}

func TestOverturnForAppeal(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	warning := Warning{Status: WarningEscalated}
	if !overturnForAppeal(&warning, now) {
		t.Fatal("expected an escalated warning to be overturned")
	}
	if warning.Status != WarningOverturned {
		t.Fatalf("status = %q, want %q", warning.Status, WarningOverturned)
	}
	if !warning.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", warning.UpdatedAt, now)
	}

	// Expired during review: the approval is a no-op on the warning.
	expired := Warning{Status: WarningExpired}
	if overturnForAppeal(&expired, now) {
		t.Fatal("expected an expired warning to be left untouched")
	}
	if expired.Status != WarningExpired {
		t.Fatalf("status = %q, want %q", expired.Status, WarningExpired)
	}
}

func TestLiftForAppeal(t *testing.T) {
	liftedBy := uuid.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	restriction := UserRestriction{Status: RestrictionActive, IsActive: true}
	if !liftForAppeal(&restriction, liftedBy, now) {
		t.Fatal("expected an active restriction to be lifted")
	}
	if restriction.Status != RestrictionLifted {
		t.Fatalf("status = %q, want %q", restriction.Status, RestrictionLifted)
	}
	if restriction.IsActive {
		t.Fatal("expected IsActive to be cleared")
	}
	if restriction.LiftedAt == nil || !restriction.LiftedAt.Equal(now) {
		t.Fatalf("LiftedAt = %v, want %v", restriction.LiftedAt, now)
	}
	if restriction.LiftedBy == nil || *restriction.LiftedBy != liftedBy {
		t.Fatalf("LiftedBy = %v, want %v", restriction.LiftedBy, liftedBy)
	}
	if restriction.LiftReason != "appeal approved" {
		t.Fatalf("LiftReason = %q", restriction.LiftReason)
	}

	expired := UserRestriction{Status: RestrictionExpired}
	if liftForAppeal(&expired, liftedBy, now) {
		t.Fatal("expected an expired restriction to be left untouched")
	}
}

func TestCheckRestrictionCreate(t *testing.T) {
	tests := []struct {
		name           string
		typ            string
		activeSameType int64
		activeWarnings int
		wantCode       string
	}{
		{"temporary ok", RestrictionPosting, 0, 0, ""},
		{"duplicate active", RestrictionPosting, 1, 0, CodeRestrictionExists},
		{"ban with three warnings", RestrictionPermanentBan, 0, 3, ""},
		{"ban with two warnings", RestrictionPermanentBan, 0, 2, CodeInsufficientWarnings},
		{"duplicate ban reported first", RestrictionPermanentBan, 1, 0, CodeRestrictionExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRestrictionCreate(tt.typ, tt.activeSameType, tt.activeWarnings)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if code := failureCode(t, err); code != tt.wantCode {
				t.Fatalf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}
