package escalation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"modguard/services/cases"
	"modguard/services/ledger"
)

// Outcome describes one engine evaluation. Rule is the threshold rule that
// fired; Applied reports whether the automatic action actually went through
// (a precondition failure inside the state machine leaves Applied false and
// Skipped explaining why).
type Outcome struct {
	Rule        Rule                   `json:"rule"`
	Applied     bool                   `json:"applied"`
	Skipped     string                 `json:"skipped,omitempty"`
	Restriction *cases.UserRestriction `json:"restriction,omitempty"`
}

// Engine applies automatic restrictions when a user's active warning count
// crosses a policy threshold. Automatic actions go through the case state
// machine like any moderator action and are subject to the same
// preconditions.
type Engine struct {
	sm     *cases.StateMachine
	policy Policy
	logger *log.Logger
}

// New constructs an Engine.
func New(sm *cases.StateMachine, policy Policy, logger *log.Logger) (*Engine, error) {
	if sm == nil {
		return nil, errors.New("escalation: state machine is required")
	}
	if len(policy.Rules) == 0 {
		return nil, errors.New("escalation: policy has no rules")
	}
	policy.sort()
	return &Engine{sm: sm, policy: policy, logger: logger}, nil
}

// Evaluate re-checks the subject's active warning count against the policy
// and applies the single highest matching rule. A nil Outcome means no rule
// fired. Precondition failures from the state machine (for example a
// restriction of the same type already active) are reported in the Outcome,
// never escalated into an error.
func (e *Engine) Evaluate(ctx context.Context, subjectUserID, triggerWarningID uuid.UUID) (*Outcome, error) {
	count, err := e.sm.ActiveWarningCount(ctx, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("escalation: count active warnings: %w", err)
	}

	rule, ok := e.policy.Match(count)
	if !ok {
		return nil, nil
	}

	outcome := &Outcome{Rule: rule}
	in := cases.CreateRestrictionInput{
		SubjectUserID:   subjectUserID,
		Reason:          fmt.Sprintf("automatic action: %d active warnings reached threshold %d", count, rule.Threshold),
		SourceWarningID: &triggerWarningID,
		Metadata: map[string]any{
			"auto_applied":       true,
			"active_warnings":    count,
			"threshold":          rule.Threshold,
			"risk_level":         rule.Level,
			"trigger_warning_id": triggerWarningID.String(),
		},
	}

	switch rule.Action {
	case ActionPermanentBan:
		in.Type = cases.RestrictionPermanentBan
		in.IsPermanent = true
	case ActionPostingRestriction:
		in.Type = cases.RestrictionPosting
		in.Days = rule.Days
	default:
		return nil, fmt.Errorf("escalation: unknown action %q", rule.Action)
	}

	restriction, err := e.sm.CreateRestriction(ctx, systemActor(), in)
	if err != nil {
		if failure, ok := cases.AsFailure(err); ok {
			e.logf("WARN auto %s for user %s skipped: %s (%s)",
				rule.Action, subjectUserID, failure.Message, failure.Code)
			outcome.Skipped = failure.Code
			return outcome, nil
		}
		return nil, fmt.Errorf("escalation: apply %s: %w", rule.Action, err)
	}

	outcome.Applied = true
	outcome.Restriction = &restriction
	e.logf("INFO auto %s applied to user %s (%d active warnings, threshold %d)",
		rule.Action, subjectUserID, count, rule.Threshold)
	return outcome, nil
}

func systemActor() cases.Actor {
	return cases.Actor{Type: ledger.ActorSystem}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
