package notify

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"modguard/pkg/bus"
	"modguard/pkg/render"
)

// Template identifiers understood by the notifier.
const (
	TemplateWarningIssued      = "warning_issued.tmpl"
	TemplateRestrictionApplied = "restriction_applied.tmpl"
	TemplateRestrictionLifted  = "restriction_lifted.tmpl"
	TemplateAppealReceived     = "appeal_received.tmpl"
	TemplateAppealDecided      = "appeal_decided.tmpl"
)

// Sink delivers user-facing notifications. Delivery is fire-and-forget;
// implementations log failures instead of propagating them.
type Sink interface {
	Notify(ctx context.Context, userID uuid.UUID, templateID string, payload map[string]any)
}

// Notifier renders a template and publishes the result on the notification
// subject for downstream delivery workers.
type Notifier struct {
	bus      *bus.Bus
	renderer *render.Engine
	logger   *log.Logger
}

// New constructs a Notifier.
func New(eventBus *bus.Bus, renderer *render.Engine, logger *log.Logger) (*Notifier, error) {
	if eventBus == nil {
		return nil, errors.New("notify: bus is required")
	}
	if renderer == nil {
		return nil, errors.New("notify: renderer is required")
	}
	return &Notifier{bus: eventBus, renderer: renderer, logger: logger}, nil
}

// Notify renders templateID with payload and publishes the notification.
// Failures are logged, never returned; a lost notification must not fail
// the moderation action that triggered it.
func (n *Notifier) Notify(ctx context.Context, userID uuid.UUID, templateID string, payload map[string]any) {
	if n == nil {
		return
	}

	body, err := n.renderer.Render(templateID, payload)
	if err != nil {
		n.logf("WARN render notification %s: %v", templateID, err)
		return
	}

	msg := map[string]any{
		"user_id":  userID.String(),
		"template": templateID,
		"body":     body,
		"payload":  payload,
	}
	if err := n.bus.Publish(ctx, bus.SubjectNotifications, msg); err != nil {
		n.logf("WARN publish notification for %s: %v", userID, err)
	}
}

func (n *Notifier) logf(format string, args ...any) {
	if n.logger == nil {
		return
	}
	n.logger.Printf(format, args...)
}

var _ Sink = (*Notifier)(nil)
