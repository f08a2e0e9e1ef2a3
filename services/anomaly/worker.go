package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"modguard/pkg/bus"
	"modguard/services/ledger"
)

// ScoreRequest is the payload on the score-request subject.
type ScoreRequest struct {
	Kind      string    `json:"kind"`
	SubjectID uuid.UUID `json:"subject_id"`
}

// Worker recomputes cached scores in the background: explicitly on score
// requests, and implicitly whenever an audit event names a moderator actor
// or a filed report.
type Worker struct {
	scorer *Scorer
	bus    *bus.Bus
	logger *log.Logger
}

// NewWorker constructs a Worker.
func NewWorker(scorer *Scorer, eventBus *bus.Bus, logger *log.Logger) (*Worker, error) {
	if scorer == nil {
		return nil, errors.New("anomaly: scorer is required")
	}
	if eventBus == nil {
		return nil, errors.New("anomaly: bus is required")
	}
	return &Worker{scorer: scorer, bus: eventBus, logger: logger}, nil
}

// Run subscribes the worker until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) (io.Closer, error) {
	requests, err := w.bus.Subscribe(ctx, bus.SubjectScoreRequested, "anomaly-requests", w.handleRequest)
	if err != nil {
		return nil, fmt.Errorf("anomaly: subscribe score requests: %w", err)
	}

	appends, err := w.bus.Subscribe(ctx, bus.SubjectAuditAppended, "anomaly-audit", w.handleAudit)
	if err != nil {
		requests.Close()
		return nil, fmt.Errorf("anomaly: subscribe audit events: %w", err)
	}

	return closers{requests, appends}, nil
}

func (w *Worker) handleRequest(ctx context.Context, data []byte) error {
	var req ScoreRequest
	if err := json.Unmarshal(data, &req); err != nil {
		w.logf("WARN drop malformed score request: %v", err)
		return nil
	}
	if req.SubjectID == uuid.Nil {
		w.logf("WARN drop score request without subject")
		return nil
	}

	result, err := w.scorer.Score(ctx, req.Kind, req.SubjectID)
	if err != nil {
		return err
	}
	w.logf("INFO scored %s %s: %d (%s)", req.Kind, req.SubjectID, result.Score, result.Level)
	return nil
}

// auditEvent is the subset of the append payload the worker cares about.
type auditEvent struct {
	ActorType string     `json:"actor_type"`
	ActorID   *uuid.UUID `json:"actor_id"`
	Action    string     `json:"action"`
}

func (w *Worker) handleAudit(ctx context.Context, data []byte) error {
	var evt auditEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		w.logf("WARN drop malformed audit event: %v", err)
		return nil
	}
	if evt.ActorID == nil {
		return nil
	}

	switch {
	case evt.ActorType == ledger.ActorModerator:
		_, err := w.scorer.Score(ctx, KindModerator, *evt.ActorID)
		return err
	case evt.Action == "report_filed" || evt.Action == "report_retracted":
		_, err := w.scorer.Score(ctx, KindReporter, *evt.ActorID)
		return err
	}
	return nil
}

func (w *Worker) logf(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Printf(format, args...)
}

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
