package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"modguard/pkg/clock"
)

// Scorer computes and caches anomaly scores. Metric loading failures
// produce an explicit failed result instead of an error so callers on the
// moderation path are never blocked by the scoring pipeline.
type Scorer struct {
	loader *Loader
	orm    *gorm.DB
	clk    clock.Clock
	logger *log.Logger

	ModeratorWindow time.Duration
	ReporterWindow  time.Duration
}

// NewScorer constructs a Scorer with the default trailing windows.
func NewScorer(loader *Loader, orm *gorm.DB, clk clock.Clock, logger *log.Logger) (*Scorer, error) {
	if loader == nil {
		return nil, errors.New("anomaly: loader is required")
	}
	if orm == nil {
		return nil, errors.New("anomaly: orm is required")
	}
	if clk == nil {
		return nil, errors.New("anomaly: clock is required")
	}
	return &Scorer{
		loader:          loader,
		orm:             orm,
		clk:             clk,
		logger:          logger,
		ModeratorWindow: ModeratorWindow,
		ReporterWindow:  ReporterWindow,
	}, nil
}

// Score computes the score of the given kind for subjectID and caches it.
func (s *Scorer) Score(ctx context.Context, kind string, subjectID uuid.UUID) (Result, error) {
	now := s.clk.Now().UTC()

	var result Result
	switch kind {
	case KindModerator:
		metrics, err := s.loader.LoadModeratorMetrics(ctx, subjectID, s.ModeratorWindow, now)
		if err != nil {
			return s.failedResult(kind, subjectID, err), nil
		}
		result = ScoreModerator(metrics)
	case KindReporter:
		metrics, err := s.loader.LoadReporterMetrics(ctx, subjectID, s.ReporterWindow, now)
		if err != nil {
			return s.failedResult(kind, subjectID, err), nil
		}
		result = ScoreReporter(metrics)
	default:
		return Result{}, fmt.Errorf("anomaly: unknown score kind %q", kind)
	}

	if err := s.cache(ctx, kind, subjectID, result, now); err != nil {
		s.logf("WARN cache %s score for %s: %v", kind, subjectID, err)
	}
	return result, nil
}

// Latest returns the most recent cached score for the subject, if any.
func (s *Scorer) Latest(ctx context.Context, kind string, subjectID uuid.UUID) (ModerationScore, bool, error) {
	var score ModerationScore
	err := s.orm.WithContext(ctx).
		Where("subject_id = ? AND kind = ?", subjectID, kind).
		Order("computed_at DESC").
		First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ModerationScore{}, false, nil
	}
	if err != nil {
		return ModerationScore{}, false, err
	}
	return score, true, nil
}

func (s *Scorer) failedResult(kind string, subjectID uuid.UUID, err error) Result {
	s.logf("WARN %s score for %s failed: %v", kind, subjectID, err)
	return Result{
		Level:   RiskLow,
		Factors: []string{fmt.Sprintf("analysis failed: %v", err)},
		Failed:  true,
	}
}

func (s *Scorer) cache(ctx context.Context, kind string, subjectID uuid.UUID, result Result, now time.Time) error {
	factors := make([]any, len(result.Factors))
	for i, f := range result.Factors {
		factors[i] = f
	}
	row := ModerationScore{
		SubjectID:  subjectID,
		Kind:       kind,
		Score:      result.Score,
		RiskLevel:  result.Level,
		Factors:    datatypes.JSONMap{"factors": factors},
		ComputedAt: now,
	}
	return s.orm.WithContext(ctx).Create(&row).Error
}

func (s *Scorer) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
