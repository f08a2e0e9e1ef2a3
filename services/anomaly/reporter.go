package anomaly

import (
	"fmt"
	"time"
)

// burstWindow is the sliding window used for report-burst detection.
const burstWindow = 5 * time.Minute

// ReporterMetrics aggregates one reporter's filing behavior over the
// trailing window.
type ReporterMetrics struct {
	TotalReports        int
	DismissalRate       float64 // dismissed / total
	SuccessRate         float64 // actioned / total
	MaxSameTarget       int     // most reports against a single user
	BurstMax            int     // most reports inside any 5-minute window
	Retracted           int
	MaxDuplicates       int     // most reports sharing target user and category
	TargetConcentration float64 // max-target-count / total
}

// ScoreReporter maps false-reporting metrics to a weighted score.
func ScoreReporter(m ReporterMetrics) Result {
	score := 0
	var factors []string

	switch {
	case m.DismissalRate > 0.70:
		score += 40
		factors = append(factors, fmt.Sprintf("dismissal rate %.1f%% exceeds 70%%", m.DismissalRate*100))
	case m.DismissalRate > 0.50:
		score += 25
		factors = append(factors, fmt.Sprintf("dismissal rate %.1f%% exceeds 50%%", m.DismissalRate*100))
	}

	if m.TotalReports > 5 {
		switch {
		case m.SuccessRate < 0.20:
			score += 30
			factors = append(factors, fmt.Sprintf("success rate %.1f%% below 20%% over %d reports", m.SuccessRate*100, m.TotalReports))
		case m.SuccessRate < 0.30:
			score += 15
			factors = append(factors, fmt.Sprintf("success rate %.1f%% below 30%% over %d reports", m.SuccessRate*100, m.TotalReports))
		}
	}

	if m.MaxSameTarget > 5 {
		score += 20
		factors = append(factors, fmt.Sprintf("%d reports against the same user", m.MaxSameTarget))
	}
	if m.BurstMax >= 3 {
		score += 25
		factors = append(factors, fmt.Sprintf("%d reports within a 5-minute window", m.BurstMax))
	}
	if m.Retracted > 2 {
		score += 15
		factors = append(factors, fmt.Sprintf("%d retracted reports", m.Retracted))
	}
	if m.MaxDuplicates > 3 {
		score += 20
		factors = append(factors, fmt.Sprintf("%d duplicate reports against the same target and category", m.MaxDuplicates))
	}
	if m.TargetConcentration > 0.60 {
		score += 15
		factors = append(factors, fmt.Sprintf("target concentration %.2f exceeds 0.60", m.TargetConcentration))
	}

	score = capScore(score)
	return Result{Score: score, Level: reporterRiskLevel(score), Factors: factors}
}

func reporterRiskLevel(score int) string {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 60:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// maxWithinWindow reports the largest number of timestamps falling inside
// any sliding window of the given width. Timestamps must be sorted
// ascending.
func maxWithinWindow(times []time.Time, window time.Duration) int {
	best := 0
	start := 0
	for end := range times {
		for times[end].Sub(times[start]) > window {
			start++
		}
		if n := end - start + 1; n > best {
			best = n
		}
	}
	return best
}
