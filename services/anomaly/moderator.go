package anomaly

import "fmt"

// ModeratorMetrics aggregates one moderator's activity over the trailing
// window.
type ModeratorMetrics struct {
	ReportsHandled       int     // reports resolved by this moderator
	ReversalRate         float64 // share of issued warnings/restrictions later reversed on appeal
	AvgResolutionMinutes float64 // mean minutes between report creation and resolution
	RestrictionRate      float64 // restrictions/bans issued per handled report
	ReportsAgainst       int     // reports filed against the moderator
	ResolutionRate       float64 // share of handled reports resolved inside the review SLA
	UnusualHoursRate     float64 // share of audited actions between 22:00 and 06:00
	CategoryBias         float64 // max single-category share among actioned reports
}

// ScoreModerator maps misconduct metrics to a weighted score. Every
// triggered rule contributes one factor string carrying the measured value.
func ScoreModerator(m ModeratorMetrics) Result {
	score := 0
	var factors []string

	if m.ReversalRate > 0.20 {
		score += 30
		factors = append(factors, fmt.Sprintf("reversal rate %.1f%% exceeds 20%%", m.ReversalRate*100))
	}
	if m.ReportsHandled > 10 && m.AvgResolutionMinutes < 2 {
		score += 25
		factors = append(factors, fmt.Sprintf("average resolution time %.1f min below 2 min over %d reports", m.AvgResolutionMinutes, m.ReportsHandled))
	}
	if m.RestrictionRate > 0.15 {
		score += 20
		factors = append(factors, fmt.Sprintf("restriction rate %.1f%% exceeds 15%%", m.RestrictionRate*100))
	}
	if m.ReportsAgainst > 0 {
		score += 10 * m.ReportsAgainst
		factors = append(factors, fmt.Sprintf("%d reports filed against moderator", m.ReportsAgainst))
	}
	if m.ReportsHandled > 10 && m.ResolutionRate < 0.70 {
		score += 15
		factors = append(factors, fmt.Sprintf("resolution rate %.1f%% below 70%% over %d reports", m.ResolutionRate*100, m.ReportsHandled))
	}
	if m.UnusualHoursRate > 0.30 {
		score += 15
		factors = append(factors, fmt.Sprintf("unusual-hours activity %.1f%% exceeds 30%%", m.UnusualHoursRate*100))
	}
	if m.CategoryBias > 0.70 {
		score += 20
		factors = append(factors, fmt.Sprintf("category bias %.2f exceeds 0.70", m.CategoryBias))
	}

	score = capScore(score)
	return Result{Score: score, Level: moderatorRiskLevel(score), Factors: factors}
}

func moderatorRiskLevel(score int) string {
	switch {
	case score >= 70:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 30:
		return RiskMedium
	default:
		return RiskLow
	}
}
