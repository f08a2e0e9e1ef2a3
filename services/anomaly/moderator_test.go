package anomaly

import (
	"strings"
	"testing"
)

func TestScoreModerator(t *testing.T) {
	tests := []struct {
		name        string
		metrics     ModeratorMetrics
		wantScore   int
		wantLevel   string
		wantFactors int
	}{
		{
			name:    "clean record",
			metrics: ModeratorMetrics{ReportsHandled: 50, ReversalRate: 0.05, AvgResolutionMinutes: 12, ResolutionRate: 0.95},
		},
		{
			name:        "reversal rate alone reaches medium",
			metrics:     ModeratorMetrics{ReversalRate: 0.25},
			wantScore:   30,
			wantLevel:   RiskMedium,
			wantFactors: 1,
		},
		{
			name:        "twenty points stays low",
			metrics:     ModeratorMetrics{ReportsAgainst: 2},
			wantScore:   20,
			wantLevel:   RiskLow,
			wantFactors: 1,
		},
		{
			name:        "forty five stays medium",
			metrics:     ModeratorMetrics{ReversalRate: 0.21, ReportsHandled: 20, AvgResolutionMinutes: 10, ResolutionRate: 0.60},
			wantScore:   45,
			wantLevel:   RiskMedium,
			wantFactors: 2,
		},
		{
			name:        "fifty reaches high",
			metrics:     ModeratorMetrics{ReversalRate: 0.21, RestrictionRate: 0.16},
			wantScore:   50,
			wantLevel:   RiskHigh,
			wantFactors: 2,
		},
		{
			name:        "sixty five stays high",
			metrics:     ModeratorMetrics{ReversalRate: 0.21, RestrictionRate: 0.16, UnusualHoursRate: 0.31},
			wantScore:   65,
			wantLevel:   RiskHigh,
			wantFactors: 3,
		},
		{
			name:        "seventy reaches critical",
			metrics:     ModeratorMetrics{ReversalRate: 0.21, ReportsHandled: 11, AvgResolutionMinutes: 1.5, ResolutionRate: 0.50},
			wantScore:   70,
			wantLevel:   RiskCritical,
			wantFactors: 3,
		},
		{
			name:        "reports against accumulate unbounded and cap at one hundred",
			metrics:     ModeratorMetrics{ReportsAgainst: 20},
			wantScore:   100,
			wantLevel:   RiskCritical,
			wantFactors: 1,
		},
		{
			name:        "fast resolution needs more than ten handled",
			metrics:     ModeratorMetrics{ReportsHandled: 10, AvgResolutionMinutes: 0.5, ResolutionRate: 0.95},
			wantScore:   0,
			wantLevel:   RiskLow,
			wantFactors: 0,
		},
		{
			name:        "category bias boundary is exclusive",
			metrics:     ModeratorMetrics{CategoryBias: 0.70},
			wantScore:   0,
			wantLevel:   RiskLow,
			wantFactors: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreModerator(tc.metrics)
			if got.Score != tc.wantScore {
				t.Errorf("score = %d, want %d (factors: %v)", got.Score, tc.wantScore, got.Factors)
			}
			wantLevel := tc.wantLevel
			if wantLevel == "" {
				wantLevel = RiskLow
			}
			if got.Level != wantLevel {
				t.Errorf("level = %q, want %q", got.Level, wantLevel)
			}
			if len(got.Factors) != tc.wantFactors {
				t.Errorf("got %d factors %v, want %d", len(got.Factors), got.Factors, tc.wantFactors)
			}
		})
	}
}

func TestScoreModeratorFactorsCarryMeasuredValues(t *testing.T) {
	got := ScoreModerator(ModeratorMetrics{ReversalRate: 0.42, ReportsAgainst: 3})
	if len(got.Factors) != 2 {
		t.Fatalf("got factors %v, want 2", got.Factors)
	}
	if !strings.Contains(got.Factors[0], "42.0%") {
		t.Errorf("reversal factor %q missing measured value", got.Factors[0])
	}
	if !strings.Contains(got.Factors[1], "3 reports") {
		t.Errorf("reports-against factor %q missing measured value", got.Factors[1])
	}
}
