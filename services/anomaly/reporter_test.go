package anomaly

import (
	"testing"
	"time"
)

func TestScoreReporter(t *testing.T) {
	tests := []struct {
		name        string
		metrics     ReporterMetrics
		wantScore   int
		wantLevel   string
		wantFactors int
	}{
		{
			name:    "honest reporter",
			metrics: ReporterMetrics{TotalReports: 12, DismissalRate: 0.10, SuccessRate: 0.80},
		},
		{
			name:        "exactly forty is medium",
			metrics:     ReporterMetrics{TotalReports: 4, DismissalRate: 0.71},
			wantScore:   40,
			wantLevel:   RiskMedium,
			wantFactors: 1,
		},
		{
			name:        "moderate dismissal takes the lower branch only",
			metrics:     ReporterMetrics{TotalReports: 4, DismissalRate: 0.51},
			wantScore:   25,
			wantLevel:   RiskLow,
			wantFactors: 1,
		},
		{
			name:        "success rate rules need more than five reports",
			metrics:     ReporterMetrics{TotalReports: 5, SuccessRate: 0.10},
			wantScore:   0,
			wantLevel:   RiskLow,
			wantFactors: 0,
		},
		{
			name:        "exactly sixty is high",
			metrics:     ReporterMetrics{TotalReports: 10, DismissalRate: 0.71, SuccessRate: 0.30, MaxSameTarget: 6, TargetConcentration: 0.60},
			wantScore:   60,
			wantLevel:   RiskHigh,
			wantFactors: 2,
		},
		{
			name:        "exactly eighty is critical",
			metrics:     ReporterMetrics{TotalReports: 10, DismissalRate: 0.71, SuccessRate: 0.30, MaxSameTarget: 6, MaxDuplicates: 4},
			wantScore:   80,
			wantLevel:   RiskCritical,
			wantFactors: 3,
		},
		{
			name:        "burst of three scores",
			metrics:     ReporterMetrics{TotalReports: 3, BurstMax: 3},
			wantScore:   25,
			wantLevel:   RiskLow,
			wantFactors: 1,
		},
		{
			name:        "burst of two does not",
			metrics:     ReporterMetrics{TotalReports: 2, BurstMax: 2},
			wantScore:   0,
			wantLevel:   RiskLow,
			wantFactors: 0,
		},
		{
			name:        "retractions over two score",
			metrics:     ReporterMetrics{TotalReports: 6, SuccessRate: 0.50, Retracted: 3},
			wantScore:   15,
			wantLevel:   RiskLow,
			wantFactors: 1,
		},
		{
			name: "everything fires and caps at one hundred",
			metrics: ReporterMetrics{
				TotalReports:        20,
				DismissalRate:       0.90,
				SuccessRate:         0.05,
				MaxSameTarget:       10,
				BurstMax:            5,
				Retracted:           4,
				MaxDuplicates:       6,
				TargetConcentration: 0.80,
			},
			wantScore:   100,
			wantLevel:   RiskCritical,
			wantFactors: 7,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreReporter(tc.metrics)
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

func TestMaxWithinWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(offset time.Duration) time.Time { return base.Add(offset) }

	tests := []struct {
		name  string
		times []time.Time
		want  int
	}{
		{name: "empty", times: nil, want: 0},
		{name: "single", times: []time.Time{base}, want: 1},
		{
			name:  "three inside five minutes",
			times: []time.Time{at(0), at(2 * time.Minute), at(5 * time.Minute), at(20 * time.Minute)},
			want:  3,
		},
		{
			name:  "spread out",
			times: []time.Time{at(0), at(10 * time.Minute), at(20 * time.Minute)},
			want:  1,
		},
		{
			name:  "burst at the end",
			times: []time.Time{at(0), at(time.Hour), at(time.Hour + time.Minute), at(time.Hour + 2*time.Minute), at(time.Hour + 3*time.Minute)},
			want:  4,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := maxWithinWindow(tc.times, burstWindow); got != tc.want {
				t.Errorf("maxWithinWindow = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestConcentration(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
		want   float64
	}{
		{name: "empty", counts: nil, want: 0},
		{name: "single group", counts: []int{4}, want: 1},
		{name: "dominant group", counts: []int{6, 2, 2}, want: 0.6},
		{name: "even spread", counts: []int{1, 1, 1, 1}, want: 0.25},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := concentration(tc.counts); got != tc.want {
				t.Errorf("concentration(%v) = %v, want %v", tc.counts, got, tc.want)
			}
		})
	}
}
