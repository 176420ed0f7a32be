package quality_test

import (
	"testing"

	"github.com/medscriba/medscriba/pkg/quality"
)

func ptr(v float64) *float64 { return &v }

func TestRateConfidence(t *testing.T) {
	benchmark := ptr(0.85)
	tests := []struct {
		name string
		user *float64
		want quality.Rating
	}{
		{"well above benchmark", ptr(0.91), quality.RatingAboveAverage},
		{"exactly at 105 percent", ptr(*benchmark * 1.05), quality.RatingAboveAverage},
		{"equal to benchmark", ptr(0.85), quality.RatingAverage},
		{"just inside lower band", ptr(*benchmark * 0.95), quality.RatingAverage},
		{"below the band", ptr(0.70), quality.RatingBelowAverage},
		{"nil user value", nil, quality.RatingNotApplicable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quality.RateConfidence(tt.user, benchmark); got != tt.want {
				t.Errorf("RateConfidence(%v, 0.85) = %q, want %q", tt.user, got, tt.want)
			}
		})
	}

	if got := quality.RateConfidence(ptr(0.9), nil); got != quality.RatingNotApplicable {
		t.Errorf("RateConfidence with nil benchmark = %q, want %q", got, quality.RatingNotApplicable)
	}
}

func TestRateProcessingTime(t *testing.T) {
	// Lower is better: the comparison sense is inverted relative to confidence.
	benchmark := ptr(10.0)
	tests := []struct {
		name string
		user *float64
		want quality.Rating
	}{
		{"much faster", ptr(5.0), quality.RatingAboveAverage},
		{"exactly at 95 percent", ptr(*benchmark * 0.95), quality.RatingAboveAverage},
		{"equal to benchmark", ptr(10.0), quality.RatingAverage},
		{"just inside upper band", ptr(*benchmark * 1.05), quality.RatingAverage},
		{"slower than the band", ptr(12.0), quality.RatingBelowAverage},
		{"nil user value", nil, quality.RatingNotApplicable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quality.RateProcessingTime(tt.user, benchmark); got != tt.want {
				t.Errorf("RateProcessingTime(%v, 10) = %q, want %q", tt.user, got, tt.want)
			}
		})
	}
}

func TestRateCorrectionsPerNote(t *testing.T) {
	// Lower is better with a wider tolerance band (80% / 120%).
	benchmark := ptr(2.0)
	tests := []struct {
		name string
		user *float64
		want quality.Rating
	}{
		{"far fewer corrections", ptr(1.0), quality.RatingAboveAverage},
		{"exactly at 80 percent", ptr(*benchmark * 0.80), quality.RatingAboveAverage},
		{"equal to benchmark", ptr(2.0), quality.RatingAverage},
		{"just inside upper band", ptr(*benchmark * 1.20), quality.RatingAverage},
		{"too many corrections", ptr(3.0), quality.RatingBelowAverage},
		{"nil user value", nil, quality.RatingNotApplicable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quality.RateCorrectionsPerNote(tt.user, benchmark); got != tt.want {
				t.Errorf("RateCorrectionsPerNote(%v, 2) = %q, want %q", tt.user, got, tt.want)
			}
		})
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name           string
		avgConfidence  float64
		avgCorrections float64
		want           string
	}{
		{"critical confidence", 0.45, 0, quality.RecommendCritical},
		{"critical wins over corrections", 0.45, 10, quality.RecommendCritical},
		{"low confidence", 0.55, 0, quality.RecommendLowConfidence},
		{"excessive corrections", 0.80, 3.5, quality.RecommendManyCorrections},
		{"corrections at the boundary stay medium", 0.80, 3.0, quality.RecommendConsiderOptimize},
		{"borderline everything", 0.64, 1.0, quality.RecommendConsiderOptimize},
		{"confidence exactly 0.60 is not low", 0.60, 0, quality.RecommendConsiderOptimize},
		{"confidence exactly 0.50 is not critical", 0.50, 0, quality.RecommendLowConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quality.Recommend(tt.avgConfidence, tt.avgCorrections); got != tt.want {
				t.Errorf("Recommend(%.2f, %.2f) = %q, want %q", tt.avgConfidence, tt.avgCorrections, got, tt.want)
			}
		})
	}
}

func TestHealthCriteriaWithDefaults(t *testing.T) {
	c := quality.HealthCriteria{MinUsageCount: 5, MaxConfidence: 0.7, MaxCorrectionRate: 2}
	got := c.WithDefaults()
	if got.WindowDays != quality.DefaultWindowDays {
		t.Errorf("WindowDays = %d, want %d", got.WindowDays, quality.DefaultWindowDays)
	}
	if got.MinUsageCount != 5 || got.MaxConfidence != 0.7 || got.MaxCorrectionRate != 2 {
		t.Errorf("WithDefaults changed explicit values: %+v", got)
	}

	explicit := quality.HealthCriteria{WindowDays: 7}.WithDefaults()
	if explicit.WindowDays != 7 {
		t.Errorf("WindowDays = %d, want 7", explicit.WindowDays)
	}
}
