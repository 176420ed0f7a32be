package postgres

import (
	"context"
	"fmt"

	"github.com/medscriba/medscriba/pkg/quality"
)

// windowStats holds one side of the performance comparison. The averages are
// nil when the window contains no usages; CorrectionsPerNote is derived and
// nil under the same condition (never a division by zero).
type windowStats struct {
	UsageCount         int64
	AvgConfidence      *float64
	AvgProcessingTime  *float64
	CorrectionsPerNote *float64
}

// UserPerformance implements [quality.PerformanceReporter]. It computes the
// user's trailing-window statistics and the population benchmark over all
// usages in the same window (the user's own rows included), then emits the
// four fixed report rows. The rating sense differs per metric: confidence is
// higher-is-better, processing time and corrections-per-note are
// lower-is-better; see the rating functions in package quality.
func (s *Store) UserPerformance(ctx context.Context, userID string, windowDays int) ([]quality.PerformanceComparison, error) {
	if windowDays <= 0 {
		windowDays = quality.DefaultWindowDays
	}

	user, err := s.windowStats(ctx, userID, windowDays)
	if err != nil {
		return nil, fmt.Errorf("performance reporter: user stats: %w", err)
	}
	benchmark, err := s.windowStats(ctx, "", windowDays)
	if err != nil {
		return nil, fmt.Errorf("performance reporter: benchmark stats: %w", err)
	}

	procedures := float64(user.UsageCount)
	return []quality.PerformanceComparison{
		{
			Metric: quality.MetricProceduresDocumented,
			Value:  &procedures,
			Rating: quality.RatingNotApplicable,
		},
		{
			Metric:    quality.MetricAvgConfidence,
			Value:     user.AvgConfidence,
			Benchmark: benchmark.AvgConfidence,
			Rating:    quality.RateConfidence(user.AvgConfidence, benchmark.AvgConfidence),
		},
		{
			Metric:    quality.MetricAvgProcessingTime,
			Value:     user.AvgProcessingTime,
			Benchmark: benchmark.AvgProcessingTime,
			Rating:    quality.RateProcessingTime(user.AvgProcessingTime, benchmark.AvgProcessingTime),
		},
		{
			Metric:    quality.MetricCorrectionsPerNote,
			Value:     user.CorrectionsPerNote,
			Benchmark: benchmark.CorrectionsPerNote,
			Rating:    quality.RateCorrectionsPerNote(user.CorrectionsPerNote, benchmark.CorrectionsPerNote),
		},
	}, nil
}

// windowStats computes usage statistics over the trailing window, scoped to
// one user when userID is non-empty, otherwise over the whole population.
func (s *Store) windowStats(ctx context.Context, userID string, windowDays int) (windowStats, error) {
	const q = `
		SELECT COUNT(*),
		       AVG(avg_confidence),
		       AVG(processing_time),
		       SUM(user_corrections)
		FROM   template_usages
		WHERE  created_at >= now() - ($1::int * interval '1 day')
		  AND  ($2 = '' OR user_id = $2)`

	var (
		st               windowStats
		totalCorrections *int64
	)
	err := s.pool.QueryRow(ctx, q, windowDays, userID).Scan(
		&st.UsageCount,
		&st.AvgConfidence,
		&st.AvgProcessingTime,
		&totalCorrections,
	)
	if err != nil {
		return windowStats{}, err
	}

	if st.UsageCount > 0 && totalCorrections != nil {
		perNote := float64(*totalCorrections) / float64(st.UsageCount)
		st.CorrectionsPerNote = &perNote
	}
	return st, nil
}
