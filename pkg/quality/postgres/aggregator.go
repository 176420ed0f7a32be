package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/medscriba/medscriba/pkg/quality"
)

// aggregateLockClass namespaces the per-date advisory locks taken by
// AggregateDay so they cannot collide with other advisory-lock users.
const aggregateLockClass = 0x4d51 // "MQ", medscriba quality

// AggregateDay implements [quality.Aggregator]. It recomputes the full
// aggregate for date's UTC calendar day from scratch and upserts it keyed by
// metric_date, overwriting every computed field and bumping updated_at.
//
// A transaction-scoped advisory lock on the day number serializes concurrent
// aggregations of the same date; different dates proceed independently.
// Because the value is always recomputed from the event tables rather than
// incremented, re-running for a date with no new events rewrites identical
// numbers, and late-arriving events are picked up by simply re-running.
//
// Transcription and usage statistics come from independent scans: a date may
// have usages without transcriptions or vice versa, and missing linkage must
// not drop rows from either side.
func (s *Store) AggregateDay(ctx context.Context, date time.Time) (quality.DailyQualityMetrics, error) {
	day := quality.Day(date)
	m := quality.DailyQualityMetrics{Date: day}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return quality.DailyQualityMetrics{}, fmt.Errorf("aggregator: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	dayNumber := int32(day.Unix() / 86400)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(aggregateLockClass), dayNumber); err != nil {
		return quality.DailyQualityMetrics{}, fmt.Errorf("aggregator: lock date %s: %w", day.Format("2006-01-02"), err)
	}

	const transcriptionStats = `
		SELECT COUNT(*),
		       COALESCE(AVG(confidence_avg), 0),
		       COALESCE(AVG(processing_time), 0),
		       COALESCE(SUM(word_count), 0)
		FROM   transcriptions
		WHERE  created_at >= $1
		  AND  created_at <  $1 + interval '1 day'`

	err = tx.QueryRow(ctx, transcriptionStats, day).Scan(
		&m.TranscriptionCount,
		&m.AvgTranscriptionConfidence,
		&m.AvgTranscriptionProcessTime,
		&m.TotalWordCount,
	)
	if err != nil {
		return quality.DailyQualityMetrics{}, fmt.Errorf("aggregator: transcription stats: %w", err)
	}

	const usageStats = `
		SELECT COUNT(*),
		       COALESCE(AVG(avg_confidence), 0),
		       COALESCE(AVG(processing_time), 0),
		       COUNT(*) FILTER (WHERE template_source = 'dynamic'),
		       COUNT(*) FILTER (WHERE template_source = 'static'),
		       COUNT(DISTINCT user_id) FILTER (WHERE user_id <> '')
		FROM   template_usages
		WHERE  created_at >= $1
		  AND  created_at <  $1 + interval '1 day'`

	err = tx.QueryRow(ctx, usageStats, day).Scan(
		&m.UsageCount,
		&m.AvgUsageConfidence,
		&m.AvgUsageProcessTime,
		&m.DynamicTemplateCount,
		&m.StaticTemplateCount,
		&m.ActiveUsers,
	)
	if err != nil {
		return quality.DailyQualityMetrics{}, fmt.Errorf("aggregator: usage stats: %w", err)
	}

	// Corrections are scoped by their owning usage's date, not by the time
	// the correction itself was made.
	const correctionStats = `
		SELECT COUNT(c.id),
		       COUNT(DISTINCT c.usage_id)
		FROM   corrections c
		JOIN   template_usages u ON u.id = c.usage_id
		WHERE  u.created_at >= $1
		  AND  u.created_at <  $1 + interval '1 day'`

	err = tx.QueryRow(ctx, correctionStats, day).Scan(&m.CorrectionCount, &m.CorrectedNoteCount)
	if err != nil {
		return quality.DailyQualityMetrics{}, fmt.Errorf("aggregator: correction stats: %w", err)
	}

	if m.UsageCount > 0 {
		m.CorrectionRate = float64(m.CorrectedNoteCount) / float64(m.UsageCount) * 100
	}

	const upsert = `
		INSERT INTO daily_quality_metrics
		    (metric_date, transcription_count, avg_transcription_confidence,
		     avg_transcription_processing_time, total_word_count,
		     usage_count, avg_usage_confidence, avg_usage_processing_time,
		     dynamic_template_count, static_template_count,
		     correction_count, corrected_note_count, correction_rate,
		     active_users, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT (metric_date) DO UPDATE SET
		    transcription_count               = EXCLUDED.transcription_count,
		    avg_transcription_confidence      = EXCLUDED.avg_transcription_confidence,
		    avg_transcription_processing_time = EXCLUDED.avg_transcription_processing_time,
		    total_word_count                  = EXCLUDED.total_word_count,
		    usage_count                       = EXCLUDED.usage_count,
		    avg_usage_confidence              = EXCLUDED.avg_usage_confidence,
		    avg_usage_processing_time         = EXCLUDED.avg_usage_processing_time,
		    dynamic_template_count            = EXCLUDED.dynamic_template_count,
		    static_template_count             = EXCLUDED.static_template_count,
		    correction_count                  = EXCLUDED.correction_count,
		    corrected_note_count              = EXCLUDED.corrected_note_count,
		    correction_rate                   = EXCLUDED.correction_rate,
		    active_users                      = EXCLUDED.active_users,
		    updated_at                        = now()
		RETURNING updated_at`

	err = tx.QueryRow(ctx, upsert,
		day,
		m.TranscriptionCount,
		m.AvgTranscriptionConfidence,
		m.AvgTranscriptionProcessTime,
		m.TotalWordCount,
		m.UsageCount,
		m.AvgUsageConfidence,
		m.AvgUsageProcessTime,
		m.DynamicTemplateCount,
		m.StaticTemplateCount,
		m.CorrectionCount,
		m.CorrectedNoteCount,
		m.CorrectionRate,
		m.ActiveUsers,
	).Scan(&m.UpdatedAt)
	if err != nil {
		return quality.DailyQualityMetrics{}, fmt.Errorf("aggregator: upsert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return quality.DailyQualityMetrics{}, fmt.Errorf("aggregator: commit: %w", err)
	}
	return m, nil
}

// DailyMetrics implements [quality.Aggregator]. It returns the stored
// aggregates for the inclusive date range, oldest first.
func (s *Store) DailyMetrics(ctx context.Context, from, to time.Time) ([]quality.DailyQualityMetrics, error) {
	const q = `
		SELECT metric_date, transcription_count, avg_transcription_confidence,
		       avg_transcription_processing_time, total_word_count,
		       usage_count, avg_usage_confidence, avg_usage_processing_time,
		       dynamic_template_count, static_template_count,
		       correction_count, corrected_note_count, correction_rate,
		       active_users, updated_at
		FROM   daily_quality_metrics
		WHERE  metric_date >= $1
		  AND  metric_date <= $2
		ORDER  BY metric_date`

	rows, err := s.pool.Query(ctx, q, quality.Day(from), quality.Day(to))
	if err != nil {
		return nil, fmt.Errorf("aggregator: daily metrics: %w", err)
	}

	metrics, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (quality.DailyQualityMetrics, error) {
		var m quality.DailyQualityMetrics
		err := row.Scan(
			&m.Date,
			&m.TranscriptionCount,
			&m.AvgTranscriptionConfidence,
			&m.AvgTranscriptionProcessTime,
			&m.TotalWordCount,
			&m.UsageCount,
			&m.AvgUsageConfidence,
			&m.AvgUsageProcessTime,
			&m.DynamicTemplateCount,
			&m.StaticTemplateCount,
			&m.CorrectionCount,
			&m.CorrectedNoteCount,
			&m.CorrectionRate,
			&m.ActiveUsers,
			&m.UpdatedAt,
		)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("aggregator: scan daily metrics: %w", err)
	}
	if metrics == nil {
		metrics = []quality.DailyQualityMetrics{}
	}
	return metrics, nil
}
