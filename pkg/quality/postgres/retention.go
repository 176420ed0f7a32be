package postgres

import (
	"context"
	"fmt"

	"github.com/medscriba/medscriba/pkg/quality"
)

// ArchiveOldTranscriptions implements [quality.Archiver]. It replaces the
// text of transcriptions older than the cutoff with [quality.ArchivedText]
// and bumps updated_at. Rows already carrying the marker are skipped, which
// makes the operation idempotent: a second consecutive run changes (and
// reports) zero rows.
func (s *Store) ArchiveOldTranscriptions(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = quality.DefaultTranscriptionRetentionDays
	}

	const q = `
		UPDATE transcriptions
		SET    text       = $2,
		       updated_at = now()
		WHERE  created_at < now() - ($1::int * interval '1 day')
		  AND  text <> $2`

	tag, err := s.pool.Exec(ctx, q, daysToKeep, quality.ArchivedText)
	if err != nil {
		return 0, fmt.Errorf("retention: archive transcriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeOldPerformanceLogs implements [quality.Archiver]. It hard-deletes
// performance samples older than the cutoff and returns the number deleted.
func (s *Store) PurgeOldPerformanceLogs(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = quality.DefaultPerformanceLogRetentionDays
	}

	const q = `
		DELETE FROM performance_log
		WHERE created_at < now() - ($1::int * interval '1 day')`

	tag, err := s.pool.Exec(ctx, q, daysToKeep)
	if err != nil {
		return 0, fmt.Errorf("retention: purge performance logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
