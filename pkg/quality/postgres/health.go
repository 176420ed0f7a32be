package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medscriba/medscriba/pkg/quality"
)

// IdentifyProblematicTemplates implements [quality.HealthAnalyzer]. It groups
// usages inside the trailing window by template key and keeps groups that
// meet the minimum usage count and fail either the confidence or the
// correction check. Output is ordered worst confidence first, ties broken by
// most corrections. Pure read; no side effects.
//
// The correction check compares the summed correction count against
// MaxCorrectionRate × usage count. Total corrections, not distinct corrected
// notes; the distinct-note rate is the daily aggregate's definition and the
// two are kept separate on purpose.
func (s *Store) IdentifyProblematicTemplates(ctx context.Context, criteria quality.HealthCriteria) ([]quality.TemplateHealth, error) {
	criteria = criteria.WithDefaults()

	const q = `
		SELECT template_key,
		       COUNT(*),
		       AVG(avg_confidence),
		       AVG(user_corrections::float8)
		FROM   template_usages
		WHERE  created_at >= now() - ($1::int * interval '1 day')
		GROUP  BY template_key
		HAVING COUNT(*) >= $2
		   AND (AVG(avg_confidence) < $3 OR SUM(user_corrections) > $4 * COUNT(*))
		ORDER  BY AVG(avg_confidence) ASC, AVG(user_corrections::float8) DESC`

	rows, err := s.pool.Query(ctx, q,
		criteria.WindowDays,
		criteria.MinUsageCount,
		criteria.MaxConfidence,
		criteria.MaxCorrectionRate,
	)
	if err != nil {
		return nil, fmt.Errorf("health analyzer: identify: %w", err)
	}

	findings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (quality.TemplateHealth, error) {
		var h quality.TemplateHealth
		if err := row.Scan(&h.TemplateKey, &h.UsageCount, &h.AvgConfidence, &h.AvgCorrections); err != nil {
			return quality.TemplateHealth{}, err
		}
		h.Recommendation = quality.Recommend(h.AvgConfidence, h.AvgCorrections)
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("health analyzer: scan: %w", err)
	}
	if findings == nil {
		findings = []quality.TemplateHealth{}
	}
	return findings, nil
}

// RecordProblematicTemplates implements [quality.HealthAnalyzer]. Each
// finding is upserted against the partial unique index on open records: a
// template already under review keeps its record (and identified date) but
// gets its statistics refreshed; templates previously resolved get a fresh
// record.
func (s *Store) RecordProblematicTemplates(ctx context.Context, findings []quality.TemplateHealth) (int64, error) {
	if len(findings) == 0 {
		return 0, nil
	}

	const q = `
		INSERT INTO problematic_templates
		    (template_key, identified_date, avg_confidence, avg_corrections, usage_count)
		VALUES ($1, CURRENT_DATE, $2, $3, $4)
		ON CONFLICT (template_key) WHERE status IN ('identified', 'under_review') DO UPDATE SET
		    avg_confidence  = EXCLUDED.avg_confidence,
		    avg_corrections = EXCLUDED.avg_corrections,
		    usage_count     = EXCLUDED.usage_count`

	batch := &pgx.Batch{}
	for _, f := range findings {
		batch.Queue(q, f.TemplateKey, f.AvgConfidence, f.AvgCorrections, f.UsageCount)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var written int64
	for range findings {
		tag, err := results.Exec()
		if err != nil {
			return written, fmt.Errorf("health analyzer: record: %w", err)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}

// ResolveProblematicTemplate implements [quality.HealthAnalyzer]. Moving to
// resolved or deprecated stamps the resolution date; moving to under_review
// does not.
func (s *Store) ResolveProblematicTemplate(ctx context.Context, templateKey string, status quality.ProblemStatus, notes string) error {
	if !status.IsValid() || status == quality.ProblemIdentified {
		return fmt.Errorf("health analyzer: resolve %q: status %q is invalid; valid values: under_review, resolved, deprecated", templateKey, status)
	}

	const q = `
		UPDATE problematic_templates
		SET    status           = $2,
		       resolution_notes = NULLIF($3, ''),
		       resolved_date    = CASE WHEN $2 IN ('resolved', 'deprecated') THEN CURRENT_DATE END
		WHERE  template_key = $1
		  AND  status IN ('identified', 'under_review')`

	tag, err := s.pool.Exec(ctx, q, templateKey, string(status), notes)
	if err != nil {
		return fmt.Errorf("health analyzer: resolve %q: %w", templateKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("health analyzer: resolve %q: no open record", templateKey)
	}
	return nil
}

// ProblematicTemplates returns persisted findings, optionally filtered by
// status (empty means all), newest identification first.
func (s *Store) ProblematicTemplates(ctx context.Context, status quality.ProblemStatus) ([]quality.ProblematicTemplate, error) {
	const q = `
		SELECT id, template_key, identified_date, avg_confidence, avg_corrections,
		       usage_count, status, resolution_notes, resolved_date
		FROM   problematic_templates
		WHERE  ($1 = '' OR status = $1)
		ORDER  BY identified_date DESC, template_key`

	rows, err := s.pool.Query(ctx, q, string(status))
	if err != nil {
		return nil, fmt.Errorf("health analyzer: list: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (quality.ProblematicTemplate, error) {
		var p quality.ProblematicTemplate
		err := row.Scan(
			&p.ID,
			&p.TemplateKey,
			&p.IdentifiedDate,
			&p.AvgConfidence,
			&p.AvgCorrections,
			&p.UsageCount,
			&p.Status,
			&p.ResolutionNotes,
			&p.ResolvedDate,
		)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("health analyzer: scan list: %w", err)
	}
	if records == nil {
		records = []quality.ProblematicTemplate{}
	}
	return records, nil
}
