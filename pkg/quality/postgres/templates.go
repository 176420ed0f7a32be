package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medscriba/medscriba/pkg/quality"
)

// AddTemplateVersion implements [quality.TemplateStore]. Versions are
// append-only: the new row gets max(version)+1 for its key and becomes the
// single active version. Prior versions are deactivated in the same
// transaction, never mutated otherwise. A concurrent insert for the same key
// is rejected by the (template_key, version) unique constraint.
func (s *Store) AddTemplateVersion(ctx context.Context, d *quality.TemplateDefinition) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("template store: add version: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("template store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const deactivate = `
		UPDATE template_definitions
		SET    is_active = false
		WHERE  template_key = $1
		  AND  is_active`

	if _, err := tx.Exec(ctx, deactivate, d.TemplateKey); err != nil {
		return fmt.Errorf("template store: deactivate prior versions: %w", err)
	}

	const insert = `
		INSERT INTO template_definitions
		    (template_key, version, template_text, template_source, is_active)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, true
		FROM   template_definitions
		WHERE  template_key = $1
		RETURNING id, version, created_at`

	err = tx.QueryRow(ctx, insert,
		d.TemplateKey,
		d.TemplateText,
		string(d.Source),
	).Scan(&d.ID, &d.Version, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("template store: insert version: %w", err)
	}
	d.IsActive = true

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("template store: commit: %w", err)
	}
	return nil
}

// ActiveTemplate implements [quality.TemplateStore]. Returns (nil, nil) when
// no active version exists for key.
func (s *Store) ActiveTemplate(ctx context.Context, key string) (*quality.TemplateDefinition, error) {
	const q = `
		SELECT id, template_key, version, template_text, template_source,
		       is_active, usage_count, avg_confidence, avg_corrections, created_at
		FROM   template_definitions
		WHERE  template_key = $1
		  AND  is_active
		ORDER  BY version DESC
		LIMIT  1`

	var d quality.TemplateDefinition
	err := s.pool.QueryRow(ctx, q, key).Scan(
		&d.ID,
		&d.TemplateKey,
		&d.Version,
		&d.TemplateText,
		&d.Source,
		&d.IsActive,
		&d.UsageCount,
		&d.AvgConfidence,
		&d.AvgCorrections,
		&d.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("template store: active template: %w", err)
	}
	return &d, nil
}

// RefreshTemplateStats implements [quality.TemplateStore]. It recomputes the
// denormalized usage statistics on every active definition from the trailing
// window's usages. Active definitions whose key saw no usages in the window
// are reset to zero.
func (s *Store) RefreshTemplateStats(ctx context.Context, windowDays int) (int64, error) {
	if windowDays <= 0 {
		windowDays = quality.DefaultWindowDays
	}

	const q = `
		UPDATE template_definitions d
		SET    usage_count     = COALESCE(s.usage_count, 0),
		       avg_confidence  = COALESCE(s.avg_confidence, 0),
		       avg_corrections = COALESCE(s.avg_corrections, 0)
		FROM   template_definitions a
		LEFT JOIN (
		    SELECT template_key,
		           COUNT(*)                      AS usage_count,
		           AVG(avg_confidence)           AS avg_confidence,
		           AVG(user_corrections::float8) AS avg_corrections
		    FROM   template_usages
		    WHERE  created_at >= now() - ($1::int * interval '1 day')
		    GROUP  BY template_key
		) s ON s.template_key = a.template_key
		WHERE  d.id = a.id
		  AND  d.is_active`

	tag, err := s.pool.Exec(ctx, q, windowDays)
	if err != nil {
		return 0, fmt.Errorf("template store: refresh stats: %w", err)
	}
	return tag.RowsAffected(), nil
}
