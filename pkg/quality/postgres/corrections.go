package postgres

import (
	"context"
	"fmt"

	"github.com/medscriba/medscriba/pkg/quality"
)

// RecordCorrection implements [quality.CorrectionRecorder]. The correction
// insert and its two dependent writes run in one transaction:
//
//  1. The correction row is inserted. An unknown usage ID is rejected by the
//     foreign-key constraint and rolls everything back.
//  2. Extracted fields matching (usage_id, field_name) are flagged
//     was_corrected = true. Zero matching fields is a valid state (the
//     correction may precede extraction) and is not an error.
//  3. The usage's user_corrections counter is incremented by exactly one.
//     The UPDATE's row lock serializes concurrent corrections to the same
//     usage; corrections to different usages do not block each other.
//
// Each correction increments the counter independently, so the counter always
// equals the number of correction rows referencing the usage.
func (s *Store) RecordCorrection(ctx context.Context, c quality.Correction) (quality.Correction, error) {
	if err := c.Validate(); err != nil {
		return quality.Correction{}, fmt.Errorf("correction recorder: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return quality.Correction{}, fmt.Errorf("correction recorder: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insert = `
		INSERT INTO corrections
		    (usage_id, field_name, original_value, corrected_value, user_id, correction_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err = tx.QueryRow(ctx, insert,
		c.UsageID,
		c.FieldName,
		c.OriginalValue,
		c.CorrectedValue,
		c.UserID,
		c.CorrectionType,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return quality.Correction{}, fmt.Errorf("correction recorder: insert: %w", err)
	}

	const flagFields = `
		UPDATE extracted_fields
		SET    was_corrected = true
		WHERE  usage_id = $1
		  AND  field_name = $2`

	if _, err := tx.Exec(ctx, flagFields, c.UsageID, c.FieldName); err != nil {
		return quality.Correction{}, fmt.Errorf("correction recorder: flag fields: %w", err)
	}

	const bumpCounter = `
		UPDATE template_usages
		SET    user_corrections = user_corrections + 1
		WHERE  id = $1`

	tag, err := tx.Exec(ctx, bumpCounter, c.UsageID)
	if err != nil {
		return quality.Correction{}, fmt.Errorf("correction recorder: bump counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Unreachable while the FK above holds, but a torn state here would
		// silently break the counter invariant.
		return quality.Correction{}, fmt.Errorf("correction recorder: usage %d not found", c.UsageID)
	}

	if err := tx.Commit(ctx); err != nil {
		return quality.Correction{}, fmt.Errorf("correction recorder: commit: %w", err)
	}
	return c, nil
}
