// Package postgres provides the PostgreSQL-backed implementation of the
// medscriba quality store: the append-mostly event tables, the transactional
// correction propagator, the idempotent daily aggregator, the template
// health analyzer, the user performance reporter, and the retention jobs.
//
// All operations share a single [pgxpool.Pool]. [Migrate] installs the
// schema idempotently and is safe to call on every application start.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//
//	_ = store.InsertTemplateUsage(ctx, &usage)
//	_, _ = store.RecordCorrection(ctx, correction)
//	row, _ := store.AggregateDay(ctx, time.Now())
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Event store DDL: raw facts written by the transcription/extraction services
// ─────────────────────────────────────────────────────────────────────────────

const ddlEvents = `
CREATE TABLE IF NOT EXISTS transcriptions (
    id               BIGSERIAL         PRIMARY KEY,
    created_at       TIMESTAMPTZ       NOT NULL DEFAULT now(),
    audio_duration   DOUBLE PRECISION  NOT NULL DEFAULT 0 CHECK (audio_duration >= 0),
    processing_time  DOUBLE PRECISION  NOT NULL DEFAULT 0 CHECK (processing_time >= 0),
    word_count       INTEGER           NOT NULL DEFAULT 0 CHECK (word_count >= 0),
    confidence_avg   DOUBLE PRECISION  NOT NULL DEFAULT 0 CHECK (confidence_avg BETWEEN 0 AND 1),
    text             TEXT              NOT NULL DEFAULT '',
    patient_ref      TEXT,
    procedure_ref    TEXT,
    surgeon_ref      TEXT,
    model_name       TEXT              NOT NULL DEFAULT '',
    model_device     TEXT              NOT NULL DEFAULT '',
    updated_at       TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcriptions_created_at
    ON transcriptions (created_at);

CREATE TABLE IF NOT EXISTS template_usages (
    id                    BIGSERIAL         PRIMARY KEY,
    created_at            TIMESTAMPTZ       NOT NULL DEFAULT now(),
    template_key          TEXT              NOT NULL,
    template_source       TEXT              NOT NULL CHECK (template_source IN ('static', 'dynamic', 'modified')),
    processing_time       DOUBLE PRECISION  NOT NULL DEFAULT 0 CHECK (processing_time >= 0),
    avg_confidence        DOUBLE PRECISION  NOT NULL DEFAULT 0 CHECK (avg_confidence BETWEEN 0 AND 1),
    low_confidence_count  INTEGER           NOT NULL DEFAULT 0 CHECK (low_confidence_count >= 0),
    field_count           INTEGER           NOT NULL DEFAULT 0 CHECK (field_count >= 0),
    transcription_id      BIGINT            REFERENCES transcriptions (id) ON DELETE CASCADE,
    user_id               TEXT              NOT NULL DEFAULT '',
    user_corrections      INTEGER           NOT NULL DEFAULT 0 CHECK (user_corrections >= 0)
);

CREATE INDEX IF NOT EXISTS idx_template_usages_created_at
    ON template_usages (created_at);

CREATE INDEX IF NOT EXISTS idx_template_usages_template_key
    ON template_usages (template_key);

CREATE INDEX IF NOT EXISTS idx_template_usages_user_id
    ON template_usages (user_id);

CREATE INDEX IF NOT EXISTS idx_template_usages_transcription_id
    ON template_usages (transcription_id);

CREATE TABLE IF NOT EXISTS extracted_fields (
    id             BIGSERIAL         PRIMARY KEY,
    usage_id       BIGINT            NOT NULL REFERENCES template_usages (id) ON DELETE CASCADE,
    field_name     TEXT              NOT NULL,
    value          TEXT,
    confidence     DOUBLE PRECISION  NOT NULL DEFAULT 0 CHECK (confidence BETWEEN 0 AND 1),
    source         TEXT              NOT NULL DEFAULT 'unknown' CHECK (source IN ('explicit', 'inferred', 'contextual', 'unknown')),
    was_corrected  BOOLEAN           NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_extracted_fields_usage_field
    ON extracted_fields (usage_id, field_name);

CREATE TABLE IF NOT EXISTS corrections (
    id               BIGSERIAL    PRIMARY KEY,
    usage_id         BIGINT       NOT NULL REFERENCES template_usages (id) ON DELETE CASCADE,
    field_name       TEXT         NOT NULL,
    original_value   TEXT,
    corrected_value  TEXT         NOT NULL,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    user_id          TEXT         NOT NULL,
    correction_type  TEXT
);

CREATE INDEX IF NOT EXISTS idx_corrections_usage_id
    ON corrections (usage_id);

CREATE INDEX IF NOT EXISTS idx_corrections_created_at
    ON corrections (created_at);
`

// ─────────────────────────────────────────────────────────────────────────────
// Derived tables DDL: aggregates, template catalog, health findings
// ─────────────────────────────────────────────────────────────────────────────

const ddlDerived = `
CREATE TABLE IF NOT EXISTS daily_quality_metrics (
    id                                 BIGSERIAL         PRIMARY KEY,
    metric_date                        DATE              NOT NULL UNIQUE,
    transcription_count                BIGINT            NOT NULL DEFAULT 0,
    avg_transcription_confidence       DOUBLE PRECISION  NOT NULL DEFAULT 0,
    avg_transcription_processing_time  DOUBLE PRECISION  NOT NULL DEFAULT 0,
    total_word_count                   BIGINT            NOT NULL DEFAULT 0,
    usage_count                        BIGINT            NOT NULL DEFAULT 0,
    avg_usage_confidence               DOUBLE PRECISION  NOT NULL DEFAULT 0,
    avg_usage_processing_time          DOUBLE PRECISION  NOT NULL DEFAULT 0,
    dynamic_template_count             BIGINT            NOT NULL DEFAULT 0,
    static_template_count              BIGINT            NOT NULL DEFAULT 0,
    correction_count                   BIGINT            NOT NULL DEFAULT 0,
    corrected_note_count               BIGINT            NOT NULL DEFAULT 0,
    correction_rate                    DOUBLE PRECISION  NOT NULL DEFAULT 0,
    active_users                       BIGINT            NOT NULL DEFAULT 0,
    updated_at                         TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS template_definitions (
    id               BIGSERIAL         PRIMARY KEY,
    template_key     TEXT              NOT NULL,
    version          INTEGER           NOT NULL CHECK (version > 0),
    template_text    TEXT              NOT NULL,
    template_source  TEXT              NOT NULL CHECK (template_source IN ('static', 'dynamic', 'ai_generated')),
    is_active        BOOLEAN           NOT NULL DEFAULT true,
    usage_count      BIGINT            NOT NULL DEFAULT 0,
    avg_confidence   DOUBLE PRECISION  NOT NULL DEFAULT 0,
    avg_corrections  DOUBLE PRECISION  NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ       NOT NULL DEFAULT now(),
    UNIQUE (template_key, version)
);

CREATE TABLE IF NOT EXISTS problematic_templates (
    id                BIGSERIAL         PRIMARY KEY,
    template_key      TEXT              NOT NULL,
    identified_date   DATE              NOT NULL DEFAULT CURRENT_DATE,
    avg_confidence    DOUBLE PRECISION  NOT NULL DEFAULT 0,
    avg_corrections   DOUBLE PRECISION  NOT NULL DEFAULT 0,
    usage_count       BIGINT            NOT NULL DEFAULT 0,
    status            TEXT              NOT NULL DEFAULT 'identified' CHECK (status IN ('identified', 'under_review', 'resolved', 'deprecated')),
    resolution_notes  TEXT,
    resolved_date     DATE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_problematic_templates_open
    ON problematic_templates (template_key)
    WHERE status IN ('identified', 'under_review');
`

// ─────────────────────────────────────────────────────────────────────────────
// Operational tables DDL: performance log, realtime sessions
// ─────────────────────────────────────────────────────────────────────────────

const ddlOperational = `
CREATE TABLE IF NOT EXISTS performance_log (
    id               BIGSERIAL         PRIMARY KEY,
    created_at       TIMESTAMPTZ       NOT NULL DEFAULT now(),
    metric_type      TEXT              NOT NULL,
    processing_time  DOUBLE PRECISION  NOT NULL DEFAULT 0,
    success          BOOLEAN           NOT NULL DEFAULT true,
    error_message    TEXT,
    gpu_memory_used  BIGINT,
    gpu_temperature  DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_performance_log_created_at
    ON performance_log (created_at);

CREATE TABLE IF NOT EXISTS realtime_sessions (
    session_id            UUID              PRIMARY KEY,
    user_id               TEXT              NOT NULL,
    started_at            TIMESTAMPTZ       NOT NULL DEFAULT now(),
    ended_at              TIMESTAMPTZ,
    chunk_count           INTEGER           NOT NULL DEFAULT 0,
    total_duration        DOUBLE PRECISION  NOT NULL DEFAULT 0,
    final_transcription   TEXT,
    avg_chunk_confidence  DOUBLE PRECISION  CHECK (avg_chunk_confidence IS NULL OR avg_chunk_confidence BETWEEN 0 AND 1)
);

CREATE INDEX IF NOT EXISTS idx_realtime_sessions_user_id
    ON realtime_sessions (user_id);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlEvents,
		ddlDerived,
		ddlOperational,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
