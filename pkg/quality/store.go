package quality

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventStore is the append-mostly fact storage written by the transcription
// and extraction collaborators. Inserts validate field constraints and
// surface violations to the caller; nothing is retried automatically.
type EventStore interface {
	// InsertTranscription stores t and fills in its ID and timestamps.
	InsertTranscription(ctx context.Context, t *Transcription) error

	// InsertTemplateUsage stores u and fills in its ID and timestamp.
	InsertTemplateUsage(ctx context.Context, u *TemplateUsage) error

	// InsertExtractedFields stores all fields for the given usage in one round
	// trip and fills in their IDs.
	InsertExtractedFields(ctx context.Context, usageID int64, fields []ExtractedField) error

	// LogPerformance stores a write-once operational sample.
	LogPerformance(ctx context.Context, e *PerformanceLogEntry) error

	// OpenRealtimeSession starts a live dictation session for userID.
	OpenRealtimeSession(ctx context.Context, userID string) (RealtimeSession, error)

	// AppendSessionChunk records one streamed chunk: duration in seconds and
	// the chunk's transcription confidence. Fails when the session is missing
	// or already closed.
	AppendSessionChunk(ctx context.Context, sessionID uuid.UUID, duration, confidence float64) error

	// CloseRealtimeSession ends an open session and stores the final
	// transcription. Fails when the session is missing or already closed.
	CloseRealtimeSession(ctx context.Context, sessionID uuid.UUID, finalTranscription string) error
}

// CorrectionRecorder applies a user correction and its two dependent writes
// in one transaction: the matching extracted fields are flagged as corrected
// (zero matches is a no-op, not an error) and the owning usage's correction
// counter is incremented by exactly one. Either all three writes commit or
// none do.
type CorrectionRecorder interface {
	RecordCorrection(ctx context.Context, c Correction) (Correction, error)
}

// Aggregator computes daily summary rows from the event store.
type Aggregator interface {
	// AggregateDay recomputes the full aggregate for date's calendar day (UTC)
	// and upserts it keyed by date. Safe for arbitrary historical dates and
	// idempotent: re-running without new events rewrites identical values.
	AggregateDay(ctx context.Context, date time.Time) (DailyQualityMetrics, error)

	// DailyMetrics returns the stored aggregates for the inclusive date range,
	// oldest first.
	DailyMetrics(ctx context.Context, from, to time.Time) ([]DailyQualityMetrics, error)
}

// HealthAnalyzer scores templates over a trailing window and manages the
// persisted findings.
type HealthAnalyzer interface {
	// IdentifyProblematicTemplates returns flagged templates ordered worst
	// confidence first, ties broken by most corrections. Pure read.
	IdentifyProblematicTemplates(ctx context.Context, criteria HealthCriteria) ([]TemplateHealth, error)

	// RecordProblematicTemplates upserts findings into the review table: one
	// open record per template key, refreshed in place when re-identified.
	// Returns the number of records written.
	RecordProblematicTemplates(ctx context.Context, findings []TemplateHealth) (int64, error)

	// ResolveProblematicTemplate moves the open record for templateKey to the
	// given terminal or review status. Fails when no open record exists.
	ResolveProblematicTemplate(ctx context.Context, templateKey string, status ProblemStatus, notes string) error
}

// PerformanceReporter compares one user's trailing-window statistics against
// the population benchmark.
type PerformanceReporter interface {
	// UserPerformance returns exactly four rows in fixed order: Procedures
	// Documented, Average Confidence, Average Processing Time, Corrections Per
	// Note. Metrics undefined for the window (zero usages) carry nil values
	// and rate "N/A"; this is never an error.
	UserPerformance(ctx context.Context, userID string, windowDays int) ([]PerformanceComparison, error)
}

// TemplateStore manages append-only template definition versions.
type TemplateStore interface {
	// AddTemplateVersion stores d as the next version for its key, deactivates
	// prior versions, and fills in d's ID and Version.
	AddTemplateVersion(ctx context.Context, d *TemplateDefinition) error

	// ActiveTemplate returns the active version for key, or (nil, nil) when
	// none exists.
	ActiveTemplate(ctx context.Context, key string) (*TemplateDefinition, error)

	// RefreshTemplateStats recomputes the denormalized usage statistics on all
	// active definitions from the trailing window. Returns rows updated.
	RefreshTemplateStats(ctx context.Context, windowDays int) (int64, error)
}

// Archiver runs the retention jobs. Both operations are idempotent and safe
// to re-run; callers serialize overlapping runs.
type Archiver interface {
	// ArchiveOldTranscriptions redacts the text of transcriptions older than
	// daysToKeep with [ArchivedText], skipping already-redacted rows, and
	// returns the number of rows changed.
	ArchiveOldTranscriptions(ctx context.Context, daysToKeep int) (int64, error)

	// PurgeOldPerformanceLogs hard-deletes performance samples older than
	// daysToKeep and returns the number of rows deleted.
	PurgeOldPerformanceLogs(ctx context.Context, daysToKeep int) (int64, error)
}

// Store is the full storage surface the application wires together.
type Store interface {
	EventStore
	CorrectionRecorder
	Aggregator
	HealthAnalyzer
	PerformanceReporter
	TemplateStore
	Archiver
}
