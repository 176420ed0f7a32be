// Package quality defines the domain model for the medscriba quality-metrics
// core: the event entities produced by the transcription and extraction
// services, the derived aggregate and health records, and the pure rating
// rules applied to them.
//
// Storage backends implement the interfaces in store.go; the PostgreSQL
// implementation lives in the postgres subpackage.
package quality

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ArchivedText is the redaction marker written over the text of
// transcriptions past the retention window. Rows already carrying the marker
// are skipped on subsequent archival runs.
const ArchivedText = "[ARCHIVED]"

// Retention and window defaults, in days.
const (
	DefaultTranscriptionRetentionDays  = 365
	DefaultPerformanceLogRetentionDays = 90
	DefaultWindowDays                  = 30
)

// TemplateSource describes how a template usage was produced.
type TemplateSource string

const (
	TemplateStatic   TemplateSource = "static"
	TemplateDynamic  TemplateSource = "dynamic"
	TemplateModified TemplateSource = "modified"
)

// IsValid reports whether s is a recognised template usage source.
func (s TemplateSource) IsValid() bool {
	switch s {
	case TemplateStatic, TemplateDynamic, TemplateModified:
		return true
	}
	return false
}

// DefinitionSource describes the origin of a template definition version.
type DefinitionSource string

const (
	DefinitionStatic      DefinitionSource = "static"
	DefinitionDynamic     DefinitionSource = "dynamic"
	DefinitionAIGenerated DefinitionSource = "ai_generated"
)

// IsValid reports whether s is a recognised definition source.
func (s DefinitionSource) IsValid() bool {
	switch s {
	case DefinitionStatic, DefinitionDynamic, DefinitionAIGenerated:
		return true
	}
	return false
}

// FieldSource describes how an extracted field value was obtained.
type FieldSource string

const (
	FieldExplicit   FieldSource = "explicit"
	FieldInferred   FieldSource = "inferred"
	FieldContextual FieldSource = "contextual"
	FieldUnknown    FieldSource = "unknown"
)

// IsValid reports whether s is a recognised field source.
func (s FieldSource) IsValid() bool {
	switch s {
	case FieldExplicit, FieldInferred, FieldContextual, FieldUnknown:
		return true
	}
	return false
}

// ProblemStatus is the review state of a problematic template record.
type ProblemStatus string

const (
	ProblemIdentified  ProblemStatus = "identified"
	ProblemUnderReview ProblemStatus = "under_review"
	ProblemResolved    ProblemStatus = "resolved"
	ProblemDeprecated  ProblemStatus = "deprecated"
)

// IsValid reports whether s is a recognised problem status.
func (s ProblemStatus) IsValid() bool {
	switch s {
	case ProblemIdentified, ProblemUnderReview, ProblemResolved, ProblemDeprecated:
		return true
	}
	return false
}

// Transcription is one speech-to-text result. Rows are immutable after
// insert; only the archival job may overwrite Text with [ArchivedText].
type Transcription struct {
	ID             int64
	CreatedAt      time.Time
	AudioDuration  float64 // seconds of source audio
	ProcessingTime float64 // seconds spent transcribing
	WordCount      int
	ConfidenceAvg  float64 // [0,1]
	Text           string
	PatientRef     *string
	ProcedureRef   *string
	SurgeonRef     *string
	ModelName      string
	ModelDevice    string
	UpdatedAt      time.Time
}

// Validate checks field constraints before a write is attempted.
func (t *Transcription) Validate() error {
	var errs []error
	if t.AudioDuration < 0 {
		errs = append(errs, fmt.Errorf("audio_duration %.2f is negative", t.AudioDuration))
	}
	if t.ProcessingTime < 0 {
		errs = append(errs, fmt.Errorf("processing_time %.2f is negative", t.ProcessingTime))
	}
	if t.WordCount < 0 {
		errs = append(errs, fmt.Errorf("word_count %d is negative", t.WordCount))
	}
	if t.ConfidenceAvg < 0 || t.ConfidenceAvg > 1 {
		errs = append(errs, fmt.Errorf("confidence_avg %.3f is out of range [0, 1]", t.ConfidenceAvg))
	}
	return errors.Join(errs...)
}

// TemplateUsage records one template ("note") being filled from a
// transcription. UserCorrections is owned by the correction propagator and
// only ever increases.
type TemplateUsage struct {
	ID                 int64
	CreatedAt          time.Time
	TemplateKey        string
	TemplateSource     TemplateSource
	ProcessingTime     float64
	AvgConfidence      float64 // [0,1]
	LowConfidenceCount int
	FieldCount         int
	TranscriptionID    *int64 // nil when the note was dictated without audio
	UserID             string
	UserCorrections    int
}

// Validate checks field constraints before a write is attempted.
func (u *TemplateUsage) Validate() error {
	var errs []error
	if u.TemplateKey == "" {
		errs = append(errs, errors.New("template_key is required"))
	}
	if !u.TemplateSource.IsValid() {
		errs = append(errs, fmt.Errorf("template_source %q is invalid; valid values: static, dynamic, modified", u.TemplateSource))
	}
	if u.ProcessingTime < 0 {
		errs = append(errs, fmt.Errorf("processing_time %.2f is negative", u.ProcessingTime))
	}
	if u.AvgConfidence < 0 || u.AvgConfidence > 1 {
		errs = append(errs, fmt.Errorf("avg_confidence %.3f is out of range [0, 1]", u.AvgConfidence))
	}
	if u.LowConfidenceCount < 0 {
		errs = append(errs, fmt.Errorf("low_confidence_count %d is negative", u.LowConfidenceCount))
	}
	if u.FieldCount < 0 {
		errs = append(errs, fmt.Errorf("field_count %d is negative", u.FieldCount))
	}
	return errors.Join(errs...)
}

// ExtractedField is a single template placeholder filled by the extraction
// service. WasCorrected starts false and flips to true on the first user
// correction; it is never reset.
type ExtractedField struct {
	ID           int64
	UsageID      int64
	FieldName    string
	Value        *string
	Confidence   float64 // [0,1]
	Source       FieldSource
	WasCorrected bool
}

// Validate checks field constraints before a write is attempted.
func (f *ExtractedField) Validate() error {
	var errs []error
	if f.FieldName == "" {
		errs = append(errs, errors.New("field_name is required"))
	}
	if !f.Source.IsValid() {
		errs = append(errs, fmt.Errorf("source %q is invalid; valid values: explicit, inferred, contextual, unknown", f.Source))
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence %.3f is out of range [0, 1]", f.Confidence))
	}
	return errors.Join(errs...)
}

// Correction is a user-submitted replacement for an extracted field value.
// Append-only; inserting one triggers the propagation side effects described
// on [CorrectionRecorder].
type Correction struct {
	ID             int64
	UsageID        int64
	FieldName      string
	OriginalValue  *string
	CorrectedValue string
	CreatedAt      time.Time
	UserID         string
	CorrectionType *string
}

// Validate checks field constraints before a write is attempted.
func (c *Correction) Validate() error {
	var errs []error
	if c.UsageID == 0 {
		errs = append(errs, errors.New("usage_id is required"))
	}
	if c.FieldName == "" {
		errs = append(errs, errors.New("field_name is required"))
	}
	if c.CorrectedValue == "" {
		errs = append(errs, errors.New("corrected_value is required"))
	}
	if c.UserID == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	return errors.Join(errs...)
}

// DailyQualityMetrics is the aggregate row for one calendar date. It is a
// pure function of the event store at computation time and may be recomputed
// and overwritten at any point (idempotent upsert keyed by Date).
type DailyQualityMetrics struct {
	Date time.Time // UTC midnight of the calendar date

	TranscriptionCount          int64
	AvgTranscriptionConfidence  float64
	AvgTranscriptionProcessTime float64
	TotalWordCount              int64

	UsageCount           int64
	AvgUsageConfidence   float64
	AvgUsageProcessTime  float64
	DynamicTemplateCount int64
	StaticTemplateCount  int64

	CorrectionCount    int64
	CorrectedNoteCount int64
	// CorrectionRate is corrected notes per hundred usages. It deliberately
	// differs from the health analyzer's correction-rate check, which
	// compares total corrections against usage count (see HealthCriteria).
	CorrectionRate float64

	ActiveUsers int64
	UpdatedAt   time.Time
}

// TemplateDefinition is one immutable version of a template. Versions are
// append-only; at most one version per key is active. The usage statistics
// are denormalized snapshots refreshed from template_usages.
type TemplateDefinition struct {
	ID             int64
	TemplateKey    string
	Version        int
	TemplateText   string
	Source         DefinitionSource
	IsActive       bool
	UsageCount     int64
	AvgConfidence  float64
	AvgCorrections float64
	CreatedAt      time.Time
}

// Validate checks field constraints before a write is attempted.
func (d *TemplateDefinition) Validate() error {
	var errs []error
	if d.TemplateKey == "" {
		errs = append(errs, errors.New("template_key is required"))
	}
	if d.TemplateText == "" {
		errs = append(errs, errors.New("template_text is required"))
	}
	if !d.Source.IsValid() {
		errs = append(errs, fmt.Errorf("template_source %q is invalid; valid values: static, dynamic, ai_generated", d.Source))
	}
	return errors.Join(errs...)
}

// ProblematicTemplate is a persisted health-analyzer finding under review.
type ProblematicTemplate struct {
	ID              int64
	TemplateKey     string
	IdentifiedDate  time.Time
	AvgConfidence   float64
	AvgCorrections  float64
	UsageCount      int64
	Status          ProblemStatus
	ResolutionNotes *string
	ResolvedDate    *time.Time
}

// PerformanceLogEntry is a write-once operational sample from the pipeline
// workers (GPU server timings, failures). Pruned by age, never updated.
type PerformanceLogEntry struct {
	ID             int64
	CreatedAt      time.Time
	MetricType     string
	ProcessingTime float64
	Success        bool
	ErrorMessage   *string
	GPUMemoryUsed  *int64
	GPUTemperature *float64
}

// RealtimeSession tracks one live dictation session streamed in chunks.
// EndedAt is nil while the session is open.
type RealtimeSession struct {
	SessionID          uuid.UUID
	UserID             string
	StartedAt          time.Time
	EndedAt            *time.Time
	ChunkCount         int
	TotalDuration      float64
	FinalTranscription *string
	AvgChunkConfidence *float64
}

// Day normalizes t to UTC midnight of its calendar date. All daily
// aggregation is keyed on this value.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
