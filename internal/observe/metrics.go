// Package observe provides application-wide observability primitives for
// medscriba: OpenTelemetry metrics, tracing, and structured logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all medscriba metrics.
const meterName = "github.com/medscriba/medscriba"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Duration histograms per pipeline stage ---

	// AggregationDuration tracks one daily aggregation run.
	AggregationDuration metric.Float64Histogram

	// HealthScanDuration tracks one template health scan.
	HealthScanDuration metric.Float64Histogram

	// ReportDuration tracks one user performance report.
	ReportDuration metric.Float64Histogram

	// RetentionDuration tracks one retention run (archive + purge).
	RetentionDuration metric.Float64Histogram

	// --- Counters ---

	// EventsIngested counts event-store writes. Use with attribute:
	//   attribute.String("kind", ...): transcription, usage, field, perf_log
	EventsIngested metric.Int64Counter

	// CorrectionsRecorded counts propagated corrections.
	CorrectionsRecorded metric.Int64Counter

	// RowsArchived counts transcriptions redacted by the archival job.
	RowsArchived metric.Int64Counter

	// RowsPurged counts performance-log rows deleted by the purge job.
	RowsPurged metric.Int64Counter

	// TemplatesFlagged counts templates surfaced by the health scan.
	TemplatesFlagged metric.Int64Counter

	// JobErrors counts scheduled job failures. Use with attribute:
	//   attribute.String("job", ...)
	JobErrors metric.Int64Counter

	// --- Gauges ---

	// OpenSessions tracks the number of live dictation sessions.
	OpenSessions metric.Int64UpDownCounter
}

// durationBuckets defines histogram bucket boundaries (in seconds) sized for
// batch aggregation and report queries.
var durationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AggregationDuration, err = m.Float64Histogram("medscriba.aggregation.duration",
		metric.WithDescription("Duration of one daily aggregation run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HealthScanDuration, err = m.Float64Histogram("medscriba.health_scan.duration",
		metric.WithDescription("Duration of one template health scan."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReportDuration, err = m.Float64Histogram("medscriba.report.duration",
		metric.WithDescription("Duration of one user performance report."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetentionDuration, err = m.Float64Histogram("medscriba.retention.duration",
		metric.WithDescription("Duration of one retention run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.EventsIngested, err = m.Int64Counter("medscriba.events.ingested",
		metric.WithDescription("Total event-store writes by kind."),
	); err != nil {
		return nil, err
	}
	if met.CorrectionsRecorded, err = m.Int64Counter("medscriba.corrections.recorded",
		metric.WithDescription("Total user corrections propagated."),
	); err != nil {
		return nil, err
	}
	if met.RowsArchived, err = m.Int64Counter("medscriba.retention.rows_archived",
		metric.WithDescription("Total transcriptions redacted by the archival job."),
	); err != nil {
		return nil, err
	}
	if met.RowsPurged, err = m.Int64Counter("medscriba.retention.rows_purged",
		metric.WithDescription("Total performance-log rows deleted by the purge job."),
	); err != nil {
		return nil, err
	}
	if met.TemplatesFlagged, err = m.Int64Counter("medscriba.health.templates_flagged",
		metric.WithDescription("Total templates surfaced by the health scan."),
	); err != nil {
		return nil, err
	}
	if met.JobErrors, err = m.Int64Counter("medscriba.jobs.errors",
		metric.WithDescription("Total scheduled job failures by job name."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.OpenSessions, err = m.Int64UpDownCounter("medscriba.sessions.open",
		metric.WithDescription("Number of live dictation sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordJobError records a scheduled job failure with the standard attribute.
func (m *Metrics) RecordJobError(ctx context.Context, job string) {
	m.JobErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("job", job)),
	)
}

// RecordEventIngested records an event-store write with the standard
// attribute set.
func (m *Metrics) RecordEventIngested(ctx context.Context, kind string) {
	m.EventsIngested.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
