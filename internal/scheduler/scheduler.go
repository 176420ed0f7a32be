// Package scheduler runs the periodic maintenance jobs of the quality core:
// daily aggregation, the template health scan, and the retention pair.
//
// Runs of the same job are single-flighted: a tick or manual trigger that
// arrives while the job is still executing joins the in-flight run instead
// of starting a second one. The retention jobs in particular must never
// overlap themselves; aggregation additionally serializes per date inside
// the store.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/medscriba/medscriba/internal/observe"
)

// Job is one periodic unit of work. Run receives a context that is cancelled
// when the scheduler stops.
type Job struct {
	// Name identifies the job in logs, metrics, and Trigger calls.
	Name string

	// Interval is the time between run starts.
	Interval time.Duration

	// Run executes the job. Errors are logged and counted, never fatal to
	// the scheduler.
	Run func(ctx context.Context) error
}

// Scheduler owns a set of jobs and their tickers.
type Scheduler struct {
	metrics *observe.Metrics
	jobs    []Job
	flight  singleflight.Group
}

// New creates an empty scheduler recording to the given metrics.
func New(metrics *observe.Metrics) *Scheduler {
	return &Scheduler{metrics: metrics}
}

// Add registers a job. Must be called before Run.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Run executes every registered job once immediately, then on its interval,
// until ctx is cancelled. It always returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	for _, job := range s.jobs {
		go func(job Job) {
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()

			s.runJob(ctx, job)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runJob(ctx, job)
				}
			}
		}(job)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Trigger runs the named job now, joining any in-flight run of the same job.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.runJob(ctx, job)
		}
	}
	return fmt.Errorf("scheduler: unknown job %q", name)
}

// runJob executes one single-flighted run with a span around it. Failures
// are logged and counted; the error is returned for manual triggers.
func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	_, err, _ := s.flight.Do(job.Name, func() (any, error) {
		ctx, span := observe.StartSpan(ctx, "job "+job.Name,
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		start := time.Now()
		err := job.Run(ctx)
		elapsed := time.Since(start)

		log := observe.Logger(ctx)
		if err != nil {
			span.RecordError(err)
			s.metrics.RecordJobError(ctx, job.Name)
			log.Error("job failed", "job", job.Name, "duration", elapsed, "err", err)
			return nil, err
		}
		log.Debug("job completed", "job", job.Name, "duration", elapsed)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", job.Name, err)
	}
	return nil
}
