// Package app wires the quality store, the job scheduler, and the telemetry
// listener into one runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/medscriba/medscriba/internal/config"
	"github.com/medscriba/medscriba/internal/observe"
	"github.com/medscriba/medscriba/internal/scheduler"
	"github.com/medscriba/medscriba/pkg/quality"
	"github.com/medscriba/medscriba/pkg/quality/postgres"
)

// Option customizes App construction.
type Option func(*App)

// WithStore injects a pre-built store instead of connecting to Postgres.
// The app does not close injected stores.
func WithStore(s quality.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics set, typically backed by a test-local meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// App is the assembled medscriba service.
type App struct {
	cfg     *config.Config
	store   quality.Store
	metrics *observe.Metrics
	sched   *scheduler.Scheduler

	closers  []func()
	stopOnce sync.Once
}

// New builds the service from cfg. Unless a store is injected it connects to
// Postgres and runs migrations. Call [App.Shutdown] when done.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.store == nil {
		st, err := postgres.NewStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: connect store: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
	}
	a.store = instrumentStore(a.store, a.metrics)

	a.sched = scheduler.New(a.metrics)
	a.sched.Add(scheduler.Job{
		Name:     "aggregate",
		Interval: cfg.Aggregation.Interval,
		Run:      a.runAggregation,
	})
	a.sched.Add(scheduler.Job{
		Name:     "health-scan",
		Interval: cfg.Health.Interval,
		Run:      a.runHealthScan,
	})
	a.sched.Add(scheduler.Job{
		Name:     "retention",
		Interval: cfg.Retention.Interval,
		Run:      a.runRetention,
	})

	return a, nil
}

// Run starts the scheduler and, when configured, the /metrics listener. It
// blocks until ctx is cancelled or a component fails, then shuts everything
// down and returns the first error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.sched.Run(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			observe.Logger(ctx).Info("metrics listener starting", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Shutdown releases resources owned by the app. Safe to call more than once.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		for _, c := range a.closers {
			c()
		}
	})
}

// Store exposes the wired store for the CLI subcommands.
func (a *App) Store() quality.Store { return a.store }

// runAggregation recomputes today's aggregate plus the configured number of
// catch-up days so late-arriving events are folded in.
func (a *App) runAggregation(ctx context.Context) error {
	start := time.Now()
	log := observe.Logger(ctx)

	var errs []error
	for i := 0; i < a.cfg.Aggregation.CatchUpDays; i++ {
		day := quality.Day(time.Now().UTC().AddDate(0, 0, -i))
		m, err := a.store.AggregateDay(ctx, day)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		log.Debug("aggregated day",
			"date", day.Format("2006-01-02"),
			"transcriptions", m.TranscriptionCount,
			"usages", m.UsageCount,
		)
	}

	a.metrics.AggregationDuration.Record(ctx, time.Since(start).Seconds())
	return errors.Join(errs...)
}

// runHealthScan identifies struggling templates and, when persistence is
// enabled, records them for review.
func (a *App) runHealthScan(ctx context.Context) error {
	start := time.Now()
	log := observe.Logger(ctx)

	findings, err := a.store.IdentifyProblematicTemplates(ctx, a.cfg.Health.Criteria())
	if err != nil {
		return err
	}
	a.metrics.TemplatesFlagged.Add(ctx, int64(len(findings)))

	if *a.cfg.Health.Persist && len(findings) > 0 {
		written, err := a.store.RecordProblematicTemplates(ctx, findings)
		if err != nil {
			return err
		}
		log.Info("health scan persisted findings", "flagged", len(findings), "written", written)
	} else {
		log.Info("health scan completed", "flagged", len(findings))
	}

	a.metrics.HealthScanDuration.Record(ctx, time.Since(start).Seconds())
	return nil
}

// runRetention archives old transcription text and purges old performance
// samples. Both steps run even if the first fails.
func (a *App) runRetention(ctx context.Context) error {
	start := time.Now()
	log := observe.Logger(ctx)

	var errs []error

	archived, err := a.store.ArchiveOldTranscriptions(ctx, a.cfg.Retention.TranscriptionDays)
	if err != nil {
		errs = append(errs, err)
	} else {
		a.metrics.RowsArchived.Add(ctx, archived)
	}

	purged, err := a.store.PurgeOldPerformanceLogs(ctx, a.cfg.Retention.PerformanceLogDays)
	if err != nil {
		errs = append(errs, err)
	} else {
		a.metrics.RowsPurged.Add(ctx, purged)
	}

	if len(errs) == 0 {
		log.Info("retention run completed", "archived", archived, "purged", purged)
	}

	a.metrics.RetentionDuration.Record(ctx, time.Since(start).Seconds())
	return errors.Join(errs...)
}
