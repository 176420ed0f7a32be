// Command medscriba runs the transcription quality-metrics service and its
// operational subcommands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/medscriba/medscriba/internal/app"
	"github.com/medscriba/medscriba/internal/config"
	"github.com/medscriba/medscriba/internal/observe"
	"github.com/medscriba/medscriba/pkg/quality"
	"github.com/medscriba/medscriba/pkg/quality/postgres"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string

	root := &cobra.Command{
		Use:           "medscriba",
		Short:         "Medical transcription quality metrics service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "medscriba.yaml", "path to the YAML config file")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		setupLogging(cfg.Server.LogLevel)
		return cfg, nil
	}

	// withStore loads config, connects, runs fn, and closes the store.
	withStore := func(fn func(ctx context.Context, cfg *config.Config, st *postgres.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := postgres.NewStore(ctx, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer st.Close()
			return fn(ctx, cfg, st)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the service: scheduled jobs plus the /metrics listener",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
				ServiceVersion: version,
			})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTelemetry(flushCtx); err != nil {
					slog.Error("telemetry shutdown failed", "err", err)
				}
			}()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			slog.Info("medscriba starting", "version", version)
			return a.Run(ctx)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: withStore(func(_ context.Context, _ *config.Config, _ *postgres.Store) error {
			// NewStore migrates on connect.
			slog.Info("schema is up to date")
			return nil
		}),
	})

	var aggregateDate string
	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute the daily quality aggregate for one date",
		RunE: withStore(func(ctx context.Context, _ *config.Config, st *postgres.Store) error {
			day := quality.Day(time.Now().UTC())
			if aggregateDate != "" {
				parsed, err := time.Parse("2006-01-02", aggregateDate)
				if err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
				day = quality.Day(parsed)
			}
			m, err := st.AggregateDay(ctx, day)
			if err != nil {
				return err
			}
			fmt.Printf("%s  transcriptions=%d  usages=%d  corrections=%d  correction_rate=%.2f%%\n",
				m.Date.Format("2006-01-02"), m.TranscriptionCount, m.UsageCount,
				m.CorrectionCount, m.CorrectionRate)
			return nil
		}),
	}
	aggregateCmd.Flags().StringVar(&aggregateDate, "date", "", "date to aggregate (YYYY-MM-DD, default today)")
	root.AddCommand(aggregateCmd)

	var (
		healthPersist bool
		healthWindow  int
	)
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Scan for templates with low confidence or heavy correction",
		RunE: withStore(func(ctx context.Context, cfg *config.Config, st *postgres.Store) error {
			criteria := cfg.Health.Criteria()
			if healthWindow > 0 {
				criteria.WindowDays = healthWindow
			}
			findings, err := st.IdentifyProblematicTemplates(ctx, criteria)
			if err != nil {
				return err
			}
			if len(findings) == 0 {
				fmt.Println("no problematic templates found")
				return nil
			}
			for _, f := range findings {
				fmt.Printf("%-30s  usages=%-4d  confidence=%.3f  corrections=%.2f/note\n    %s\n",
					f.TemplateKey, f.UsageCount, f.AvgConfidence, f.AvgCorrections, f.Recommendation)
			}
			if healthPersist {
				written, err := st.RecordProblematicTemplates(ctx, findings)
				if err != nil {
					return err
				}
				fmt.Printf("recorded %d finding(s) for review\n", written)
			}
			return nil
		}),
	}
	healthCmd.Flags().BoolVar(&healthPersist, "persist", false, "record findings in the review table")
	healthCmd.Flags().IntVar(&healthWindow, "window", 0, "trailing window in days (default from config)")
	root.AddCommand(healthCmd)

	var (
		reportUser   string
		reportWindow int
	)
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Compare one user's metrics against the population benchmark",
		RunE: withStore(func(ctx context.Context, cfg *config.Config, st *postgres.Store) error {
			window := cfg.Report.WindowDays
			if reportWindow > 0 {
				window = reportWindow
			}
			rows, err := st.UserPerformance(ctx, reportUser, window)
			if err != nil {
				return err
			}
			fmt.Printf("performance for %s over the last %d day(s):\n", reportUser, window)
			for _, r := range rows {
				fmt.Printf("  %-26s %-10s  %-10s  %s\n",
					r.Metric, formatMetric(r.Value), formatMetric(r.Benchmark), r.Rating)
			}
			return nil
		}),
	}
	reportCmd.Flags().StringVar(&reportUser, "user", "", "user ID to report on")
	reportCmd.Flags().IntVar(&reportWindow, "window", 0, "trailing window in days (default from config)")
	_ = reportCmd.MarkFlagRequired("user")
	root.AddCommand(reportCmd)

	var archiveDays int
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Redact transcription text older than the retention window",
		RunE: withStore(func(ctx context.Context, cfg *config.Config, st *postgres.Store) error {
			days := cfg.Retention.TranscriptionDays
			if archiveDays > 0 {
				days = archiveDays
			}
			n, err := st.ArchiveOldTranscriptions(ctx, days)
			if err != nil {
				return err
			}
			fmt.Printf("archived %d transcription(s) older than %d day(s)\n", n, days)
			return nil
		}),
	}
	archiveCmd.Flags().IntVar(&archiveDays, "days", 0, "retention window in days (default from config)")
	root.AddCommand(archiveCmd)

	var purgeDays int
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete performance log entries older than the retention window",
		RunE: withStore(func(ctx context.Context, cfg *config.Config, st *postgres.Store) error {
			days := cfg.Retention.PerformanceLogDays
			if purgeDays > 0 {
				days = purgeDays
			}
			n, err := st.PurgeOldPerformanceLogs(ctx, days)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d performance log entrie(s) older than %d day(s)\n", n, days)
			return nil
		}),
	}
	purgeCmd.Flags().IntVar(&purgeDays, "days", 0, "retention window in days (default from config)")
	root.AddCommand(purgeCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "err", err)
		return 1
	}
	return 0
}

// setupLogging installs the default slog logger at the configured level.
func setupLogging(level config.LogLevel) {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// formatMetric renders a nullable metric value for the report table.
func formatMetric(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
