// Command scheduler runs periodic duplicate cleanup on three cadences: a
// daily light pass (url + content), a weekly full pass (url + content +
// similar) and a monthly deep pass (full pass as a live run when dry-run is
// not forced by config). Two gates guard every fire: a minimum interval since
// the previous run, and a duplicate-ratio check that skips the pass when the
// store is already clean. Run outcomes are published to a Kafka reports
// topic when notifications are enabled.
//
// Usage:
//
//	go run ./cmd/scheduler [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/websift/dedup-engine/internal/analyzer"
	"github.com/websift/dedup-engine/internal/cleanup"
	"github.com/websift/dedup-engine/internal/schedule"
	"github.com/websift/dedup-engine/internal/similarity"
	"github.com/websift/dedup-engine/internal/store"
	"github.com/websift/dedup-engine/pkg/config"
	"github.com/websift/dedup-engine/pkg/health"
	"github.com/websift/dedup-engine/pkg/kafka"
	"github.com/websift/dedup-engine/pkg/logger"
	"github.com/websift/dedup-engine/pkg/metrics"
)

// job is one scheduled cleanup cadence.
type job struct {
	name     string
	schedule schedule.Schedule
	types    []string
	next     time.Time
}

// report is the wire format of a cleanup run notification.
type report struct {
	Job              string        `json:"job"`
	StartedAt        time.Time     `json:"started_at"`
	DuplicatePercent float64       `json:"duplicate_percent"`
	Skipped          bool          `json:"skipped"`
	SkipReason       string        `json:"skip_reason,omitempty"`
	Stats            cleanup.Stats `json:"stats"`
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting cleanup scheduler")

	jobs, err := buildJobs(cfg.Schedule)
	if err != nil {
		slog.Error("invalid schedule configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close(context.Background())

	var producer *kafka.Producer
	if cfg.Schedule.NotificationsEnabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CleanupReports)
		defer producer.Close()
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		checker := health.NewChecker()
		checker.Register("store", func(ctx context.Context) health.ComponentHealth {
			pinger, ok := st.(store.Pinger)
			if !ok {
				return health.ComponentHealth{Status: health.StatusUp}
			}
			if err := pinger.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	s := scheduler{
		cfg:      cfg,
		store:    st,
		analyzer: analyzer.New(st),
		executor: cleanup.New(st, similarity.New(
			similarity.WithSampleCap(cfg.Cleanup.SampleCap),
			similarity.WithMinTextLength(cfg.Cleanup.MinSimilarityLength),
		)),
		producer: producer,
		metrics:  m,
		jobs:     jobs,
		logger:   slog.Default().With("component", "scheduler"),
	}
	s.run(ctx)
	slog.Info("scheduler stopped")
}

func buildJobs(cfg config.ScheduleConfig) ([]*job, error) {
	now := time.Now()
	specs := []struct {
		name       string
		descriptor string
		types      []string
	}{
		{"daily-light", cfg.DailyLight, []string{cleanup.TypeURL, cleanup.TypeContent}},
		{"weekly-full", cfg.WeeklyFull, []string{cleanup.TypeURL, cleanup.TypeContent, cleanup.TypeSimilar}},
		{"monthly-deep", cfg.MonthlyDeep, []string{cleanup.TypeURL, cleanup.TypeContent, cleanup.TypeSimilar}},
	}
	jobs := make([]*job, 0, len(specs))
	for _, spec := range specs {
		if spec.descriptor == "" {
			continue
		}
		sched, err := schedule.Parse(spec.descriptor)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", spec.name, err)
		}
		jobs = append(jobs, &job{
			name:     spec.name,
			schedule: sched,
			types:    spec.types,
			next:     sched.Next(now),
		})
	}
	return jobs, nil
}

type scheduler struct {
	cfg      *config.Config
	store    store.Store
	analyzer *analyzer.Analyzer
	executor *cleanup.Executor
	producer *kafka.Producer
	metrics  *metrics.Metrics
	jobs     []*job
	logger   *slog.Logger

	lastRun time.Time
}

// run wakes once a minute, fires any job whose time has passed and computes
// its next occurrence. A wall-clock poll rather than per-job timers keeps
// behavior obvious across suspend/resume and clock changes.
func (s *scheduler) run(ctx context.Context) {
	for _, j := range s.jobs {
		s.logger.Info("job scheduled",
			"job", j.name,
			"descriptor", j.schedule.String(),
			"next", j.next,
		)
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, j := range s.jobs {
				if now.Before(j.next) {
					continue
				}
				j.next = j.schedule.Next(now)
				s.fire(ctx, j, now)
			}
		}
	}
}

// fire runs one job, applying the interval and duplicate-ratio gates first.
func (s *scheduler) fire(ctx context.Context, j *job, now time.Time) {
	log := s.logger.With("job", j.name)
	rep := report{Job: j.name, StartedAt: now}

	if !s.lastRun.IsZero() && now.Sub(s.lastRun) < s.cfg.Schedule.MinCleanupInterval {
		rep.Skipped = true
		rep.SkipReason = "minimum interval since previous cleanup not elapsed"
		log.Info("skipping run", "reason", rep.SkipReason, "last_run", s.lastRun)
		s.notify(ctx, rep)
		return
	}

	scanStart := time.Now()
	pct, err := s.duplicatePercent(ctx)
	if err != nil {
		s.metrics.AnalysisRunsTotal.WithLabelValues("error").Inc()
		log.Error("duplicate-ratio gate failed, skipping run", "error", err)
		return
	}
	s.metrics.AnalysisRunsTotal.WithLabelValues("ok").Inc()
	s.metrics.StoreScanDuration.Observe(time.Since(scanStart).Seconds())
	rep.DuplicatePercent = pct
	if pct < s.cfg.Schedule.MaxDuplicatePercent {
		rep.Skipped = true
		rep.SkipReason = fmt.Sprintf("duplicate ratio %.1f%% below threshold %.1f%%",
			pct, s.cfg.Schedule.MaxDuplicatePercent)
		log.Info("skipping run", "reason", rep.SkipReason)
		s.notify(ctx, rep)
		return
	}

	opts := cleanup.Options{
		Types:               j.types,
		Strategy:            s.cfg.Cleanup.Strategy,
		SimilarityThreshold: s.cfg.Cleanup.SimilarityThreshold,
		MinContentLength:    s.cfg.Cleanup.MinContentLength,
		DeleteChunkSize:     s.cfg.Cleanup.DeleteChunkSize,
		DryRun:              s.cfg.Cleanup.DryRun,
	}
	stats, err := s.executor.Run(ctx, opts)
	if err != nil {
		log.Error("cleanup run failed", "error", err)
		s.metrics.CleanupRunsTotal.WithLabelValues(mode(opts.DryRun)).Inc()
		return
	}
	s.lastRun = now
	rep.Stats = stats
	s.metrics.CleanupRunsTotal.WithLabelValues(mode(opts.DryRun)).Inc()
	s.metrics.CleanupRemovedTotal.WithLabelValues(cleanup.TypeURL).Add(float64(stats.URLDuplicatesRemoved))
	s.metrics.CleanupRemovedTotal.WithLabelValues(cleanup.TypeContent).Add(float64(stats.ContentDuplicatesRemoved))
	s.metrics.CleanupRemovedTotal.WithLabelValues(cleanup.TypeSimilar).Add(float64(stats.SimilarDuplicatesRemoved))
	s.metrics.CleanupErrorsTotal.Add(float64(stats.Errors))
	log.Info("cleanup run finished",
		"removed", stats.TotalRemoved,
		"errors", stats.Errors,
		"dry_run", stats.DryRun,
	)
	s.notify(ctx, rep)
}

// duplicatePercent estimates how much of the store is duplicated, using the
// cheap URL analysis only.
func (s *scheduler) duplicatePercent(ctx context.Context) (float64, error) {
	urlReport, err := s.analyzer.AnalyzeURLDuplicates(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.DocumentsScanned.Add(float64(urlReport.TotalDocuments))
	if urlReport.TotalDocuments == 0 {
		return 0, nil
	}
	return 100 * float64(urlReport.TotalDuplicates) / float64(urlReport.TotalDocuments), nil
}

func (s *scheduler) notify(ctx context.Context, rep report) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(ctx, kafka.Event{Key: rep.Job, Value: rep}); err != nil {
		s.logger.Error("failed to publish cleanup report", "job", rep.Job, "error", err)
	}
}

func mode(dryRun bool) string {
	if dryRun {
		return "dry_run"
	}
	return "live"
}
