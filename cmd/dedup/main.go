// Command dedup starts the URL deduplication worker.
//
// The worker consumes crawl-candidate URL batches from Kafka, filters out
// URLs already seen (Bloom filter, Redis shared cache, local set, persistent
// store) and publishes the surviving URLs to the fetch queue. The Bloom
// filter is restored from its snapshot on startup and snapshotted
// periodically and on shutdown.
//
// Usage:
//
//	go run ./cmd/dedup [-config configs/development.yaml]
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

	"github.com/websift/dedup-engine/internal/dedup"
	"github.com/websift/dedup-engine/internal/store"
	"github.com/websift/dedup-engine/pkg/config"
	"github.com/websift/dedup-engine/pkg/health"
	"github.com/websift/dedup-engine/pkg/kafka"
	"github.com/websift/dedup-engine/pkg/logger"
	"github.com/websift/dedup-engine/pkg/metrics"
	"github.com/websift/dedup-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting dedup worker",
		"store", cfg.Store.Backend,
		"topic", cfg.Kafka.Topics.CrawlCandidates,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close(context.Background())
	slog.Info("connected to store", "backend", cfg.Store.Backend)

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(cfg.Redis)
		if err != nil {
			// The shared tier is optional; run degraded rather than refuse to start.
			slog.Warn("redis unavailable, shared cache tier disabled", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	filter, restored, err := dedup.LoadFilter(cfg.Dedup)
	if err != nil {
		slog.Error("failed to initialize bloom filter", "error", err)
		os.Exit(1)
	}
	slog.Info("bloom filter ready",
		"restored", restored,
		"bits", filter.BitArraySize(),
		"hashes", filter.HashFunctionCount(),
	)

	deduper := dedup.New(cfg.Dedup, cfg.Redis, filter, st, cache)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FetchQueue)
	defer producer.Close()

	m := metrics.New()
	worker := dedup.NewWorker(deduper, producer, m)

	if err := worker.Hydrate(ctx, restored); err != nil {
		slog.Error("failed to hydrate seen-url tiers", "error", err)
		os.Exit(1)
	}

	if cfg.Metrics.Enabled {
		checker := health.NewChecker()
		checker.Register("store", storeCheck(st))
		if cache != nil {
			checker.Register("redis", redisCheck(cache))
		}
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	if cfg.Dedup.SnapshotPath != "" && cfg.Dedup.SnapshotInterval > 0 {
		go snapshotLoop(ctx, deduper, cfg.Dedup, m)
	}
	go exportLoop(ctx, deduper, m)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CrawlCandidates, worker.Handle)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	if cfg.Dedup.SnapshotPath != "" {
		if err := deduper.SaveState(cfg.Dedup.SnapshotPath); err != nil {
			slog.Error("failed to save bloom snapshot on shutdown", "error", err)
		} else {
			slog.Info("bloom snapshot saved", "path", cfg.Dedup.SnapshotPath)
		}
	}
	stats := deduper.Stats()
	slog.Info("dedup worker stopped",
		"checks", stats.Checks,
		"new", stats.NewURLs,
		"duplicates", stats.Duplicates,
	)
}

// snapshotLoop persists the Bloom filter on a timer so a crash loses at most
// one interval of marks.
func snapshotLoop(ctx context.Context, d *dedup.Deduplicator, cfg config.DedupConfig, m *metrics.Metrics) {
	ticker := time.NewTicker(cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.SaveState(cfg.SnapshotPath); err != nil {
				slog.Error("periodic bloom snapshot failed", "error", err)
				m.BloomSnapshotsTotal.WithLabelValues("error").Inc()
				continue
			}
			m.BloomSnapshotsTotal.WithLabelValues("ok").Inc()
			slog.Debug("bloom snapshot saved", "path", cfg.SnapshotPath)
		}
	}
}

// exportLoop publishes deduplicator internals that only change between
// scrapes: per-tier hit and error counts (as counter deltas) and the
// store-lookup breaker state.
func exportLoop(ctx context.Context, d *dedup.Deduplicator, m *metrics.Metrics) {
	breakerStates := map[string]float64{"closed": 0, "open": 1, "half-open": 2}
	prevHits := map[string]uint64{}
	prevErrs := map[string]uint64{}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := d.Stats()
			for tier, n := range stats.TierHits {
				m.DedupTierHitsTotal.WithLabelValues(tier).Add(float64(n - prevHits[tier]))
				prevHits[tier] = n
			}
			for tier, n := range stats.TierErrors {
				m.DedupTierErrorsTotal.WithLabelValues(tier).Add(float64(n - prevErrs[tier]))
				prevErrs[tier] = n
			}
			m.CircuitBreakerState.WithLabelValues("dedup-store-lookup").
				Set(breakerStates[d.BreakerState()])
		}
	}
}

func storeCheck(st store.Store) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		pinger, ok := st.(store.Pinger)
		if !ok {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		if err := pinger.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}

func redisCheck(cache *redis.Client) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if err := cache.Ping(ctx); err != nil {
			// Dedup keeps working without the shared tier.
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}
