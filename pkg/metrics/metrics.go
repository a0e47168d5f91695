// Package metrics defines the Prometheus metric collectors used across the
// engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	DedupChecksTotal     *prometheus.CounterVec
	DedupTierHitsTotal   *prometheus.CounterVec
	DedupTierErrorsTotal *prometheus.CounterVec
	URLBatchesTotal      prometheus.Counter
	URLBatchSize         prometheus.Histogram
	StoreScanDuration    prometheus.Histogram
	DocumentsScanned     prometheus.Counter
	CleanupRemovedTotal  *prometheus.CounterVec
	CleanupErrorsTotal   prometheus.Counter
	CleanupRunsTotal     *prometheus.CounterVec
	AnalysisRunsTotal    *prometheus.CounterVec
	BloomSnapshotsTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		DedupChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_checks_total",
				Help: "Total URL membership checks by outcome (new, duplicate).",
			},
			[]string{"outcome"},
		),
		DedupTierHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_tier_hits_total",
				Help: "Membership confirmations by tier (bloom, cache, local, store).",
			},
			[]string{"tier"},
		),
		DedupTierErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_tier_errors_total",
				Help: "Tier check failures that were skipped by graceful degradation.",
			},
			[]string{"tier"},
		),
		URLBatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "url_batches_total",
				Help: "Total crawl-candidate batches consumed.",
			},
		),
		URLBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "url_batch_size",
				Help:    "Number of URLs per crawl-candidate batch.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		StoreScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "store_scan_duration_seconds",
				Help:    "Duration of full document-store scans.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		DocumentsScanned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_scanned_total",
				Help: "Total documents read from the store by scans.",
			},
		),
		CleanupRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cleanup_removed_total",
				Help: "Documents removed by cleanup, by duplicate type (url, content, similar).",
			},
			[]string{"type"},
		),
		CleanupErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cleanup_errors_total",
				Help: "Documents whose deletion failed during cleanup.",
			},
		),
		CleanupRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cleanup_runs_total",
				Help: "Cleanup runs by mode (dry_run, live).",
			},
			[]string{"mode"},
		),
		AnalysisRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_runs_total",
				Help: "Duplicate analysis runs by status (ok, error).",
			},
			[]string{"status"},
		),
		BloomSnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloom_snapshots_total",
				Help: "Bloom filter snapshot writes by status (ok, error).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.DedupChecksTotal,
		m.DedupTierHitsTotal,
		m.DedupTierErrorsTotal,
		m.URLBatchesTotal,
		m.URLBatchSize,
		m.StoreScanDuration,
		m.DocumentsScanned,
		m.CleanupRemovedTotal,
		m.CleanupErrorsTotal,
		m.CleanupRunsTotal,
		m.AnalysisRunsTotal,
		m.BloomSnapshotsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
