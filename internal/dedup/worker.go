package dedup

import (
	"context"
	"log/slog"

	"github.com/websift/dedup-engine/pkg/kafka"
	"github.com/websift/dedup-engine/pkg/logger"
	"github.com/websift/dedup-engine/pkg/metrics"
)

// URLBatch is the wire format of a crawl-candidate batch. The crawler
// publishes one batch per discovery pass; BatchID keys the Kafka message and
// correlates log lines across services.
type URLBatch struct {
	BatchID string   `json:"batch_id"`
	Source  string   `json:"source,omitempty"`
	URLs    []string `json:"urls"`
}

// Publisher is the outbound side of the worker, satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Worker consumes crawl-candidate batches, suppresses already-seen URLs and
// forwards the survivors to the fetch queue.
type Worker struct {
	dedup    *Deduplicator
	producer Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewWorker creates a Worker. metrics may be nil.
func NewWorker(d *Deduplicator, producer Publisher, m *metrics.Metrics) *Worker {
	return &Worker{
		dedup:    d,
		producer: producer,
		metrics:  m,
		logger:   slog.Default().With("component", "dedup-worker"),
	}
}

// Handle processes one crawl-candidate message. An empty surviving set still
// succeeds without publishing anything; a publish failure is returned so the
// message is not committed and the batch replays (replay is harmless, the
// deduplicator already marked the URLs).
func (w *Worker) Handle(ctx context.Context, key []byte, value []byte) error {
	batch, err := kafka.DecodeJSON[URLBatch](value)
	if err != nil {
		// Malformed batches are dropped, not retried.
		w.logger.Error("dropping malformed batch", "key", string(key), "error", err)
		return nil
	}
	if batch.BatchID == "" {
		batch.BatchID = string(key)
	}
	ctx = logger.WithBatchID(ctx, batch.BatchID)
	log := logger.FromContext(ctx)

	if w.metrics != nil {
		w.metrics.URLBatchesTotal.Inc()
		w.metrics.URLBatchSize.Observe(float64(len(batch.URLs)))
	}

	newURLs := w.dedup.FilterNewURLs(ctx, batch.URLs)
	if w.metrics != nil {
		w.metrics.DedupChecksTotal.WithLabelValues("new").Add(float64(len(newURLs)))
		w.metrics.DedupChecksTotal.WithLabelValues("duplicate").Add(float64(len(batch.URLs) - len(newURLs)))
	}
	log.Info("batch deduplicated",
		"source", batch.Source,
		"in", len(batch.URLs),
		"new", len(newURLs),
	)
	if len(newURLs) == 0 {
		return nil
	}

	return w.producer.Publish(ctx, kafka.Event{
		Key: batch.BatchID,
		Value: URLBatch{
			BatchID: batch.BatchID,
			Source:  batch.Source,
			URLs:    newURLs,
		},
	})
}

// Hydrate runs LoadExisting unless a snapshot was restored. Split out so the
// entry point can log the decision uniformly.
func (w *Worker) Hydrate(ctx context.Context, restored bool) error {
	if restored {
		w.logger.Info("bloom snapshot restored, skipping store hydration")
		return nil
	}
	loaded, err := w.dedup.LoadExisting(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("store hydration complete", "urls", loaded)
	return nil
}
