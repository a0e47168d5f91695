// Package cleanup turns duplicate groups into keep/remove decisions and
// applies them to the persistent store in bulk. Dry run is the default mode
// everywhere this package is invoked; a live run must be requested
// explicitly.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/websift/dedup-engine/internal/analyzer"
	"github.com/websift/dedup-engine/internal/similarity"
	"github.com/websift/dedup-engine/internal/store"
	apperrors "github.com/websift/dedup-engine/pkg/errors"
	"github.com/websift/dedup-engine/pkg/tracing"
)

// Duplicate types accepted in Options.Types.
const (
	TypeURL     = "url"
	TypeContent = "content"
	TypeSimilar = "similar"
)

// Selection strategies.
const (
	StrategyLatest         = "latest"
	StrategyLongestContent = "longest_content"
	StrategyFirst          = "first"
)

// DefaultDeleteChunkSize is the bulk-delete batch size sent to the store.
const DefaultDeleteChunkSize = 100

// Options configures one cleanup run.
type Options struct {
	Types               []string
	Strategy            string
	SimilarityThreshold float64
	MinContentLength    int
	DeleteChunkSize     int
	DryRun              bool
}

// Stats accumulates counters across a single cleanup run. Stats are never
// merged across runs by this package.
type Stats struct {
	DocumentsScanned         int  `json:"documents_scanned"`
	URLDuplicatesRemoved     int  `json:"url_duplicates_removed"`
	ContentDuplicatesRemoved int  `json:"content_duplicates_removed"`
	SimilarDuplicatesRemoved int  `json:"similar_duplicates_removed"`
	TotalRemoved             int  `json:"total_removed"`
	Errors                   int  `json:"errors"`
	DryRun                   bool `json:"dry_run"`
}

// Decision records the keep/remove outcome for one duplicate group. Exactly
// one member of every processed group is kept.
type Decision struct {
	GroupKey           string   `json:"group_key"`
	KeptDocumentID     string   `json:"kept_document_id"`
	RemovedDocumentIDs []string `json:"removed_document_ids"`
}

// Executor runs duplicate cleanup against a Store.
type Executor struct {
	store     store.Store
	clusterer *similarity.Clusterer
	logger    *slog.Logger
}

// New creates an Executor. The clusterer is only consulted when a run asks
// for the "similar" type.
func New(st store.Store, clusterer *similarity.Clusterer) *Executor {
	return &Executor{
		store:     st,
		clusterer: clusterer,
		logger:    slog.Default().With("component", "cleanup-executor"),
	}
}

// Run executes cleanup for the requested duplicate types. Documents are
// fetched once up front; every type decides against that snapshot, and ids
// already marked for removal by an earlier type are excluded from later
// types' candidate sets, so one invocation never removes a document twice.
// Options are validated before any store access.
func (e *Executor) Run(ctx context.Context, opts Options) (Stats, error) {
	if err := validate(opts); err != nil {
		return Stats{}, err
	}
	if opts.DeleteChunkSize <= 0 {
		opts.DeleteChunkSize = DefaultDeleteChunkSize
	}

	runID := fmt.Sprintf("cleanup-%d", time.Now().UnixNano())
	ctx, span := tracing.StartSpan(ctx, "cleanup.run", runID)
	span.SetAttr("types", opts.Types)
	span.SetAttr("strategy", opts.Strategy)
	span.SetAttr("dry_run", opts.DryRun)
	defer func() {
		span.End()
		span.Log()
	}()

	e.logger.Info("starting cleanup",
		"run_id", runID,
		"types", opts.Types,
		"strategy", opts.Strategy,
		"dry_run", opts.DryRun,
	)

	it, err := e.store.ScanAll(ctx, nil)
	if err != nil {
		return Stats{}, err
	}
	docs, err := store.Drain(ctx, it)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		DocumentsScanned: len(docs),
		DryRun:           opts.DryRun,
	}
	removed := make(map[string]struct{})

	for _, cleanupType := range opts.Types {
		typeCtx, typeSpan := tracing.StartChildSpan(ctx, "cleanup."+cleanupType)
		groups, err := e.groupsFor(typeCtx, cleanupType, docs, opts)
		if err != nil {
			typeSpan.End()
			return stats, err
		}
		decisions := Decide(groups, opts.Strategy, removed)

		var ids []string
		for _, d := range decisions {
			ids = append(ids, d.RemovedDocumentIDs...)
		}
		for _, id := range ids {
			removed[id] = struct{}{}
		}

		count, errCount := e.remove(typeCtx, ids, opts)
		typeSpan.SetAttr("groups", len(groups))
		typeSpan.SetAttr("removed", count)
		typeSpan.End()
		stats.Errors += errCount
		stats.TotalRemoved += count
		switch cleanupType {
		case TypeURL:
			stats.URLDuplicatesRemoved = count
		case TypeContent:
			stats.ContentDuplicatesRemoved = count
		case TypeSimilar:
			stats.SimilarDuplicatesRemoved = count
		}
		e.logger.Info("cleanup type processed",
			"type", cleanupType,
			"groups", len(groups),
			"removed", count,
			"errors", errCount,
		)
	}

	e.logger.Info("cleanup complete",
		"scanned", stats.DocumentsScanned,
		"total_removed", stats.TotalRemoved,
		"errors", stats.Errors,
		"dry_run", stats.DryRun,
	)
	return stats, nil
}

func (e *Executor) groupsFor(ctx context.Context, cleanupType string, docs []store.Document, opts Options) ([]analyzer.DuplicateGroup, error) {
	switch cleanupType {
	case TypeURL:
		return analyzer.GroupByURL(docs), nil
	case TypeContent:
		minLen := opts.MinContentLength
		if minLen <= 0 {
			minLen = 1
		}
		return analyzer.GroupByContentHash(docs, minLen), nil
	case TypeSimilar:
		return e.clusterer.FindSimilarGroups(ctx, docs, opts.SimilarityThreshold)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "unknown cleanup type %q", cleanupType)
	}
}

// Decide applies the selection strategy independently to each group,
// skipping members already marked removed by an earlier type. Ties break to
// the first-seen member, so a run's decisions are deterministic for a given
// scan order.
func Decide(groups []analyzer.DuplicateGroup, strategy string, alreadyRemoved map[string]struct{}) []Decision {
	var decisions []Decision
	for _, group := range groups {
		candidates := group.Members
		if len(alreadyRemoved) > 0 {
			candidates = make([]store.Document, 0, len(group.Members))
			for _, doc := range group.Members {
				if _, gone := alreadyRemoved[doc.ID]; !gone {
					candidates = append(candidates, doc)
				}
			}
		}
		if len(candidates) < 2 {
			continue
		}

		keep := candidates[0]
		for _, doc := range candidates[1:] {
			switch strategy {
			case StrategyLatest:
				if doc.Timestamp.After(keep.Timestamp) {
					keep = doc
				}
			case StrategyLongestContent:
				if len(doc.TextContent) > len(keep.TextContent) {
					keep = doc
				}
			case StrategyFirst:
				if doc.Timestamp.Before(keep.Timestamp) {
					keep = doc
				}
			}
		}

		decision := Decision{
			GroupKey:       group.Key,
			KeptDocumentID: keep.ID,
		}
		for _, doc := range candidates {
			if doc.ID != keep.ID {
				decision.RemovedDocumentIDs = append(decision.RemovedDocumentIDs, doc.ID)
			}
		}
		decisions = append(decisions, decision)
	}
	return decisions
}

// remove deletes ids in chunks, or only counts them in dry-run mode. A
// failed chunk adds its full size to the error count and the remaining
// chunks still run; partial progress is not rolled back.
func (e *Executor) remove(ctx context.Context, ids []string, opts Options) (removed, errCount int) {
	if len(ids) == 0 {
		return 0, 0
	}
	sort.Strings(ids)
	if opts.DryRun {
		e.logger.Info("dry run, skipping deletion", "would_remove", len(ids))
		return len(ids), 0
	}

	for start := 0; start < len(ids); start += opts.DeleteChunkSize {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("cleanup cancelled between chunks",
				"remaining", len(ids)-start, "error", err)
			errCount += len(ids) - start
			return removed, errCount
		}
		end := start + opts.DeleteChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		result, err := e.store.BulkDelete(ctx, chunk)
		if err != nil {
			e.logger.Error("bulk delete chunk failed", "size", len(chunk), "error", err)
			errCount += len(chunk)
			continue
		}
		removed += len(chunk) - len(result.FailedIDs)
		errCount += len(result.FailedIDs)
	}
	return removed, errCount
}

func validate(opts Options) error {
	if len(opts.Types) == 0 {
		return apperrors.New(apperrors.ErrInvalidConfiguration, "no cleanup types requested")
	}
	for _, t := range opts.Types {
		switch t {
		case TypeURL, TypeContent, TypeSimilar:
		default:
			return apperrors.Newf(apperrors.ErrInvalidConfiguration, "unknown cleanup type %q", t)
		}
	}
	switch opts.Strategy {
	case StrategyLatest, StrategyLongestContent, StrategyFirst:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "unknown strategy %q", opts.Strategy)
	}
	if opts.SimilarityThreshold < 0 || opts.SimilarityThreshold > 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration,
			"similarity threshold must be in [0, 1], got %g", opts.SimilarityThreshold)
	}
	return nil
}
