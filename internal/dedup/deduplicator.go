package dedup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/websift/dedup-engine/internal/dedup/bloom"
	"github.com/websift/dedup-engine/internal/store"
	"github.com/websift/dedup-engine/pkg/config"
	apperrors "github.com/websift/dedup-engine/pkg/errors"
	"github.com/websift/dedup-engine/pkg/redis"
)

// Deduplicator answers "has this URL already been processed?" by consulting
// tiers in increasing cost order. The Bloom filter's negative answer is
// authoritative and is the dominant fast path; every tier past it trades
// latency for the accuracy the filter's false positives lack. Tiers are
// independently optional: a deployment may run with only the filter and the
// local set when a small false-duplicate-suppression rate is preferable to
// per-URL store latency.
type Deduplicator struct {
	// One lock serialises the check-then-mark unit so two goroutines cannot
	// both conclude "new" for the same URL. Per-call cost is low enough that
	// a global lock is fine.
	mu     sync.Mutex
	filter *bloom.Filter
	tiers  []Tier

	local     *localTier
	cache     *sharedCacheTier
	storeTier *storeTier
	st        store.Store
	logger    *slog.Logger

	checks     uint64
	newURLs    uint64
	duplicates uint64
	tierHits   map[string]uint64
	tierErrors map[string]uint64
}

// New wires a Deduplicator from the configured tiers. cache may be nil to
// disable the shared tier; st may be nil (or UseStoreCheck false) to skip
// the store round-trip.
func New(cfg config.DedupConfig, redisCfg config.RedisConfig, filter *bloom.Filter, st store.Store, cache *redis.Client) *Deduplicator {
	d := &Deduplicator{
		filter:     filter,
		local:      newLocalTier(),
		st:         st,
		logger:     slog.Default().With("component", "deduplicator"),
		tierHits:   make(map[string]uint64),
		tierErrors: make(map[string]uint64),
	}
	if cfg.UseSharedCache && cache != nil {
		d.cache = newSharedCacheTier(cache, redisCfg.URLSetKey, redisCfg.URLSetTTL)
		d.tiers = append(d.tiers, d.cache)
	}
	d.tiers = append(d.tiers, d.local)
	if cfg.UseStoreCheck && st != nil {
		d.storeTier = newStoreTier(st)
		d.tiers = append(d.tiers, d.storeTier)
	}
	return d
}

// CheckAndMark reports whether url was already seen and, if not, records it
// in every enabled tier before returning, so rapid-fire duplicates within
// the same batch are suppressed immediately. Tier failures degrade
// gracefully: the failing tier is skipped and the remaining tiers decide.
func (d *Deduplicator) CheckAndMark(ctx context.Context, url string) (alreadySeen bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++

	if !d.filter.Contains(url) {
		// Definitely new; skip every slower tier.
		if first := d.mark(ctx, url); !first {
			d.duplicates++
			return true
		}
		d.newURLs++
		return false
	}

	for _, tier := range d.tiers {
		seen, err := tier.Contains(ctx, url)
		if err != nil {
			d.tierErrors[tier.Name()]++
			d.logger.Warn("tier check failed, skipping tier",
				"tier", tier.Name(), "url", url, "error", err)
			continue
		}
		if seen {
			d.tierHits[tier.Name()]++
			d.duplicates++
			return true
		}
	}

	// Bloom false positive resolved: the URL is new.
	if first := d.mark(ctx, url); !first {
		d.duplicates++
		return true
	}
	d.newURLs++
	return false
}

// mark records url in the filter and all tiers. It reports false when the
// shared cache says another process marked the URL first; that process owns
// the "new" outcome.
func (d *Deduplicator) mark(ctx context.Context, url string) (first bool) {
	first = true
	d.filter.Add(url)
	for _, tier := range d.tiers {
		tierFirst, err := tier.Mark(ctx, url)
		if err != nil {
			d.tierErrors[tier.Name()]++
			d.logger.Warn("tier mark failed",
				"tier", tier.Name(), "url", url, "error", err)
			continue
		}
		if _, shared := tier.(*sharedCacheTier); shared && !tierFirst {
			first = false
		}
	}
	return first
}

// FilterNewURLs applies CheckAndMark in input order and returns only the
// URLs classified new. Marking happens synchronously, so a URL appearing
// twice in the same batch is returned at most once.
func (d *Deduplicator) FilterNewURLs(ctx context.Context, urls []string) []string {
	newURLs := make([]string, 0, len(urls))
	for _, url := range urls {
		if url == "" {
			continue
		}
		if !d.CheckAndMark(ctx, url) {
			newURLs = append(newURLs, url)
		}
	}
	d.logger.Debug("filtered url batch", "in", len(urls), "new", len(newURLs))
	return newURLs
}

// LoadExisting hydrates the Bloom filter and local set (and the shared
// cache, best effort) from one store scan of stored URLs. Required after a
// cold start before CheckAndMark can rely on its fast paths alone.
func (d *Deduplicator) LoadExisting(ctx context.Context) (int, error) {
	if d.st == nil {
		return 0, nil
	}
	it, err := d.st.ScanAll(ctx, []string{store.FieldURL})
	if err != nil {
		return 0, err
	}
	defer it.Close(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	loaded := 0
	for it.Next(ctx) {
		url := it.Document().URL
		if url == "" {
			continue
		}
		d.filter.Add(url)
		_, _ = d.local.Mark(ctx, url)
		if d.cache != nil {
			if _, err := d.cache.Mark(ctx, url); err != nil {
				d.tierErrors[d.cache.Name()]++
			}
		}
		loaded++
	}
	if err := it.Err(); err != nil {
		return loaded, err
	}
	d.logger.Info("hydrated seen-url tiers from store", "urls", loaded)
	return loaded, nil
}

// Stats is a point-in-time snapshot of deduplicator activity.
type Stats struct {
	Checks       uint64
	NewURLs      uint64
	Duplicates   uint64
	TierHits     map[string]uint64
	TierErrors   map[string]uint64
	LocalSetSize int
	BloomBits    uint64
	BloomHashes  int
}

// Stats returns a copy of the current counters.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	hits := make(map[string]uint64, len(d.tierHits))
	for k, v := range d.tierHits {
		hits[k] = v
	}
	errs := make(map[string]uint64, len(d.tierErrors))
	for k, v := range d.tierErrors {
		errs[k] = v
	}
	return Stats{
		Checks:       d.checks,
		NewURLs:      d.newURLs,
		Duplicates:   d.duplicates,
		TierHits:     hits,
		TierErrors:   errs,
		LocalSetSize: d.local.size(),
		BloomBits:    d.filter.BitArraySize(),
		BloomHashes:  d.filter.HashFunctionCount(),
	}
}

// SaveState snapshots the Bloom filter to path.
func (d *Deduplicator) SaveState(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter.SaveFile(path)
}

// LoadFilter restores a Bloom filter snapshot, or sizes a fresh one when no
// snapshot exists or the snapshot is corrupt. The returned bool reports
// whether a snapshot was restored; after a fresh build the caller should
// rehydrate with LoadExisting.
func LoadFilter(cfg config.DedupConfig) (*bloom.Filter, bool, error) {
	if cfg.SnapshotPath != "" {
		filter, err := bloom.LoadFile(cfg.SnapshotPath)
		if err == nil {
			return filter, true, nil
		}
		if errors.Is(err, apperrors.ErrSnapshotCorrupt) {
			slog.Warn("bloom snapshot corrupt, rebuilding fresh filter",
				"path", cfg.SnapshotPath, "error", err)
		} else if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("bloom snapshot unreadable, rebuilding fresh filter",
				"path", cfg.SnapshotPath, "error", err)
		}
	}
	filter, err := bloom.New(cfg.BloomCapacity, cfg.FalsePositiveRate)
	if err != nil {
		return nil, false, err
	}
	return filter, false, nil
}

// BreakerState exposes the store-lookup circuit breaker state, or closed
// when the store tier is disabled.
func (d *Deduplicator) BreakerState() string {
	if d.storeTier == nil {
		return "closed"
	}
	return d.storeTier.BreakerState().String()
}
