// Package dedup implements ingestion-time duplicate suppression: a layered
// membership check over a Bloom filter, an optional shared Redis cache, a
// local in-process set, and the persistent store.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/websift/dedup-engine/internal/store"
	"github.com/websift/dedup-engine/pkg/redis"
	"github.com/websift/dedup-engine/pkg/resilience"
)

// Tier is one membership-check mechanism in the deduplication hierarchy.
// Tiers are consulted cheapest-first after the Bloom filter; a positive
// Contains is authoritative for "seen". Mark records a URL and reports
// whether this caller was the first to record it, which is how two workers
// racing on the same URL agree on exactly one "new" outcome.
type Tier interface {
	Name() string
	Contains(ctx context.Context, url string) (bool, error)
	Mark(ctx context.Context, url string) (first bool, err error)
}

// localTier is the in-process seen set. It covers URLs added earlier in the
// same process lifetime that the shared cache may have since evicted.
type localTier struct {
	mu   sync.RWMutex
	urls map[string]struct{}
}

func newLocalTier() *localTier {
	return &localTier{urls: make(map[string]struct{})}
}

func (t *localTier) Name() string { return "local" }

func (t *localTier) Contains(ctx context.Context, url string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.urls[url]
	return ok, nil
}

func (t *localTier) Mark(ctx context.Context, url string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.urls[url]; ok {
		return false, nil
	}
	t.urls[url] = struct{}{}
	return true, nil
}

func (t *localTier) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.urls)
}

// sharedCacheTier is the cross-process seen set in Redis. SADD's return
// value gives atomic add-if-absent semantics; the set carries an eviction
// horizon so stale entries age out.
type sharedCacheTier struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func newSharedCacheTier(client *redis.Client, key string, ttl time.Duration) *sharedCacheTier {
	return &sharedCacheTier{client: client, key: key, ttl: ttl}
}

func (t *sharedCacheTier) Name() string { return "cache" }

func (t *sharedCacheTier) Contains(ctx context.Context, url string) (bool, error) {
	return t.client.SetContains(ctx, t.key, url)
}

func (t *sharedCacheTier) Mark(ctx context.Context, url string) (bool, error) {
	first, err := t.client.SetAdd(ctx, t.key, url)
	if err != nil {
		return false, err
	}
	if t.ttl > 0 {
		// Best effort: a failed EXPIRE only delays eviction.
		_ = t.client.Expire(ctx, t.key, t.ttl)
	}
	return first, nil
}

// storeTier resolves Bloom false positives against the persistent store with
// an exact URL lookup. Lookups run behind a circuit breaker so an
// unreachable store degrades this tier instead of stalling every check.
// Marking is a no-op: documents reach the store through the ingestion
// pipeline, not through the deduplicator.
type storeTier struct {
	store   store.Store
	breaker *resilience.CircuitBreaker
}

func newStoreTier(st store.Store) *storeTier {
	return &storeTier{
		store:   st,
		breaker: resilience.NewCircuitBreaker("dedup-store-lookup", resilience.CircuitBreakerConfig{}),
	}
}

func (t *storeTier) Name() string { return "store" }

func (t *storeTier) Contains(ctx context.Context, url string) (bool, error) {
	var found bool
	err := t.breaker.Execute(func() error {
		doc, err := t.store.LookupExact(ctx, store.FieldURL, url)
		if err != nil {
			return err
		}
		found = doc != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (t *storeTier) Mark(ctx context.Context, url string) (bool, error) {
	return true, nil
}

// BreakerState exposes the lookup breaker state for metrics.
func (t *storeTier) BreakerState() resilience.State {
	return t.breaker.GetState()
}
