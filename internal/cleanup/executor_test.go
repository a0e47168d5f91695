package cleanup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/websift/dedup-engine/internal/analyzer"
	"github.com/websift/dedup-engine/internal/similarity"
	"github.com/websift/dedup-engine/internal/store"
	"github.com/websift/dedup-engine/internal/store/storetest"
	apperrors "github.com/websift/dedup-engine/pkg/errors"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newExecutor(st store.Store) *Executor {
	return New(st, similarity.New(similarity.WithMinTextLength(50)))
}

func defaultOptions() Options {
	return Options{
		Types:               []string{TypeURL},
		Strategy:            StrategyLatest,
		SimilarityThreshold: 0.95,
		MinContentLength:    1,
		DryRun:              false,
	}
}

func TestRunLatestKeepsNewest(t *testing.T) {
	st := storetest.New(
		store.Document{ID: "old", URL: "http://a.onion/", Timestamp: ts("2026-01-01T00:00:00Z")},
		store.Document{ID: "new", URL: "http://a.onion/", Timestamp: ts("2026-02-01T00:00:00Z")},
		store.Document{ID: "mid", URL: "http://a.onion/", Timestamp: ts("2026-01-15T00:00:00Z")},
		store.Document{ID: "solo", URL: "http://b.onion/", Timestamp: ts("2026-01-01T00:00:00Z")},
	)
	stats, err := newExecutor(st).Run(context.Background(), defaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if stats.URLDuplicatesRemoved != 2 || stats.TotalRemoved != 2 {
		t.Errorf("removed url=%d total=%d, want 2/2", stats.URLDuplicatesRemoved, stats.TotalRemoved)
	}
	remaining := st.Documents()
	if len(remaining) != 2 {
		t.Fatalf("%d documents remain, want 2", len(remaining))
	}
	for _, doc := range remaining {
		if doc.ID != "new" && doc.ID != "solo" {
			t.Errorf("unexpected survivor %s", doc.ID)
		}
	}
}

func TestDecideStrategies(t *testing.T) {
	group := analyzer.DuplicateGroup{
		Key: "http://a.onion/",
		Members: []store.Document{
			{ID: "1", TextContent: "short", Timestamp: ts("2026-01-02T00:00:00Z")},
			{ID: "2", TextContent: "the longest content of all", Timestamp: ts("2026-01-03T00:00:00Z")},
			{ID: "3", TextContent: "medium body", Timestamp: ts("2026-01-01T00:00:00Z")},
		},
	}
	cases := []struct {
		strategy string
		wantKeep string
	}{
		{StrategyLatest, "2"},
		{StrategyLongestContent, "2"},
		{StrategyFirst, "3"},
	}
	for _, tc := range cases {
		t.Run(tc.strategy, func(t *testing.T) {
			decisions := Decide([]analyzer.DuplicateGroup{group}, tc.strategy, nil)
			if len(decisions) != 1 {
				t.Fatalf("got %d decisions, want 1", len(decisions))
			}
			if decisions[0].KeptDocumentID != tc.wantKeep {
				t.Errorf("kept %s, want %s", decisions[0].KeptDocumentID, tc.wantKeep)
			}
			if len(decisions[0].RemovedDocumentIDs) != 2 {
				t.Errorf("removed %v, want 2 ids", decisions[0].RemovedDocumentIDs)
			}
		})
	}
}

func TestDecideTieBreaksFirstSeen(t *testing.T) {
	same := ts("2026-01-01T00:00:00Z")
	group := analyzer.DuplicateGroup{
		Key: "k",
		Members: []store.Document{
			{ID: "first", TextContent: "same length", Timestamp: same},
			{ID: "second", TextContent: "same length", Timestamp: same},
		},
	}
	for _, strategy := range []string{StrategyLatest, StrategyLongestContent, StrategyFirst} {
		decisions := Decide([]analyzer.DuplicateGroup{group}, strategy, nil)
		if decisions[0].KeptDocumentID != "first" {
			t.Errorf("strategy %s kept %s, want first-seen member", strategy, decisions[0].KeptDocumentID)
		}
	}
}

func TestDecideSkipsAlreadyRemoved(t *testing.T) {
	group := analyzer.DuplicateGroup{
		Key: "k",
		Members: []store.Document{
			{ID: "1", Timestamp: ts("2026-01-01T00:00:00Z")},
			{ID: "2", Timestamp: ts("2026-01-02T00:00:00Z")},
			{ID: "3", Timestamp: ts("2026-01-03T00:00:00Z")},
		},
	}
	gone := map[string]struct{}{"2": {}, "3": {}}
	decisions := Decide([]analyzer.DuplicateGroup{group}, StrategyLatest, gone)
	// Only one live member left, nothing to decide.
	if len(decisions) != 0 {
		t.Errorf("got %d decisions, want 0: %+v", len(decisions), decisions)
	}
}

func TestRunNoDoubleRemovalAcrossTypes(t *testing.T) {
	// Same URL and same content: the url pass removes the duplicate, the
	// content pass must not count it again.
	st := storetest.New(
		store.Document{ID: "1", URL: "http://a.onion/", TextContent: "identical body", Timestamp: ts("2026-01-01T00:00:00Z")},
		store.Document{ID: "2", URL: "http://a.onion/", TextContent: "identical body", Timestamp: ts("2026-01-02T00:00:00Z")},
	)
	opts := defaultOptions()
	opts.Types = []string{TypeURL, TypeContent}
	stats, err := newExecutor(st).Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if stats.URLDuplicatesRemoved != 1 {
		t.Errorf("url removed = %d, want 1", stats.URLDuplicatesRemoved)
	}
	if stats.ContentDuplicatesRemoved != 0 {
		t.Errorf("content removed = %d, want 0", stats.ContentDuplicatesRemoved)
	}
	if stats.TotalRemoved != 1 {
		t.Errorf("total removed = %d, want 1", stats.TotalRemoved)
	}
}

func TestRunDryRun(t *testing.T) {
	docs := []store.Document{
		{ID: "1", URL: "http://a.onion/", Timestamp: ts("2026-01-01T00:00:00Z")},
		{ID: "2", URL: "http://a.onion/", Timestamp: ts("2026-01-02T00:00:00Z")},
	}
	live := storetest.New(docs...)
	dry := storetest.New(docs...)

	liveOpts := defaultOptions()
	dryOpts := defaultOptions()
	dryOpts.DryRun = true

	liveStats, err := newExecutor(live).Run(context.Background(), liveOpts)
	if err != nil {
		t.Fatal(err)
	}
	dryStats, err := newExecutor(dry).Run(context.Background(), dryOpts)
	if err != nil {
		t.Fatal(err)
	}

	if !dryStats.DryRun || liveStats.DryRun {
		t.Error("dry-run flag not reported correctly")
	}
	if dryStats.TotalRemoved != liveStats.TotalRemoved {
		t.Errorf("dry-run counted %d, live removed %d; counts must match",
			dryStats.TotalRemoved, liveStats.TotalRemoved)
	}
	if len(dry.BulkDeleteCalls) != 0 {
		t.Error("dry run called BulkDelete")
	}
	if len(dry.Documents()) != 2 {
		t.Error("dry run mutated the store")
	}
}

func TestRunChunkedDeletion(t *testing.T) {
	var docs []store.Document
	for i := 0; i < 7; i++ {
		docs = append(docs, store.Document{
			ID:        fmt.Sprintf("doc-%d", i),
			URL:       "http://a.onion/",
			Timestamp: ts("2026-01-01T00:00:00Z").Add(time.Duration(i) * time.Hour),
		})
	}
	st := storetest.New(docs...)
	opts := defaultOptions()
	opts.DeleteChunkSize = 2

	stats, err := newExecutor(st).Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRemoved != 6 {
		t.Errorf("removed %d, want 6", stats.TotalRemoved)
	}
	if len(st.BulkDeleteCalls) != 3 {
		t.Fatalf("BulkDelete called %d times, want 3", len(st.BulkDeleteCalls))
	}
	for i, call := range st.BulkDeleteCalls {
		if len(call) > 2 {
			t.Errorf("chunk %d has %d ids, cap is 2", i, len(call))
		}
	}
}

func TestRunChunkFailureContinues(t *testing.T) {
	var docs []store.Document
	for i := 0; i < 5; i++ {
		docs = append(docs, store.Document{
			ID:        fmt.Sprintf("doc-%d", i),
			URL:       "http://a.onion/",
			Timestamp: ts("2026-01-01T00:00:00Z").Add(time.Duration(i) * time.Hour),
		})
	}
	st := storetest.New(docs...)
	// doc-0 sorts into the first chunk; that whole chunk fails.
	st.FailDeleteIDs["doc-0"] = true
	opts := defaultOptions()
	opts.DeleteChunkSize = 2

	stats, err := newExecutor(st).Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	// Four duplicates: the failed chunk of two counts as errors, the rest are
	// removed.
	if stats.Errors != 2 {
		t.Errorf("errors = %d, want 2", stats.Errors)
	}
	if stats.TotalRemoved != 2 {
		t.Errorf("removed = %d, want 2", stats.TotalRemoved)
	}
	if len(st.BulkDeleteCalls) != 2 {
		t.Errorf("BulkDelete called %d times, want 2 (run continued)", len(st.BulkDeleteCalls))
	}
}

func TestRunSimilarType(t *testing.T) {
	base := strings.Repeat("a long shared paragraph describing the same hidden service. ", 4)
	st := storetest.New(
		store.Document{ID: "1", URL: "http://a.onion/", TextContent: base, Timestamp: ts("2026-01-01T00:00:00Z")},
		store.Document{ID: "2", URL: "http://b.onion/", TextContent: base, Timestamp: ts("2026-01-02T00:00:00Z")},
		store.Document{ID: "3", URL: "http://c.onion/", TextContent: strings.Repeat("completely unrelated prose on another topic entirely here. ", 4), Timestamp: ts("2026-01-03T00:00:00Z")},
	)
	opts := defaultOptions()
	opts.Types = []string{TypeSimilar}

	stats, err := newExecutor(st).Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if stats.SimilarDuplicatesRemoved != 1 {
		t.Errorf("similar removed = %d, want 1", stats.SimilarDuplicatesRemoved)
	}
	for _, doc := range st.Documents() {
		if doc.ID == "1" {
			t.Error("older member kept instead of latest")
		}
	}
}

func TestRunValidation(t *testing.T) {
	st := storetest.New()
	cases := []struct {
		name string
		mut  func(*Options)
	}{
		{"no types", func(o *Options) { o.Types = nil }},
		{"unknown type", func(o *Options) { o.Types = []string{"fuzzy"} }},
		{"unknown strategy", func(o *Options) { o.Strategy = "newest" }},
		{"threshold too high", func(o *Options) { o.SimilarityThreshold = 1.5 }},
		{"threshold negative", func(o *Options) { o.SimilarityThreshold = -0.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := defaultOptions()
			tc.mut(&opts)
			_, err := newExecutor(st).Run(context.Background(), opts)
			if !errors.Is(err, apperrors.ErrInvalidConfiguration) {
				t.Fatalf("want ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestRunScanErrorAborts(t *testing.T) {
	st := storetest.New()
	st.ScanErr = apperrors.New(apperrors.ErrStoreUnavailable, "scan refused")
	_, err := newExecutor(st).Run(context.Background(), defaultOptions())
	if !errors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}
