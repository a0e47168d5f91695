// Package analyzer provides retrospective, read-only duplicate analysis over
// the persistent store: exact URL duplicates, exact content duplicates via
// content hashing, and temporal clustering of repeat visits. Nothing in this
// package ever mutates the store.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/websift/dedup-engine/internal/store"
)

// rapidRepeatWindow is how close two visits must be to count as rapid.
const rapidRepeatWindow = 5 * time.Minute

// DuplicateGroup is a set of documents deemed equivalent under one
// criterion: an exact URL, a content hash, or a synthetic similarity cluster
// id. Groups of size < 2 are never materialised.
type DuplicateGroup struct {
	Key     string
	Members []store.Document
}

// URLReport summarises exact URL duplication.
type URLReport struct {
	TotalDocuments  int            `json:"total_documents"`
	UniqueURLs      int            `json:"unique_urls"`
	DuplicateURLs   map[string]int `json:"duplicate_urls"`
	TotalDuplicates int            `json:"total_duplicates"`
}

// ContentReport summarises exact content duplication.
type ContentReport struct {
	TotalContentHashes int              `json:"total_content_hashes"`
	DuplicateGroups    []DuplicateGroup `json:"-"`
	DuplicateGroupsN   int              `json:"duplicate_content_groups"`
	TotalDuplicates    int              `json:"total_content_duplicates"`
}

// TemporalReport summarises when repeat visits happen. SameDay and SameHour
// count overlapping conditions: a URL revisited within one hour is counted
// by both.
type TemporalReport struct {
	SameDayDuplicates  int            `json:"same_day_duplicates"`
	SameHourDuplicates int            `json:"same_hour_duplicates"`
	RapidDuplicates    int            `json:"rapid_duplicates"`
	URLFrequency       map[string]int `json:"url_frequency"`
}

// Report is the combined output of a full analysis run.
type Report struct {
	Timestamp       time.Time      `json:"timestamp"`
	URL             URLReport      `json:"url_analysis"`
	Content         ContentReport  `json:"content_analysis"`
	Temporal        TemporalReport `json:"temporal_analysis"`
	Recommendations []string       `json:"recommendations"`
}

// Analyzer runs duplicate analyses against a Store.
type Analyzer struct {
	store  store.Store
	logger *slog.Logger
}

// New creates an Analyzer over the given store.
func New(st store.Store) *Analyzer {
	return &Analyzer{
		store:  st,
		logger: slog.Default().With("component", "duplicate-analyzer"),
	}
}

// AnalyzeURLDuplicates streams all documents and reports per-URL occurrence
// counts for URLs seen more than once, plus the total count of extra
// documents. A failed scan aborts the analysis: a partial duplicate report
// is unsafe to act on.
func (a *Analyzer) AnalyzeURLDuplicates(ctx context.Context) (URLReport, error) {
	docs, err := a.fetch(ctx, []string{store.FieldURL, store.FieldTimestamp})
	if err != nil {
		return URLReport{}, err
	}
	return urlReport(docs), nil
}

func urlReport(docs []store.Document) URLReport {
	counts := make(map[string]int)
	total := 0
	for _, doc := range docs {
		if doc.URL == "" {
			continue
		}
		counts[doc.URL]++
		total++
	}
	report := URLReport{
		TotalDocuments: total,
		UniqueURLs:     len(counts),
		DuplicateURLs:  make(map[string]int),
	}
	for url, count := range counts {
		if count > 1 {
			report.DuplicateURLs[url] = count
			report.TotalDuplicates += count - 1
		}
	}
	return report
}

// AnalyzeContentDuplicates streams all documents with non-empty text,
// hashes each document's text, and reports the hash groups with more than
// one member.
func (a *Analyzer) AnalyzeContentDuplicates(ctx context.Context) (ContentReport, error) {
	docs, err := a.fetch(ctx, nil)
	if err != nil {
		return ContentReport{}, err
	}
	return contentReport(docs), nil
}

func contentReport(docs []store.Document) ContentReport {
	groups := GroupByContentHash(docs, 1)
	hashes := make(map[string]struct{})
	for _, doc := range docs {
		if doc.TextContent == "" {
			continue
		}
		hashes[ContentHash(doc.TextContent)] = struct{}{}
	}
	report := ContentReport{
		TotalContentHashes: len(hashes),
		DuplicateGroups:    groups,
		DuplicateGroupsN:   len(groups),
	}
	for _, g := range groups {
		report.TotalDuplicates += len(g.Members) - 1
	}
	return report
}

// AnalyzeTemporalPatterns flags, for each URL visited more than once,
// same-calendar-day repeats, same-hour repeats, and repeats within a
// five-minute window.
func (a *Analyzer) AnalyzeTemporalPatterns(ctx context.Context) (TemporalReport, error) {
	docs, err := a.fetch(ctx, []string{store.FieldURL, store.FieldTimestamp})
	if err != nil {
		return TemporalReport{}, err
	}
	return temporalReport(docs), nil
}

func temporalReport(docs []store.Document) TemporalReport {
	timeline := make(map[string][]time.Time)
	for _, doc := range docs {
		if doc.URL == "" || doc.Timestamp.IsZero() {
			continue
		}
		timeline[doc.URL] = append(timeline[doc.URL], doc.Timestamp)
	}

	report := TemporalReport{URLFrequency: make(map[string]int)}
	for url, visits := range timeline {
		if len(visits) < 2 {
			continue
		}
		report.URLFrequency[url] = len(visits)
		sort.Slice(visits, func(i, j int) bool { return visits[i].Before(visits[j]) })

		days := make(map[string]struct{}, len(visits))
		hours := make(map[string]struct{}, len(visits))
		for _, ts := range visits {
			days[ts.Format("2006-01-02")] = struct{}{}
			hours[ts.Format("2006-01-02T15")] = struct{}{}
		}
		if len(days) < len(visits) {
			report.SameDayDuplicates++
		}
		if len(hours) < len(visits) {
			report.SameHourDuplicates++
		}
		for i := 1; i < len(visits); i++ {
			if visits[i].Sub(visits[i-1]) < rapidRepeatWindow {
				report.RapidDuplicates++
				break
			}
		}
	}
	return report
}

// RunFullAnalysis scans the store once and runs the three analyses over the
// shared snapshot, then derives recommendations.
func (a *Analyzer) RunFullAnalysis(ctx context.Context) (*Report, error) {
	a.logger.Info("starting full duplicate analysis")
	docs, err := a.fetch(ctx, nil)
	if err != nil {
		return nil, err
	}

	var (
		urlRep      URLReport
		contentRep  ContentReport
		temporalRep TemporalReport
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { urlRep = urlReport(docs); return nil })
	g.Go(func() error { contentRep = contentReport(docs); return nil })
	g.Go(func() error { temporalRep = temporalReport(docs); return nil })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Timestamp:       time.Now().UTC(),
		URL:             urlRep,
		Content:         contentRep,
		Temporal:        temporalRep,
		Recommendations: Recommendations(urlRep, contentRep, temporalRep),
	}
	a.logger.Info("full duplicate analysis complete",
		"documents", urlRep.TotalDocuments,
		"duplicate_urls", len(urlRep.DuplicateURLs),
		"duplicate_content_groups", contentRep.DuplicateGroupsN,
	)
	return report, nil
}

func (a *Analyzer) fetch(ctx context.Context, fields []string) ([]store.Document, error) {
	it, err := a.store.ScanAll(ctx, fields)
	if err != nil {
		return nil, err
	}
	return store.Drain(ctx, it)
}

// ContentHash returns the hex digest used to group identical text content.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// GroupByURL groups documents sharing an exact URL, in first-seen order,
// keeping only groups with at least two members.
func GroupByURL(docs []store.Document) []DuplicateGroup {
	return groupBy(docs, func(doc store.Document) (string, bool) {
		return doc.URL, doc.URL != ""
	})
}

// GroupByContentHash groups documents whose text content hashes identically,
// skipping documents with text shorter than minLength.
func GroupByContentHash(docs []store.Document, minLength int) []DuplicateGroup {
	return groupBy(docs, func(doc store.Document) (string, bool) {
		if len(doc.TextContent) < minLength || doc.TextContent == "" {
			return "", false
		}
		return ContentHash(doc.TextContent), true
	})
}

func groupBy(docs []store.Document, keyFn func(store.Document) (string, bool)) []DuplicateGroup {
	members := make(map[string][]store.Document)
	var order []string
	for _, doc := range docs {
		key, ok := keyFn(doc)
		if !ok {
			continue
		}
		if _, seen := members[key]; !seen {
			order = append(order, key)
		}
		members[key] = append(members[key], doc)
	}
	var groups []DuplicateGroup
	for _, key := range order {
		if len(members[key]) > 1 {
			groups = append(groups, DuplicateGroup{Key: key, Members: members[key]})
		}
	}
	return groups
}
