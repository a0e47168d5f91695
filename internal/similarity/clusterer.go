// Package similarity groups near-duplicate documents by pairwise text
// similarity. Pairwise comparison is quadratic, so inputs beyond a sampling
// cap are uniformly sampled rather than compared in full; callers see that
// tradeoff in the logs, it is not hidden.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"

	"github.com/websift/dedup-engine/internal/analyzer"
	"github.com/websift/dedup-engine/internal/store"
	apperrors "github.com/websift/dedup-engine/pkg/errors"
)

const (
	// DefaultSampleCap bounds the pairwise comparison set.
	DefaultSampleCap = 1000
	// DefaultMinTextLength excludes texts too short to be meaningfully
	// similar or dissimilar.
	DefaultMinTextLength = 100
)

// Clusterer finds groups of near-duplicate documents.
type Clusterer struct {
	sampleCap     int
	minTextLength int
	rng           *rand.Rand
	logger        *slog.Logger
}

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithSampleCap overrides the sampling cap.
func WithSampleCap(cap int) Option {
	return func(c *Clusterer) { c.sampleCap = cap }
}

// WithMinTextLength overrides the minimum comparable text length.
func WithMinTextLength(n int) Option {
	return func(c *Clusterer) { c.minTextLength = n }
}

// WithRand injects the sampling source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(c *Clusterer) { c.rng = rng }
}

// New creates a Clusterer with default cap and length bounds.
func New(opts ...Option) *Clusterer {
	c := &Clusterer{
		sampleCap:     DefaultSampleCap,
		minTextLength: DefaultMinTextLength,
		logger:        slog.Default().With("component", "similarity-clusterer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindSimilarGroups clusters documents whose text similarity to a group's
// seed document is at least threshold. Clustering is single-pass greedy and
// transitive to the seed only: a document similar to a non-seed member but
// not to the seed is not captured. That under-merge is an accepted
// approximation that bounds the cost, and changing it would change cleanup
// outcomes. Only groups of size >= 2 are returned.
func (c *Clusterer) FindSimilarGroups(ctx context.Context, docs []store.Document, threshold float64) ([]analyzer.DuplicateGroup, error) {
	if threshold < 0 || threshold > 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration,
			"similarity threshold must be in [0, 1], got %g", threshold)
	}

	if len(docs) > c.sampleCap {
		c.logger.Warn("input exceeds sampling cap, comparing a uniform sample",
			"documents", len(docs), "sample", c.sampleCap)
		docs = c.sample(docs)
	}

	assigned := make(map[string]struct{}, len(docs))
	var groups []analyzer.DuplicateGroup

	for i, seed := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, done := assigned[seed.ID]; done {
			continue
		}
		seedText := strings.TrimSpace(seed.TextContent)
		if len(seedText) < c.minTextLength {
			continue
		}

		members := []store.Document{seed}
		assigned[seed.ID] = struct{}{}

		for _, other := range docs[i+1:] {
			if _, done := assigned[other.ID]; done {
				continue
			}
			otherText := strings.TrimSpace(other.TextContent)
			if len(otherText) < c.minTextLength {
				continue
			}
			if Ratio(seedText, otherText) >= threshold {
				members = append(members, other)
				assigned[other.ID] = struct{}{}
			}
		}

		if len(members) > 1 {
			groups = append(groups, analyzer.DuplicateGroup{
				Key:     fmt.Sprintf("group_%d", len(groups)),
				Members: members,
			})
		}
	}

	c.logger.Info("similarity clustering complete",
		"documents", len(docs), "groups", len(groups), "threshold", threshold)
	return groups, nil
}

// sample picks sampleCap documents uniformly at random, preserving input
// order among the survivors so downstream tie-breaks stay deterministic for
// a given sample.
func (c *Clusterer) sample(docs []store.Document) []store.Document {
	rng := c.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	indices := rng.Perm(len(docs))[:c.sampleCap]
	sort.Ints(indices)
	sampled := make([]store.Document, 0, c.sampleCap)
	for _, idx := range indices {
		sampled = append(sampled, docs[idx])
	}
	return sampled
}
