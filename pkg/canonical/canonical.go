// Package canonical folds paraphrased questions onto a fixed set of
// reference questions so they share a cache key.
package canonical

import "github.com/docqa/docqa/pkg/fuzzy"

// DefaultCutoff is the score a canonical question must exceed to replace the query.
const DefaultCutoff = 85

// Canonicalizer maps free-form questions onto canonical ones.
type Canonicalizer struct {
	queries []string
	cutoff  float64
	scorer  fuzzy.Scorer
}

// Option configures a Canonicalizer.
type Option func(*Canonicalizer)

// WithScorer replaces the default fuzzy.WRatio scorer.
func WithScorer(s fuzzy.Scorer) Option {
	return func(c *Canonicalizer) { c.scorer = s }
}

// WithCutoff sets the score (0-100) a match must exceed.
func WithCutoff(cutoff float64) Option {
	return func(c *Canonicalizer) { c.cutoff = cutoff }
}

// New creates a Canonicalizer over queries. The slice is copied.
func New(queries []string, opts ...Option) *Canonicalizer {
	c := &Canonicalizer{
		queries: append([]string(nil), queries...),
		cutoff:  DefaultCutoff,
		scorer:  fuzzy.WRatio,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Canonicalize returns the best-scoring canonical question when its score is
// strictly above the cutoff, and raw unchanged otherwise.
func (c *Canonicalizer) Canonicalize(raw string) string {
	m, ok := fuzzy.ExtractOne(raw, c.queries, c.scorer)
	if ok && m.Score > c.cutoff {
		return m.Choice
	}
	return raw
}
