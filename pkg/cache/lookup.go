package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/docqa/docqa/pkg/similarity"
)

// Canonicalizer folds paraphrases onto canonical questions.
type Canonicalizer interface {
	Canonicalize(raw string) string
}

// Lookup is a Matcher that scores every cached question of a document
// against the new one and keeps the best. Per-document entry counts are
// small, so a linear scan is sufficient.
type Lookup struct {
	store     Store
	canon     Canonicalizer
	scorer    *similarity.Scorer
	threshold float64
	log       *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLookup creates a Lookup. A threshold outside (0, 1] falls back to DefaultThreshold.
func NewLookup(store Store, canon Canonicalizer, scorer *similarity.Scorer, threshold float64, log *zap.Logger) *Lookup {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Lookup{
		store:     store,
		canon:     canon,
		scorer:    scorer,
		threshold: threshold,
		log:       log,
	}
}

// Lookup returns the cached answer most similar to query when its score
// reaches the threshold. Entries of other documents are never considered.
func (l *Lookup) Lookup(ctx context.Context, documentID, query string) (Match, bool, error) {
	m := Match{Query: l.canon.Canonicalize(query)}

	entries, err := l.store.ListEntries(ctx, documentID)
	if err != nil {
		return m, false, fmt.Errorf("list cache entries: %w", err)
	}
	if len(entries) == 0 {
		l.misses.Add(1)
		return m, false, nil
	}

	q, err := l.scorer.Prepare(ctx, m.Query)
	if err != nil {
		return m, false, err
	}

	best := -1
	for i, e := range entries {
		score, err := l.scorer.ScoreQuery(ctx, q, e.Query)
		if err != nil {
			return m, false, err
		}
		l.log.Debug("scored cached query",
			zap.String("document_id", documentID),
			zap.String("query", m.Query),
			zap.String("cached_query", e.Query),
			zap.Float64("score", score))
		if best < 0 || score > m.Score {
			best = i
			m.Score = score
		}
	}

	if m.Score < l.threshold {
		l.misses.Add(1)
		return m, false, nil
	}
	m.Entry = entries[best]
	l.hits.Add(1)
	l.log.Info("cache hit",
		zap.String("document_id", documentID),
		zap.String("cached_query", m.Entry.Query),
		zap.Float64("score", m.Score))
	return m, true, nil
}

// Threshold returns the configured hit threshold.
func (l *Lookup) Threshold() float64 { return l.threshold }

// Hits returns the number of lookups that found a reusable answer.
func (l *Lookup) Hits() int64 { return l.hits.Load() }

// Misses returns the number of lookups that did not.
func (l *Lookup) Misses() int64 { return l.misses.Load() }
