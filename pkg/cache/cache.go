// Package cache reuses previously generated answers for questions that are
// close enough to one already asked about the same document.
package cache

import (
	"context"
	"errors"

	"github.com/docqa/docqa/pkg/models"
)

// ErrStoreBusy is returned when the store stays locked after all retries.
// Callers should try again later; no committed data is affected.
var ErrStoreBusy = errors.New("cache store busy")

// DefaultThreshold is the minimum similarity for a cache hit.
const DefaultThreshold = 0.65

// Store is the durable record of answered questions and document summaries.
// All operations are scoped to a document identifier.
type Store interface {
	// AppendEntry records an answered question. Duplicates are allowed.
	AppendEntry(ctx context.Context, documentID, query, response string) error
	// ListEntries returns every entry for the document in no particular order.
	ListEntries(ctx context.Context, documentID string) ([]models.CacheEntry, error)
	// UpsertSummary atomically replaces the document's summary.
	UpsertSummary(ctx context.Context, documentID, summary string) error
	// GetSummary returns the document's summary, if any.
	GetSummary(ctx context.Context, documentID string) (string, bool, error)
}

// Matcher finds a reusable answer for a question about a document.
type Matcher interface {
	Lookup(ctx context.Context, documentID, query string) (Match, bool, error)
}

// Match is the outcome of a lookup. Query is the canonicalized question and is
// set on hits and misses alike.
type Match struct {
	Query string
	Entry models.CacheEntry
	Score float64
}
