package models

import "time"

// CacheEntry is a previously answered question about a document.
type CacheEntry struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	Query      string    `json:"query"`
	Response   string    `json:"response"`
	CreatedAt  time.Time `json:"created_at"`
}

// SummaryEntry is the current summary of a document.
type SummaryEntry struct {
	DocumentID string    `json:"document_id"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
}

// CacheStats reports cache contents and lookup performance.
type CacheStats struct {
	Entries   int64 `json:"entries"`
	Documents int64 `json:"documents"`
	Summaries int64 `json:"summaries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
}
