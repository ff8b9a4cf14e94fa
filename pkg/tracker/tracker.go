// Package tracker keeps a ledger of generation calls and their token usage.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/docqa/docqa/pkg/models"
)

// Tracker records and queries generation usage.
type Tracker interface {
	// Record stores a usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// Recent returns the newest records first.
	Recent(ctx context.Context, limit int) ([]models.UsageRecord, error)
	// Total returns total tokens used since a given time.
	Total(ctx context.Context, since time.Time) (int64, error)
	// TotalByOperation returns total tokens used by one operation since a given time.
	TotalByOperation(ctx context.Context, operation string, since time.Time) (int64, error)
	// Summary aggregates usage per operation, provider and model, optionally
	// filtered by operation.
	Summary(ctx context.Context, operation string, since time.Time) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS generation_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_generation_usage_time ON generation_usage(created_at);
`

// New creates a SQLiteTracker and runs auto-migration. The ledger may share
// its database file with the response cache.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores a usage record. A zero CreatedAt is set to now.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO generation_usage (operation, provider, model, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Operation, rec.Provider, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Recent returns the newest records first.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, operation, provider, model, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at
		 FROM generation_usage ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.ID, &r.Operation, &r.Provider, &r.Model, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Total returns total tokens used since a given time.
func (t *SQLiteTracker) Total(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM generation_usage WHERE created_at >= ?`,
		since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage: %w", err)
	}
	return total, nil
}

// TotalByOperation returns total tokens used by one operation since a given time.
func (t *SQLiteTracker) TotalByOperation(ctx context.Context, operation string, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM generation_usage WHERE operation = ? AND created_at >= ?`,
		operation, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage by operation: %w", err)
	}
	return total, nil
}

// Summary returns aggregated usage grouped by operation, provider and model.
func (t *SQLiteTracker) Summary(ctx context.Context, operation string, since time.Time) ([]models.UsageSummary, error) {
	query := `SELECT operation, provider, model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens), AVG(latency_ms)
		 FROM generation_usage WHERE created_at >= ?`
	args := []any{since}
	if operation != "" {
		query += ` AND operation = ?`
		args = append(args, operation)
	}
	query += ` GROUP BY operation, provider, model ORDER BY operation, provider, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Operation, &s.Provider, &s.Model, &s.RequestCount, &s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
