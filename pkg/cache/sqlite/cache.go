package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	sqlitedrv "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/docqa/docqa/pkg/cache"
	"github.com/docqa/docqa/pkg/models"
)

// Store is a cache.Store backed by SQLite. Query entries are append-only;
// summaries hold one row per document.
type Store struct {
	db         *sql.DB
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

const createTables = `
CREATE TABLE IF NOT EXISTS query_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_cache_document ON query_cache(document_id);

CREATE TABLE IF NOT EXISTS document_summaries (
	document_id TEXT NOT NULL PRIMARY KEY,
	summary TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Options tunes contention handling.
type Options struct {
	// MaxRetries is how often a busy operation is retried before ErrStoreBusy.
	MaxRetries int
	// RetryBackoff is the first retry delay; it doubles on each attempt.
	RetryBackoff time.Duration
	// BusyTimeout is how long SQLite itself waits on a lock.
	BusyTimeout time.Duration
	Logger      *zap.Logger
}

// New opens (and migrates) the cache database at dbPath.
func New(dbPath string, opts Options) (*Store, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 10 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 50 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		dbPath, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{
		db:         db,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		log:        opts.Logger,
	}, nil
}

// AppendEntry implements cache.Store.
func (s *Store) AppendEntry(ctx context.Context, documentID, query, response string) error {
	err := s.retry(ctx, "append entry", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO query_cache (document_id, query, response, created_at) VALUES (?, ?, ?, ?)`,
			documentID, query, response, time.Now().UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("cache append: %w", err)
	}
	return nil
}

// ListEntries implements cache.Store.
func (s *Store) ListEntries(ctx context.Context, documentID string) ([]models.CacheEntry, error) {
	var entries []models.CacheEntry
	err := s.retry(ctx, "list entries", func() error {
		entries = entries[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, document_id, query, response, created_at FROM query_cache WHERE document_id = ? ORDER BY id`,
			documentID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e models.CacheEntry
			if err := rows.Scan(&e.ID, &e.DocumentID, &e.Query, &e.Response, &e.CreatedAt); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	return entries, nil
}

// UpsertSummary implements cache.Store. The replacement is a single statement,
// so concurrent writers never leave a mixed summary behind.
func (s *Store) UpsertSummary(ctx context.Context, documentID, summary string) error {
	err := s.retry(ctx, "upsert summary", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO document_summaries (document_id, summary, created_at) VALUES (?, ?, ?)
			 ON CONFLICT(document_id) DO UPDATE SET summary = excluded.summary, created_at = excluded.created_at`,
			documentID, summary, time.Now().UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("summary upsert: %w", err)
	}
	return nil
}

// GetSummary implements cache.Store.
func (s *Store) GetSummary(ctx context.Context, documentID string) (string, bool, error) {
	var summary string
	found := false
	err := s.retry(ctx, "get summary", func() error {
		err := s.db.QueryRowContext(ctx,
			`SELECT summary FROM document_summaries WHERE document_id = ?`, documentID,
		).Scan(&summary)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			found = false
			return nil
		case err != nil:
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("summary get: %w", err)
	}
	return summary, found, nil
}

// Summary returns the full summary row of a document.
func (s *Store) Summary(ctx context.Context, documentID string) (models.SummaryEntry, bool, error) {
	var e models.SummaryEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, summary, created_at FROM document_summaries WHERE document_id = ?`, documentID,
	).Scan(&e.DocumentID, &e.Summary, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, false, nil
	}
	if err != nil {
		return e, false, fmt.Errorf("summary get: %w", err)
	}
	return e, true, nil
}

// Recent returns the newest entries across all documents.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.CacheEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, query, response, created_at FROM query_cache ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("cache recent: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		var e models.CacheEntry
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Query, &e.Response, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns entry, document and summary counts. Hit and miss counters
// are tracked by the lookup, not the store.
func (s *Store) Stats(ctx context.Context) (models.CacheStats, error) {
	var st models.CacheStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT document_id) FROM query_cache`,
	).Scan(&st.Entries, &st.Documents)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_summaries`).Scan(&st.Summaries); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return st, nil
}

// Count returns the number of entries stored for a document.
func (s *Store) Count(ctx context.Context, documentID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM query_cache WHERE document_id = ?`, documentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Clear removes cached answers and summaries. An empty documentID clears
// everything. Request handling never calls this.
func (s *Store) Clear(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if documentID == "" {
		_, err = tx.ExecContext(ctx, `DELETE FROM query_cache`)
		if err == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM document_summaries`)
		}
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM query_cache WHERE document_id = ?`, documentID)
		if err == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM document_summaries WHERE document_id = ?`, documentID)
		}
	}
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return tx.Commit()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// retry runs fn until it succeeds, fails with a non-busy error or runs out of
// attempts. Exhausted retries are reported as cache.ErrStoreBusy.
func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) {
			return lastErr
		}

		s.log.Warn("cache store busy",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))

		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff << uint(attempt)):
			}
		}
	}
	return fmt.Errorf("%w: %v", cache.ErrStoreBusy, lastErr)
}

func isBusy(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED:
		return true
	}
	return false
}
