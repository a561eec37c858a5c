// Package storage persists seen listings in a local SQLite database and
// guards the at-most-once delivery guarantee.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"olxmonitor/internal/domain"
	"olxmonitor/internal/ports"
)

const (
	// Records outlive their last observation by this much.
	retention = 7 * 24 * time.Hour
	// Expired records are purged at most this often.
	cleanupEvery = 7 * 24 * time.Hour

	lastCleanupKey = "last_cleanup"
)

// Store implements ports.ListingStore on a file-backed SQLite database.
// All delivery-state transitions happen under a single mutex so that
// concurrent source scanners cannot race the same link into two sends.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu sync.Mutex
}

var _ ports.ListingStore = (*Store)(nil)

// Open creates or opens the database at path and prepares the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		link TEXT PRIMARY KEY,
		title TEXT,
		ad_id TEXT,
		source TEXT,
		first_seen TIMESTAMP,
		date_published TEXT,
		expires_at TIMESTAMP,
		delivered BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT,
		detail TEXT,
		created_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS listings_delivered_idx ON listings(delivered);
	CREATE INDEX IF NOT EXISTS listings_expires_idx ON listings(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Seed the cleanup marker so the first cadence check has a baseline.
	query, args, err := sq.Insert("settings").
		Columns("key", "value", "updated_at").
		Values(lastCleanupKey, time.Time{}.Format(time.RFC3339), time.Now()).
		Suffix("ON CONFLICT(key) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(query, args...)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether the link has ever been recorded.
func (s *Store) Exists(ctx context.Context, link string) (bool, error) {
	query, args, err := sq.Select("1").From("listings").Where(sq.Eq{"link": link}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

// IsDelivered reports whether a notification went out for the link.
// An absent record counts as not delivered.
func (s *Store) IsDelivered(ctx context.Context, link string) (bool, error) {
	query, args, err := sq.Select("delivered").From("listings").Where(sq.Eq{"link": link}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delivered query: %w", err)
	}

	var delivered bool
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&delivered)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query delivered: %w", err)
	}
	return delivered, nil
}

// InsertIfAbsent records a newly observed listing, or extends the expiry
// of an existing record. First-seen fields are never rewritten.
func (s *Store) InsertIfAbsent(ctx context.Context, rec domain.ListingRecord) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	expiry := now.Add(retention)

	query, args, err := sq.Select("delivered").From("listings").Where(sq.Eq{"link": rec.Link}).ToSql()
	if err != nil {
		return false, false, fmt.Errorf("build lookup: %w", err)
	}

	var delivered bool
	err = tx.QueryRowContext(ctx, query, args...).Scan(&delivered)
	switch {
	case err == nil:
		query, args, err = sq.Update("listings").
			Set("expires_at", expiry).
			Where(sq.Eq{"link": rec.Link}).
			ToSql()
		if err != nil {
			return false, false, fmt.Errorf("build expiry update: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return false, false, fmt.Errorf("extend expiry: %w", err)
		}
		return false, delivered, tx.Commit()

	case errors.Is(err, sql.ErrNoRows):
		query, args, err = sq.Insert("listings").
			Columns("link", "title", "ad_id", "source", "first_seen", "date_published", "expires_at", "delivered").
			Values(rec.Link, rec.Title, rec.AdID, rec.Source, now, rec.RawDate, expiry, false).
			ToSql()
		if err != nil {
			return false, false, fmt.Errorf("build insert: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return false, false, fmt.Errorf("insert listing: %w", err)
		}
		return true, false, tx.Commit()

	default:
		return false, false, fmt.Errorf("lookup listing: %w", err)
	}
}

// MarkDelivered flips the delivered flag as a test-and-set: the WHERE
// clause only matches an undelivered row, so of two concurrent callers
// exactly one observes the flip and wins the right to send.
func (s *Store) MarkDelivered(ctx context.Context, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args, err := sq.Update("listings").
		Set("delivered", true).
		Where(sq.Eq{"link": link, "delivered": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delivered update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark delivered result: %w", err)
	}
	return affected > 0, nil
}

// ListUndelivered returns the stored backlog of unsent listings.
func (s *Store) ListUndelivered(ctx context.Context) ([]domain.ListingRecord, error) {
	query, args, err := sq.Select("link", "title", "ad_id", "source", "date_published", "first_seen", "expires_at").
		From("listings").
		Where(sq.Eq{"delivered": false}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build undelivered query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query undelivered: %w", err)
	}
	defer rows.Close()

	var records []domain.ListingRecord
	for rows.Next() {
		var rec domain.ListingRecord
		if err := rows.Scan(&rec.Link, &rec.Title, &rec.AdID, &rec.Source, &rec.RawDate, &rec.FirstSeen, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan undelivered: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PurgeExpired removes records past their expiry and compacts the file.
// It runs at most once per cleanupEvery, tracked in the settings table,
// and returns the number of deleted rows (0 when skipped).
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.lastCleanup(ctx)
	if err != nil {
		return 0, err
	}
	if now.Sub(last) < cleanupEvery {
		return 0, nil
	}

	query, args, err := sq.Delete("listings").Where(sq.Lt{"expires_at": now}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	deleted, _ := res.RowsAffected()

	query, args, err = sq.Update("settings").
		Set("value", now.Format(time.RFC3339)).
		Set("updated_at", now).
		Where(sq.Eq{"key": lastCleanupKey}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup marker: %w", err)
	}
	if _, err = s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("record cleanup time: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		// The deletion already succeeded; compaction can wait.
		if s.logger != nil {
			s.logger.Warn("vacuum failed", "error", err)
		}
	}

	if s.logger != nil {
		s.logger.Info("cleanup finished", "deleted", deleted)
	}
	return int(deleted), nil
}

func (s *Store) lastCleanup(ctx context.Context) (time.Time, error) {
	query, args, err := sq.Select("value").From("settings").Where(sq.Eq{"key": lastCleanupKey}).ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build cleanup lookup: %w", err)
	}

	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query cleanup time: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, nil
	}
	return parsed, nil
}

// Stats summarizes the store for operator commands.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	stats := domain.StoreStats{BySource: map[string]int{}}

	if err := s.countRow(ctx, sq.Select("COUNT(*)").From("listings"), &stats.TotalListings); err != nil {
		return stats, err
	}
	if err := s.countRow(ctx,
		sq.Select("COUNT(*)").From("listings").Where(sq.Gt{"first_seen": time.Now().Add(-24 * time.Hour)}),
		&stats.Last24h); err != nil {
		return stats, err
	}
	if err := s.countRow(ctx,
		sq.Select("COUNT(*)").From("listings").Where(sq.Eq{"delivered": false}),
		&stats.Undelivered); err != nil {
		return stats, err
	}

	query, args, err := sq.Select("source", "COUNT(*)").From("listings").GroupBy("source").ToSql()
	if err != nil {
		return stats, fmt.Errorf("build source stats: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return stats, fmt.Errorf("query source stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return stats, fmt.Errorf("scan source stats: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	last, err := s.lastCleanup(ctx)
	if err != nil {
		return stats, err
	}
	if last.IsZero() {
		stats.LastCleanup = "never"
	} else {
		stats.LastCleanup = last.Format(time.RFC3339)
	}
	return stats, nil
}

func (s *Store) countRow(ctx context.Context, builder sq.SelectBuilder, dst *int) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(dst); err != nil {
		return fmt.Errorf("query count: %w", err)
	}
	return nil
}

// LogActivity appends to the audit trail. Best effort.
func (s *Store) LogActivity(ctx context.Context, action, detail string) {
	query, args, err := sq.Insert("activity_log").
		Columns("action", "detail", "created_at").
		Values(action, detail, time.Now()).
		ToSql()
	if err == nil {
		_, err = s.db.ExecContext(ctx, query, args...)
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("activity log write failed", "action", action, "error", err)
	}
}
