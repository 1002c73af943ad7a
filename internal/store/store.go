package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

// ErrSimilarityUnavailable means the backend cannot run vector similarity
// (for Postgres: the match_assets function is not installed).
var ErrSimilarityUnavailable = errors.New("vector similarity function unavailable")

// Store is the SQLite-backed relational store for assets, profiles,
// staging items and vault items.
type Store struct {
	db   *sql.DB
	Path string
	now  func() time.Time
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, Path: path, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sql.DB for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, havenerr.ErrNotFound)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
