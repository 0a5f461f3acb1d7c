// Package store persists allocation records so that identities keep
// resolving to the same workspace directory across process restarts, and so
// legacy-scheme identities survive upgrades without a path change.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/scheme"
)

// SQLiteStore implements allocation-record persistence using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and if necessary initializes) the store.
// Use ":memory:" for an in-memory database, or a file path for persistence.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and sidesteps
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS allocations (
		full_name TEXT PRIMARY KEY,
		scheme TEXT NOT NULL,
		legacy_index INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schemaSQL)
	return err
}

// Get returns the record for id, if one exists.
func (s *SQLiteStore) Get(ctx context.Context, id identity.Identity) (scheme.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT full_name, scheme, legacy_index, created_at FROM allocations WHERE full_name = ?",
		id.FullName(),
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return scheme.Record{}, false, nil
	}
	if err != nil {
		return scheme.Record{}, false, fmt.Errorf("query allocation: %w", err)
	}
	return rec, true, nil
}

// Put inserts or replaces the record for its identity.
func (s *SQLiteStore) Put(ctx context.Context, rec scheme.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO allocations (full_name, scheme, legacy_index, created_at) VALUES (?, ?, ?, ?)",
		rec.Identity.FullName(), string(rec.Kind), rec.LegacyIndex, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

// Delete removes the record for id. Deleting an absent record is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM allocations WHERE full_name = ?", id.FullName())
	if err != nil {
		return fmt.Errorf("delete allocation: %w", err)
	}
	return nil
}

// List returns every allocation record, ordered by full name. Used by the
// orphan sweep to build the set of directories that are still owned.
func (s *SQLiteStore) List(ctx context.Context) ([]scheme.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT full_name, scheme, legacy_index, created_at FROM allocations ORDER BY full_name")
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	var records []scheme.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (scheme.Record, error) {
	var (
		fullName    string
		kind        string
		legacyIndex int
		createdUnix int64
	)
	if err := row.Scan(&fullName, &kind, &legacyIndex, &createdUnix); err != nil {
		return scheme.Record{}, err
	}

	id, err := identity.Parse(fullName)
	if err != nil {
		return scheme.Record{}, fmt.Errorf("stored full name %q: %w", fullName, err)
	}
	return scheme.Record{
		Identity:    id,
		Kind:        scheme.Kind(kind),
		LegacyIndex: legacyIndex,
		CreatedAt:   time.Unix(createdUnix, 0),
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
