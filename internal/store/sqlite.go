package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

var (
	// ErrStoreUnavailable is returned when no worker is attached or it has been closed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSaveFailed wraps rejected writes (constraint violations, I/O failures).
	ErrSaveFailed = errors.New("save failed")
	// ErrNotFound is returned by lookups that were expected to succeed.
	ErrNotFound = errors.New("not found")
	// ErrSlugTaken is returned when a live term in the same scope already holds a slug.
	ErrSlugTaken = errors.New("slug already taken")
)

// Store owns the SQLite database. Reads and writes go through a Worker.
type Store struct {
	db     *sql.DB
	writes atomic.Int64
}

// New opens (or creates) the database at dbPath and initializes the schema
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The worker is the only user; a single connection keeps every unit of
	// work on the same database handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Writes returns the number of committed mutating statements.
func (s *Store) Writes() int64 {
	return s.writes.Load()
}

// saveError classifies a failed write.
func saveError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: %w", op, ErrSlugTaken)
	}
	return fmt.Errorf("%w: %s: %w", ErrSaveFailed, op, err)
}
