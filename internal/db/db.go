package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultFileName is the database file created inside the data directory
const DefaultFileName = "offsync.db"

var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyResolved is returned when resolving a settled conflict.
	ErrAlreadyResolved = errors.New("already resolved")
)

// DB wraps the database connection
type DB struct {
	conn     *sql.DB
	path     string
	lockPath string // empty when the connection was injected
}

// DefaultPath returns the database path inside dir
func DefaultPath(dir string) string {
	return filepath.Join(dir, DefaultFileName)
}

// Open opens (creating if needed) the database at path and runs pending migrations
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The pragmas below are per connection
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout as fallback protection (500ms, matches lock timeout)
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// FULL: a mutation is acknowledged only once it is on disk
	if _, err := conn.Exec("PRAGMA synchronous=FULL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}

	db := &DB{conn: conn, path: path, lockPath: path + ".lock"}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// FromConn wraps an already-open connection (any sqlite driver), creating the
// schema if needed. No cross-process write lock is taken for injected connections.
func FromConn(conn *sql.DB) (*DB, error) {
	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) init() error {
	return db.withWriteLock(func() error {
		if _, err := db.conn.Exec(schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := db.runMigrationsInternal(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

// Close closes the database
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path, or "" for injected connections
func (db *DB) Path() string {
	return db.path
}

// Conn returns the underlying *sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// withWriteLock executes fn while holding an exclusive write lock.
// This prevents concurrent writes from multiple processes (e.g. `offsync add`
// while `offsync run` is draining).
func (db *DB) withWriteLock(fn func() error) error {
	if db.lockPath == "" {
		return fn()
	}
	l, err := lockFile(db.lockPath, lockTimeout)
	if err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// LockDrain takes the cross-process drain lock, a sidecar of the database
// file, waiting up to wait. While another process holds it the error wraps
// ErrLockTimeout. Injected connections have no file and always succeed.
func (db *DB) LockDrain(wait time.Duration) (release func(), err error) {
	if db.path == "" {
		return func() {}, nil
	}
	l, err := lockFile(db.path+".drain", wait)
	if err != nil {
		return nil, err
	}
	return l.Unlock, nil
}

// timeLayout is fixed-width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTimestamp tries common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339Nano, Value: s}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTimestamp(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
