// Package kvstore provides the SQLite-backed durable key-value tier with
// browser-sync style quotas and change notifications.
package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	busyTimeout = 5 * time.Second
	// retryDelay separates a write that hit a lock from its single retry.
	retryDelay = 100 * time.Millisecond
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with key-value operations.
type DB struct {
	conn       *sql.DB
	path       string
	limits     Limits
	retryDelay time.Duration

	mu    sync.Mutex
	known map[string]json.RawMessage

	lmu       sync.RWMutex
	listeners []ChangeListener
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string, limits Limits) (*DB, error) {
	return open(path, limits, busyTimeout)
}

func open(path string, limits Limits, busy time.Duration) (*DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, busy.Milliseconds())
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("kvstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("kvstore: apply schema: %w", err)
	}
	db := &DB{conn: conn, path: path, limits: limits, retryDelay: retryDelay}
	known, err := db.GetAll(context.Background())
	if err != nil {
		conn.Close()
		return nil, err
	}
	db.known = known
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Limits returns the configured quotas.
func (db *DB) Limits() Limits {
	return db.limits
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
