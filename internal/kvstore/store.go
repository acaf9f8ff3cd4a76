package kvstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/bangd/internal/apperr"
)

// Get returns the stored values for keys. Missing keys are absent from the
// result.
func (db *DB) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		var v string
		err := db.conn.QueryRowContext(ctx, `SELECT value FROM items WHERE key = ?`, k).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("kvstore: get %s: %w", k, err)
		}
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

// GetAll returns every stored item.
func (db *DB) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM items`)
	if err != nil {
		return nil, fmt.Errorf("kvstore: get all: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}

// Set writes items in one transaction.
func (db *DB) Set(ctx context.Context, items map[string]json.RawMessage) error {
	return db.Apply(ctx, Batch{Set: items})
}

// Remove deletes keys in one transaction. Unknown keys are ignored.
func (db *DB) Remove(ctx context.Context, keys ...string) error {
	return db.Apply(ctx, Batch{Remove: keys})
}

// Apply commits removals and writes atomically. The quotas are checked against
// the state the batch would produce; if any is exceeded nothing is written and
// apperr.ErrQuotaExceeded is returned. A write that fails because the
// database is busy or locked is retried once.
func (db *DB) Apply(ctx context.Context, b Batch) error {
	if len(b.Set) == 0 && len(b.Remove) == 0 {
		return nil
	}
	for k, v := range b.Set {
		if !json.Valid(v) {
			return fmt.Errorf("kvstore: value for %s is not valid JSON: %w", k, apperr.ErrInvalid)
		}
		if db.limits.MaxItemBytes > 0 && len(k)+len(v) > db.limits.MaxItemBytes {
			return fmt.Errorf("kvstore: item %s is %d bytes (limit %d): %w",
				k, len(k)+len(v), db.limits.MaxItemBytes, apperr.ErrQuotaExceeded)
		}
	}

	db.mu.Lock()
	changes, err := db.applyLocked(ctx, b)
	if transient(err) {
		// Another process held the write lock past the busy timeout.
		select {
		case <-ctx.Done():
		case <-time.After(db.retryDelay):
			changes, err = db.applyLocked(ctx, b)
		}
	}
	if err == nil {
		for _, c := range changes {
			if c.NewValue == nil {
				delete(db.known, c.Key)
			} else {
				db.known[c.Key] = c.NewValue
			}
		}
	}
	db.mu.Unlock()
	if err != nil {
		return err
	}

	db.notify(changes, false)
	return nil
}

func (db *DB) applyLocked(ctx context.Context, b Batch) ([]Change, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var changes []Change
	for _, k := range b.Remove {
		if _, ok := b.Set[k]; ok {
			continue
		}
		old, err := getTx(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		if old == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, k); err != nil {
			return nil, fmt.Errorf("kvstore: delete %s: %w", k, err)
		}
		changes = append(changes, Change{Key: k, OldValue: old})
	}

	now := time.Now().UTC()
	for k, v := range b.Set {
		old, err := getTx(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		if old != nil && bytes.Equal(old, v) {
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value      = excluded.value,
				updated_at = excluded.updated_at
		`, k, string(v), now)
		if err != nil {
			return nil, fmt.Errorf("kvstore: upsert %s: %w", k, err)
		}
		changes = append(changes, Change{Key: k, OldValue: old, NewValue: v})
	}

	u, err := usageQuery(ctx, tx)
	if err != nil {
		return nil, err
	}
	if db.limits.MaxItems > 0 && u.Items > db.limits.MaxItems {
		return nil, fmt.Errorf("kvstore: %d items (limit %d): %w", u.Items, db.limits.MaxItems, apperr.ErrQuotaExceeded)
	}
	if db.limits.MaxBytes > 0 && u.Bytes > db.limits.MaxBytes {
		return nil, fmt.Errorf("kvstore: %d bytes (limit %d): %w", u.Bytes, db.limits.MaxBytes, apperr.ErrQuotaExceeded)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("kvstore: commit: %w", err)
	}
	return changes, nil
}

// Usage returns the number of items and bytes in use. Bytes are counted as
// key length plus the length of the JSON-encoded value.
func (db *DB) Usage(ctx context.Context) (Usage, error) {
	return usageQuery(ctx, db.conn)
}

// OnChanged registers a listener for committed changes.
func (db *DB) OnChanged(l ChangeListener) {
	db.lmu.Lock()
	db.listeners = append(db.listeners, l)
	db.lmu.Unlock()
}

// Reconcile reloads every item and diffs it against the last state this
// process committed or observed. Differences are reported to listeners as
// external changes. It returns the changes found.
func (db *DB) Reconcile(ctx context.Context) ([]Change, error) {
	db.mu.Lock()
	current, err := db.GetAll(ctx)
	if err != nil {
		db.mu.Unlock()
		return nil, err
	}
	var changes []Change
	for k, old := range db.known {
		if _, ok := current[k]; !ok {
			changes = append(changes, Change{Key: k, OldValue: old})
		}
	}
	for k, v := range current {
		old, ok := db.known[k]
		if ok && bytes.Equal(old, v) {
			continue
		}
		changes = append(changes, Change{Key: k, OldValue: old, NewValue: v})
	}
	db.known = current
	db.mu.Unlock()

	if len(changes) > 0 {
		db.notify(changes, true)
	}
	return changes, nil
}

func (db *DB) notify(changes []Change, external bool) {
	if len(changes) == 0 {
		return
	}
	db.lmu.RLock()
	ls := append([]ChangeListener(nil), db.listeners...)
	db.lmu.RUnlock()
	for _, l := range ls {
		l(changes, external)
	}
}

// transient reports whether err is a lock conflict worth retrying.
func transient(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTx(ctx context.Context, q queryer, key string) (json.RawMessage, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM items WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return json.RawMessage(v), nil
}

func usageQuery(ctx context.Context, q queryer) (Usage, error) {
	var u Usage
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(length(CAST(key AS BLOB)) + length(CAST(value AS BLOB))), 0)
		FROM items
	`).Scan(&u.Items, &u.Bytes)
	if err != nil {
		return Usage{}, fmt.Errorf("kvstore: usage: %w", err)
	}
	return u, nil
}
