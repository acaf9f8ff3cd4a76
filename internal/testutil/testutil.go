// Package testutil provides shared test helpers for durable stores, backup
// directories and loggers.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/bangd/internal/kvstore"
	"github.com/starford/bangd/internal/storage"
)

// TestDB creates a temporary durable store with the default quotas that is
// automatically closed.
func TestDB(t *testing.T) *kvstore.DB {
	t.Helper()
	return TestDBWithLimits(t, kvstore.DefaultLimits)
}

// TestDBWithLimits is TestDB with custom quotas.
func TestDBWithLimits(t *testing.T, limits kvstore.Limits) *kvstore.DB {
	t.Helper()
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "bangd-test.db"), limits)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestBackups creates a temporary backup directory with a storage.FS.
func TestBackups(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
