package kvstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the directory holding the database and
// reconciles the in-process view whenever the database or its WAL file is
// written. Writes made by this process reconcile to an empty diff; writes
// made by another process (e.g. the CLI while the daemon runs) reach the
// registered listeners as external changes. It blocks until ctx is cancelled.
func Watch(ctx context.Context, db *DB, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(db.Path())
	if err != nil {
		return err
	}
	dir, base := filepath.Dir(abs), filepath.Base(abs)
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("path", abs))

	// reconcileTimer debounces bursts of writes (db + wal + shm).
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			changes, err := db.Reconcile(ctx)
			if err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			if len(changes) > 0 {
				logger.Debug("watcher: external changes", slog.Int("count", len(changes)))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
