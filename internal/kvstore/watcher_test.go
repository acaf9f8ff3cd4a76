package kvstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_ExternalWriteNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.db")
	daemon, err := Open(path, DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	defer daemon.Close()
	cli, err := Open(path, DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	var mu sync.Mutex
	var keys []string
	daemon.OnChanged(func(changes []Change, external bool) {
		if !external {
			return
		}
		mu.Lock()
		for _, c := range changes {
			keys = append(keys, c.Key)
		}
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, daemon, logger)
	time.Sleep(100 * time.Millisecond)

	if err := cli.Set(context.Background(), map[string]json.RawMessage{"#bang#gh": json.RawMessage(`{"bang":"gh"}`)}); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, k := range keys {
			if k == "#bang#gh" {
				return true
			}
		}
		return false
	}, "external write not reported by watcher")
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	db := testDB(t, DefaultLimits)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, db, logger) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
