package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/bangd/internal/apperr"
)

func testDB(t *testing.T, limits Limits) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "bangd-test.db"), limits)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestSetGetRemove(t *testing.T) {
	db := testDB(t, DefaultLimits)
	ctx := context.Background()

	if err := db.Set(ctx, map[string]json.RawMessage{"#symbol#": raw(`"!"`), "#bang#w": raw(`{"bang":"w"}`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := db.Get(ctx, "#symbol#", "#missing#")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || string(got["#symbol#"]) != `"!"` {
		t.Errorf("Get = %v", got)
	}

	if err := db.Remove(ctx, "#bang#w"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	all, _ := db.GetAll(ctx)
	if _, ok := all["#bang#w"]; ok {
		t.Error("removed key still present")
	}
}

func TestItemQuota(t *testing.T) {
	db := testDB(t, Limits{MaxItems: 2, MaxBytes: 1 << 20})
	ctx := context.Background()

	_ = db.Set(ctx, map[string]json.RawMessage{"a": raw(`1`), "b": raw(`2`)})
	err := db.Set(ctx, map[string]json.RawMessage{"c": raw(`3`)})
	if !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	all, _ := db.GetAll(ctx)
	if len(all) != 2 {
		t.Errorf("items = %d, want 2 (failed write must not persist)", len(all))
	}

	// Replacing a value in the same batch as a removal stays within quota.
	if err := db.Apply(ctx, Batch{Set: map[string]json.RawMessage{"c": raw(`3`)}, Remove: []string{"a"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestByteQuota(t *testing.T) {
	db := testDB(t, Limits{MaxItems: 10, MaxBytes: 20})
	err := db.Set(context.Background(), map[string]json.RawMessage{"key": raw(`"` + strings.Repeat("x", 30) + `"`)})
	if !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestPerItemQuota(t *testing.T) {
	db := testDB(t, Limits{MaxItems: 10, MaxBytes: 1 << 20, MaxItemBytes: 10})
	err := db.Set(context.Background(), map[string]json.RawMessage{"key": raw(`"0123456789"`)})
	if !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	db := testDB(t, DefaultLimits)
	err := db.Set(context.Background(), map[string]json.RawMessage{"k": raw(`{not json`)})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestUsage(t *testing.T) {
	db := testDB(t, DefaultLimits)
	ctx := context.Background()
	_ = db.Set(ctx, map[string]json.RawMessage{"ab": raw(`"cd"`)})
	u, err := db.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Items != 1 || u.Bytes != len("ab")+len(`"cd"`) {
		t.Errorf("usage = %+v", u)
	}
}

func TestOnChangedReportsOldAndNew(t *testing.T) {
	db := testDB(t, DefaultLimits)
	ctx := context.Background()

	var got []Change
	db.OnChanged(func(changes []Change, external bool) {
		if external {
			t.Error("local write reported as external")
		}
		got = append(got, changes...)
	})

	_ = db.Set(ctx, map[string]json.RawMessage{"k": raw(`1`)})
	_ = db.Set(ctx, map[string]json.RawMessage{"k": raw(`1`)}) // unchanged: no event
	_ = db.Set(ctx, map[string]json.RawMessage{"k": raw(`2`)})
	_ = db.Remove(ctx, "k")

	if len(got) != 3 {
		t.Fatalf("changes = %d, want 3", len(got))
	}
	if got[0].OldValue != nil || string(got[0].NewValue) != "1" {
		t.Errorf("create = %+v", got[0])
	}
	if string(got[1].OldValue) != "1" || string(got[1].NewValue) != "2" {
		t.Errorf("update = %+v", got[1])
	}
	if string(got[2].OldValue) != "2" || got[2].NewValue != nil {
		t.Errorf("remove = %+v", got[2])
	}
}

func TestReconcileDetectsOtherWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := Open(path, DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Open(path, DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := b.Set(ctx, map[string]json.RawMessage{"#bang#x": raw(`{}`)}); err != nil {
		t.Fatal(err)
	}

	var external bool
	a.OnChanged(func(_ []Change, ext bool) { external = ext })

	changes, err := a.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(changes) != 1 || changes[0].Key != "#bang#x" {
		t.Fatalf("changes = %+v", changes)
	}
	if !external {
		t.Error("expected external flag")
	}

	// A second pass finds nothing new.
	changes, _ = a.Reconcile(ctx)
	if len(changes) != 0 {
		t.Errorf("second reconcile = %+v", changes)
	}
}

// holdWriteLock takes the database write lock from a separate connection and
// returns a func that releases it.
func holdWriteLock(t *testing.T, path string) func() {
	t.Helper()
	other, err := open(path, DefaultLimits, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c, err := other.conn.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		t.Fatal(err)
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			c.ExecContext(ctx, "ROLLBACK")
			c.Close()
			other.Close()
		})
	}
	t.Cleanup(release)
	return release
}

func TestApplyRetriesLockedWriteOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.db")
	db, err := open(path, DefaultLimits, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.retryDelay = 400 * time.Millisecond

	release := holdWriteLock(t, path)
	time.AfterFunc(150*time.Millisecond, release)

	ctx := context.Background()
	if err := db.Set(ctx, map[string]json.RawMessage{"#symbol#": raw(`"!"`)}); err != nil {
		t.Fatalf("write after the lock is released should succeed on retry: %v", err)
	}
	got, err := db.Get(ctx, "#symbol#")
	if err != nil {
		t.Fatal(err)
	}
	if string(got["#symbol#"]) != `"!"` {
		t.Errorf("stored = %s", got["#symbol#"])
	}
}

func TestApplyGivesUpAfterOneRetry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.db")
	db, err := open(path, DefaultLimits, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.retryDelay = 10 * time.Millisecond

	var notified bool
	db.OnChanged(func([]Change, bool) { notified = true })

	holdWriteLock(t, path)
	err = db.Set(context.Background(), map[string]json.RawMessage{"#symbol#": raw(`"!"`)})
	if !transient(err) {
		t.Fatalf("err = %v, want a busy/locked error", err)
	}
	if notified {
		t.Error("listeners must not fire for a failed write")
	}
}

func TestQuotaErrorsAreNotRetried(t *testing.T) {
	err := testDB(t, Limits{MaxItems: 1}).Set(context.Background(), map[string]json.RawMessage{
		"a": raw(`1`),
		"b": raw(`2`),
	})
	if !errors.Is(err, apperr.ErrQuotaExceeded) || transient(err) {
		t.Fatalf("err = %v, want a non-transient quota error", err)
	}
}
