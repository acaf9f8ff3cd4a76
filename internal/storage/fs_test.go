package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/bangd/internal/apperr"
)

func newFS(t *testing.T) (string, *FS) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "backups")
	f, err := NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, f
}

func TestNewFS_CreatesDir(t *testing.T) {
	dir, f := newFS(t)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("backup dir not created: %v", err)
	}
	if f.Root() != dir {
		t.Errorf("root = %q, want %q", f.Root(), dir)
	}
}

func TestNewFS_RejectsFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFS(p); err == nil {
		t.Fatal("expected error for a file root")
	}
}

func TestWriteReadDelete(t *testing.T) {
	_, f := newFS(t)
	if err := f.Write("a.json", []byte(`{"x":1}`)); err != nil {
		t.Fatal(err)
	}
	data, err := f.Read("a.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"x":1}` {
		t.Errorf("read %q", data)
	}
	if err := f.Delete("a.json"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Read("a.json"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := f.Delete("a.json"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir, f := newFS(t)
	if err := f.Write("a.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only a.json, got %d entries", len(entries))
	}
}

func TestInvalidNames(t *testing.T) {
	_, f := newFS(t)
	for _, name := range []string{"", "../x.json", "sub/x.json", ".hidden.json", "x.txt", `a\b.json`} {
		if err := f.Write(name, []byte("{}")); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("Write(%q) = %v, want ErrInvalid", name, err)
		}
	}
}

func TestList(t *testing.T) {
	dir, f := newFS(t)
	for _, n := range []string{"b.json", "a.json"} {
		if err := f.Write(n, []byte(n)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := f.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	for _, file := range files {
		if file.Checksum == "" || file.Size == 0 {
			t.Errorf("incomplete metadata %+v", file)
		}
	}
}
