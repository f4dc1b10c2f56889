package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "store.json")
	in := map[string]any{"name": "work", "pid": float64(42)}

	if err := WriteJSONAtomic(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out map[string]any
	if err := ReadJSONFile(path, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out["name"] != "work" || out["pid"] != float64(42) {
		t.Fatalf("unexpected round trip: %+v", out)
	}
}

func TestReadJSONFileReportsCorruptionWithoutRewriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var out map[string]any
	err := ReadJSONFile(path, &out)
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
	if corrupt.Path != path {
		t.Errorf("path = %q, want %q", corrupt.Path, path)
	}

	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("reread: %v", readErr)
	}
	if string(raw) != "{not json" {
		t.Fatalf("corrupt file was rewritten: %q", raw)
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("top"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "b.txt"), []byte("deep"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "copy")
	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "nested", "b.txt"))
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(got) != "deep" {
		t.Fatalf("copied content = %q, want %q", got, "deep")
	}
}

func TestDirIsEmpty(t *testing.T) {
	dir := t.TempDir()
	empty, err := DirIsEmpty(dir)
	if err != nil || !empty {
		t.Fatalf("fresh dir: empty=%v err=%v", empty, err)
	}

	empty, err = DirIsEmpty(filepath.Join(dir, "missing"))
	if err != nil || !empty {
		t.Fatalf("missing dir: empty=%v err=%v", empty, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "x"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	empty, err = DirIsEmpty(dir)
	if err != nil || empty {
		t.Fatalf("populated dir: empty=%v err=%v", empty, err)
	}
}

func TestMoveToTrashKeepsContent(t *testing.T) {
	base := t.TempDir()
	victim := filepath.Join(base, "instance-data")
	if err := os.MkdirAll(victim, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(victim, "keep.txt"), []byte("keep"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	dest, err := MoveToTrash(victim, filepath.Join(base, "trash"))
	if err != nil {
		t.Fatalf("trash: %v", err)
	}
	if _, err := os.Stat(victim); !os.IsNotExist(err) {
		t.Fatalf("origin still present: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "keep.txt"))
	if err != nil || string(got) != "keep" {
		t.Fatalf("trashed content lost: %q %v", got, err)
	}
}

func TestAcquireLockConflicts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "store.lock")

	lock, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Releasing twice is harmless.
	if err := lock.Release(); err != nil {
		t.Fatalf("double release: %v", err)
	}
}
