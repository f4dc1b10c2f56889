package instance

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return NewStore(root, "codex"), root
}

func TestCreateEmpty(t *testing.T) {
	store, root := newTestStore(t)
	dir := filepath.Join(root, "work-data")
	inst, err := store.Create(CreateSpec{Name: "work", UserDataDir: dir, Mode: InitEmpty}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inst.ID == "" || inst.Name != "work" {
		t.Fatalf("created = %+v", inst)
	}
	if inst.Initialized {
		t.Fatal("empty-mode create reported an initialized data directory")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("data dir not created: %v", err)
	}
	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != inst.ID {
		t.Fatalf("list = %+v", list)
	}
}

func TestCreateRejectsDuplicates(t *testing.T) {
	store, root := newTestStore(t)
	dir := filepath.Join(root, "a")
	if _, err := store.Create(CreateSpec{Name: "work", UserDataDir: dir, Mode: InitEmpty}, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := store.Create(CreateSpec{Name: "WORK", UserDataDir: filepath.Join(root, "b"), Mode: InitEmpty}, "")
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("duplicate name err = %v", err)
	}
	_, err = store.Create(CreateSpec{Name: "other", UserDataDir: dir, Mode: InitEmpty}, "")
	if !errors.Is(err, ErrDuplicateDir) {
		t.Fatalf("duplicate dir err = %v", err)
	}
	list, _ := store.List()
	if len(list) != 1 {
		t.Fatalf("failed creates mutated the store: %d entries", len(list))
	}
}

func TestCreateEmptyRejectsNonEmptyTarget(t *testing.T) {
	store, root := newTestStore(t)
	dir := filepath.Join(root, "busy")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := store.Create(CreateSpec{Name: "busy", UserDataDir: dir, Mode: InitEmpty}, "")
	if !errors.Is(err, ErrTargetNotEmpty) {
		t.Fatalf("err = %v, want ErrTargetNotEmpty", err)
	}
}

func TestCreateCopyFromDefault(t *testing.T) {
	store, root := newTestStore(t)
	src := filepath.Join(root, "default-data")
	if err := os.MkdirAll(filepath.Join(src, "User"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "User", "settings.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(root, "clone")
	inst, err := store.Create(CreateSpec{Name: "clone", UserDataDir: dir, Mode: InitCopy}, src)
	if err != nil {
		t.Fatalf("Create copy: %v", err)
	}
	if !inst.Initialized {
		t.Fatal("copy-mode create did not report an initialized data directory")
	}
	if _, err := os.Stat(filepath.Join(dir, "User", "settings.json")); err != nil {
		t.Fatalf("copied tree missing: %v", err)
	}
}

func TestCreateCopyFromNamedInstance(t *testing.T) {
	store, root := newTestStore(t)
	srcDir := filepath.Join(root, "src-data")
	src, err := store.Create(CreateSpec{Name: "src", UserDataDir: srcDir, Mode: InitEmpty}, "")
	if err != nil {
		t.Fatalf("Create src: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "marker"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(root, "dst-data")
	if _, err := store.Create(CreateSpec{Name: "dst", UserDataDir: dir, Mode: InitCopy, CopySourceID: src.ID}, ""); err != nil {
		t.Fatalf("Create dst: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "marker")); err != nil {
		t.Fatalf("marker not copied: %v", err)
	}
}

func TestCreateCopyMissingSource(t *testing.T) {
	store, root := newTestStore(t)
	_, err := store.Create(CreateSpec{
		Name:        "x",
		UserDataDir: filepath.Join(root, "x"),
		Mode:        InitCopy,
	}, filepath.Join(root, "no-such-default"))
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("err = %v, want ErrSourceMissing", err)
	}
	_, err = store.Create(CreateSpec{
		Name:         "y",
		UserDataDir:  filepath.Join(root, "y"),
		Mode:         InitCopy,
		CopySourceID: "ghost",
	}, "")
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("err = %v, want ErrSourceMissing", err)
	}
}

func TestUpdate(t *testing.T) {
	store, root := newTestStore(t)
	inst, err := store.Create(CreateSpec{Name: "work", UserDataDir: filepath.Join(root, "w"), Mode: InitEmpty}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(CreateSpec{Name: "other", UserDataDir: filepath.Join(root, "o"), Mode: InitEmpty}, ""); err != nil {
		t.Fatalf("Create other: %v", err)
	}
	name := "OTHER"
	if _, err := store.Update(inst.ID, UpdateSpec{Name: &name}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("rename onto taken name: %v", err)
	}
	args := "--disable-gpu"
	bind := "acct-1"
	updated, err := store.Update(inst.ID, UpdateSpec{ExtraArgs: &args, BindAccountID: &bind})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ExtraArgs != args || updated.BindAccountID != bind || updated.Name != "work" {
		t.Fatalf("updated = %+v", updated)
	}
	if _, err := store.Update("ghost", UpdateSpec{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}
}

func TestDeleteMovesDirToTrash(t *testing.T) {
	store, root := newTestStore(t)
	dir := filepath.Join(root, "doomed")
	inst, err := store.Create(CreateSpec{Name: "doomed", UserDataDir: dir, Mode: InitEmpty}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	trash := filepath.Join(root, "trash")
	if err := store.Delete(inst.ID, trash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("data dir still present: %v", err)
	}
	entries, err := os.ReadDir(trash)
	if err != nil || len(entries) != 1 {
		t.Fatalf("trash entries = %v, %v", entries, err)
	}
	if _, err := store.Get(inst.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("entry survived delete: %v", err)
	}
}

func TestDeleteDefaultRefused(t *testing.T) {
	store, root := newTestStore(t)
	if err := store.Delete(DefaultID, filepath.Join(root, "trash")); !errors.Is(err, ErrDefaultImmutable) {
		t.Fatalf("err = %v, want ErrDefaultImmutable", err)
	}
}

func TestPidBookkeeping(t *testing.T) {
	store, root := newTestStore(t)
	inst, err := store.Create(CreateSpec{Name: "work", UserDataDir: filepath.Join(root, "w"), Mode: InitEmpty}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.UpdatePid(inst.ID, 4242); err != nil {
		t.Fatalf("UpdatePid: %v", err)
	}
	if err := store.UpdatePid(DefaultID, 99); err != nil {
		t.Fatalf("UpdatePid default: %v", err)
	}
	got, _ := store.Get(inst.ID)
	if got.LastPid != 4242 || got.LastLaunchedAt == nil {
		t.Fatalf("instance after UpdatePid = %+v", got)
	}
	defaults, _ := store.Defaults()
	if defaults.LastPid != 99 {
		t.Fatalf("default pid = %d", defaults.LastPid)
	}
	if err := store.ClearAllPids(); err != nil {
		t.Fatalf("ClearAllPids: %v", err)
	}
	got, _ = store.Get(inst.ID)
	defaults, _ = store.Defaults()
	if got.LastPid != 0 || defaults.LastPid != 0 {
		t.Fatalf("pids not cleared: %d %d", got.LastPid, defaults.LastPid)
	}
}

func TestDefaultsRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.UpdatePid(DefaultID, 7); err != nil {
		t.Fatalf("UpdatePid: %v", err)
	}
	err := store.SetDefaults(DefaultSettings{BindAccountID: "a1", FollowLocalAccount: true})
	if err != nil {
		t.Fatalf("SetDefaults: %v", err)
	}
	defaults, err := store.Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	if !defaults.FollowLocalAccount || defaults.BindAccountID != "a1" {
		t.Fatalf("defaults = %+v", defaults)
	}
	if defaults.LastPid != 7 {
		t.Fatalf("SetDefaults lost recorded pid: %d", defaults.LastPid)
	}
}

func TestGetByName(t *testing.T) {
	store, root := newTestStore(t)
	inst, err := store.Create(CreateSpec{Name: "Work", UserDataDir: filepath.Join(root, "w"), Mode: InitEmpty}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := store.Get("work")
	if err != nil || got.ID != inst.ID {
		t.Fatalf("Get by name: %+v, %v", got, err)
	}
}
