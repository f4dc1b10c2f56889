package fingerprint

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func writeStorage(t *testing.T, dir string, blob map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(blob)
	if err != nil {
		t.Fatalf("marshal storage: %v", err)
	}
	path := filepath.Join(dir, "storage.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write storage: %v", err)
	}
	return path
}

func TestEnsureBaselineCapturesExistingIdentity(t *testing.T) {
	dir := t.TempDir()
	storage := writeStorage(t, dir, map[string]any{
		"telemetry.machineId":      "abc123",
		"telemetry.devDeviceId":    "11111111-2222-3333-4444-555555555555",
		"storage.serviceMachineId": "66666666-7777-8888-9999-000000000000",
		"unrelated.setting":        true,
	})
	store := NewStore(dir)
	if err := store.EnsureBaseline(storage); err != nil {
		t.Fatalf("EnsureBaseline: %v", err)
	}
	orig, err := store.Get(OriginalID)
	if err != nil {
		t.Fatalf("Get original: %v", err)
	}
	if orig.Profile.MachineID != "abc123" {
		t.Fatalf("machineId = %q, want abc123", orig.Profile.MachineID)
	}
	if orig.Profile.ServiceMachineID != "66666666-7777-8888-9999-000000000000" {
		t.Fatalf("serviceMachineId = %q", orig.Profile.ServiceMachineID)
	}
	// A second call must not replace the baseline.
	if err := os.Remove(storage); err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureBaseline(storage); err != nil {
		t.Fatalf("EnsureBaseline again: %v", err)
	}
	again, _ := store.Get(OriginalID)
	if again.Profile.MachineID != "abc123" {
		t.Fatalf("baseline changed on second ensure")
	}
}

func TestEnsureBaselineGeneratesWhenStorageMissing(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if err := store.EnsureBaseline(filepath.Join(dir, "nope.json")); err != nil {
		t.Fatalf("EnsureBaseline: %v", err)
	}
	orig, err := store.Get(OriginalID)
	if err != nil {
		t.Fatalf("Get original: %v", err)
	}
	if len(orig.Profile.MachineID) != 64 {
		t.Fatalf("machineId length = %d, want 64", len(orig.Profile.MachineID))
	}
	if _, err := uuid.Parse(orig.Profile.ServiceMachineID); err != nil {
		t.Fatalf("generated serviceMachineId not a uuid: %v", err)
	}
}

func TestInvalidServiceMachineIDRegenerated(t *testing.T) {
	dir := t.TempDir()
	storage := writeStorage(t, dir, map[string]any{
		"telemetry.machineId":      "m",
		"storage.serviceMachineId": "definitely-not-a-uuid",
	})
	p, err := CaptureProfile(storage)
	if err != nil {
		t.Fatalf("CaptureProfile: %v", err)
	}
	if _, err := uuid.Parse(p.ServiceMachineID); err != nil {
		t.Fatalf("serviceMachineId %q not repaired: %v", p.ServiceMachineID, err)
	}
}

func newInitializedStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(dir)
	if err := store.EnsureBaseline(filepath.Join(dir, "absent.json")); err != nil {
		t.Fatalf("EnsureBaseline: %v", err)
	}
	return store
}

func TestGenerateRenameSelect(t *testing.T) {
	store := newInitializedStore(t)
	fp, err := store.Generate("work")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := store.Generate("WORK"); err == nil {
		t.Fatal("duplicate name (case-insensitive) accepted")
	}
	if err := store.Rename(fp.ID, "home"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if err := store.SetCurrent(fp.ID); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	cur, err := store.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ID != fp.ID || cur.Name != "home" {
		t.Fatalf("current = %+v", cur)
	}
	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != OriginalID {
		t.Fatalf("list = %+v", list)
	}
}

func TestBaselineImmutable(t *testing.T) {
	store := newInitializedStore(t)
	if err := store.Delete(OriginalID, nil); !errors.Is(err, ErrBaselineImmutable) {
		t.Fatalf("Delete original err = %v", err)
	}
	if err := store.Rename(OriginalID, "custom"); !errors.Is(err, ErrBaselineImmutable) {
		t.Fatalf("Rename original err = %v", err)
	}
}

type recordingRebinder struct {
	from, to string
	err      error
}

func (r *recordingRebinder) ReassignFingerprint(fromID, toID string) error {
	r.from, r.to = fromID, toID
	return r.err
}

func TestDeleteRebindsAndResetsSelection(t *testing.T) {
	store := newInitializedStore(t)
	fp, err := store.Generate("temp")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := store.SetCurrent(fp.ID); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	rb := &recordingRebinder{}
	if err := store.Delete(fp.ID, rb); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rb.from != fp.ID || rb.to != OriginalID {
		t.Fatalf("rebind call = %q -> %q", rb.from, rb.to)
	}
	cur, err := store.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ID != OriginalID {
		t.Fatalf("current after delete = %q, want original", cur.ID)
	}
	if _, err := store.Get(fp.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted fingerprint still present: %v", err)
	}
}

func TestDeleteAbortsWhenRebindFails(t *testing.T) {
	store := newInitializedStore(t)
	fp, err := store.Generate("temp")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rb := &recordingRebinder{err: errors.New("boom")}
	if err := store.Delete(fp.ID, rb); err == nil {
		t.Fatal("Delete succeeded despite rebind failure")
	}
	if _, err := store.Get(fp.ID); err != nil {
		t.Fatalf("fingerprint removed despite rebind failure: %v", err)
	}
}

func TestApplyProfilePreservesOtherKeys(t *testing.T) {
	dir := t.TempDir()
	storage := writeStorage(t, dir, map[string]any{
		"telemetry.machineId": "old",
		"window.state":        "maximized",
	})
	p := GenerateProfile()
	if err := ApplyProfile(storage, p); err != nil {
		t.Fatalf("ApplyProfile: %v", err)
	}
	raw, err := os.ReadFile(storage)
	if err != nil {
		t.Fatal(err)
	}
	var blob map[string]any
	if err := json.Unmarshal(raw, &blob); err != nil {
		t.Fatal(err)
	}
	if blob["telemetry.machineId"] != p.MachineID {
		t.Fatalf("machineId not applied: %v", blob["telemetry.machineId"])
	}
	if blob["window.state"] != "maximized" {
		t.Fatalf("unrelated key lost: %v", blob["window.state"])
	}
}
