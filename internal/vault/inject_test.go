package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"agent-switcher/internal/kvstore"
)

func seedStateDB(t *testing.T, dataRoot string, codec *Codec, sessions []Session, scheme Scheme) {
	t.Helper()
	dbPath := StateDBPath(dataRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	db, err := kvstore.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if sessions != nil {
		cell, err := codec.EncryptSessions(sessions, scheme)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if err := db.Put(SessionsCellKey, kvstore.EncodeBuffer(cell)); err != nil {
			t.Fatalf("put: %v", err)
		}
	} else {
		// Touch the database so it exists with no session cell.
		if err := db.Put("__boot__", []byte("1")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
}

func readSessions(t *testing.T, dataRoot string, codec *Codec) ([]Session, Scheme) {
	t.Helper()
	db, err := kvstore.Open(StateDBPath(dataRoot))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	raw, ok, err := db.Get(SessionsCellKey)
	if err != nil || !ok {
		t.Fatalf("get cell: ok=%v err=%v", ok, err)
	}
	cell, err := kvstore.DecodeBuffer(raw)
	if err != nil {
		t.Fatalf("decode buffer: %v", err)
	}
	sessions, scheme, err := codec.DecryptSessions(cell)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	return sessions, scheme
}

func TestInjectIntoExistingVaultKeepsScheme(t *testing.T) {
	codec := testCodec("linux")
	dataRoot := t.TempDir()
	seedStateDB(t, dataRoot, codec, sampleSessions(), SchemeCBCBus)

	inj := &Injector{Codec: codec}
	if err := inj.Inject(dataRoot, "new@example.com", "AT-new", "user-new"); err != nil {
		t.Fatalf("inject: %v", err)
	}

	sessions, scheme := readSessions(t, dataRoot, codec)
	if scheme != SchemeCBCBus {
		t.Errorf("scheme = %v, want SchemeCBCBus", scheme)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %+v", sessions)
	}
	if sessions[0].AccessToken != "AT-new" {
		t.Errorf("session not replaced: %+v", sessions[0])
	}
	if sessions[1].Account.ID != "user-other" {
		t.Errorf("bystander session lost: %+v", sessions[1])
	}
}

func TestInjectIntoEmptyVault(t *testing.T) {
	codec := testCodec("windows")
	dataRoot := t.TempDir()
	seedStateDB(t, dataRoot, codec, nil, 0)

	inj := &Injector{Codec: codec}
	if err := inj.Inject(dataRoot, "a@example.com", "AT", "uid"); err != nil {
		t.Fatalf("inject: %v", err)
	}

	sessions, scheme := readSessions(t, dataRoot, codec)
	if scheme != SchemeGCM {
		t.Errorf("scheme = %v, want platform default SchemeGCM", scheme)
	}
	if len(sessions) != 1 || sessions[0].AccessToken != "AT" {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestInjectBlockedByRunningTarget(t *testing.T) {
	codec := testCodec("linux")
	dataRoot := t.TempDir()
	seedStateDB(t, dataRoot, codec, nil, 0)

	inj := &Injector{
		Codec:     codec,
		IsRunning: func(string) (int32, bool) { return 4242, true },
	}
	err := inj.Inject(dataRoot, "a@example.com", "AT", "uid")
	if !errors.Is(err, ErrTargetLocked) {
		t.Fatalf("expected ErrTargetLocked, got %v", err)
	}
}

func TestInjectMissingDatabase(t *testing.T) {
	codec := testCodec("linux")
	inj := &Injector{Codec: codec}
	if err := inj.Inject(t.TempDir(), "a@example.com", "AT", "uid"); err == nil {
		t.Fatal("expected error for absent state database")
	}
}

func TestInjectMalformedCellIsNotOverwritten(t *testing.T) {
	codec := testCodec("linux")
	dataRoot := t.TempDir()
	seedStateDB(t, dataRoot, codec, nil, 0)

	db, err := kvstore.Open(StateDBPath(dataRoot))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	garbage := kvstore.EncodeBuffer([]byte("not a versioned cell"))
	if err := db.Put(SessionsCellKey, garbage); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = db.Close()

	inj := &Injector{Codec: codec}
	if err := inj.Inject(dataRoot, "a@example.com", "AT", "uid"); !errors.Is(err, ErrMalformedVault) {
		t.Fatalf("expected ErrMalformedVault, got %v", err)
	}

	// Cell must survive untouched.
	db, err = kvstore.Open(StateDBPath(dataRoot))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	raw, ok, err := db.Get(SessionsCellKey)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(raw) != string(garbage) {
		t.Fatal("malformed cell was overwritten")
	}
}
