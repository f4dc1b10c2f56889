package kvstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.vscdb"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGetMissingCell(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.Get("absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected missing cell")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	want := []byte{0x76, 0x31, 0x30, 0x00, 0xff}

	if err := db.Put("aide/authRecord", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := db.Get("aide/authRecord")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("value = %x, want %x", got, want)
	}

	// Overwrite replaces in place.
	if err := db.Put("aide/authRecord", []byte("new")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _, _ = db.Get("aide/authRecord")
	if string(got) != "new" {
		t.Fatalf("value after overwrite = %q", got)
	}
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)
	if err := db.Put("k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := db.Get("k"); ok {
		t.Fatal("cell survived delete")
	}
}

func TestBufferCodec(t *testing.T) {
	raw := []byte{0, 1, 127, 255}
	encoded := EncodeBuffer(raw)

	decoded, err := DecodeBuffer(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatalf("round trip = %v, want %v", decoded, raw)
	}
}

func TestDecodeBufferRejectsWrongShape(t *testing.T) {
	if _, err := DecodeBuffer([]byte(`{"type":"NotBuffer","data":[1]}`)); err == nil {
		t.Fatal("expected type error")
	}
	if _, err := DecodeBuffer([]byte(`{"type":"Buffer","data":[300]}`)); err == nil {
		t.Fatal("expected range error")
	}
	if _, err := DecodeBuffer([]byte(`[]`)); err == nil {
		t.Fatal("expected parse error")
	}
}
