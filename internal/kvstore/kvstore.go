// Package kvstore reads and writes cells of the ItemTable key-value table
// that both target application families keep inside their state database
// (state.vscdb). Only single-cell get/put is supported; the rest of the
// database is never touched.
package kvstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps one open state database.
type DB struct {
	conn *sql.DB
}

// Open opens the state database at path. The busy timeout keeps short
// overlaps with the host application from surfacing as hard errors.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Get returns the value stored under key, or ok=false when the cell is
// absent or the table itself does not exist yet.
func (db *DB) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := db.conn.QueryRow(`SELECT value FROM ItemTable WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		if tableMissing(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cell %q: %w", key, err)
	}
	return value, true, nil
}

// Put upserts one cell, creating the table when the database is fresh.
func (db *DB) Put(key string, value []byte) error {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS ItemTable (key TEXT PRIMARY KEY, value BLOB)`); err != nil {
		return fmt.Errorf("ensure ItemTable: %w", err)
	}
	if _, err := db.conn.Exec(`INSERT OR REPLACE INTO ItemTable (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("write cell %q: %w", key, err)
	}
	return nil
}

// Delete removes one cell. Missing cells are not an error.
func (db *DB) Delete(key string) error {
	_, err := db.conn.Exec(`DELETE FROM ItemTable WHERE key = ?`, key)
	if err != nil && !tableMissing(err) {
		return fmt.Errorf("delete cell %q: %w", key, err)
	}
	return nil
}

func tableMissing(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such table")
}

// bufferCell is the node-style byte-array wrapper the vault family stores
// its ciphertext under: {"type":"Buffer","data":[byte,...]}.
type bufferCell struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// EncodeBuffer wraps raw bytes in the Buffer JSON envelope.
func EncodeBuffer(data []byte) []byte {
	cell := bufferCell{Type: "Buffer", Data: make([]int, len(data))}
	for i, b := range data {
		cell.Data[i] = int(b)
	}
	out, _ := json.Marshal(cell)
	return out
}

// DecodeBuffer unwraps a Buffer JSON envelope back into raw bytes.
func DecodeBuffer(raw []byte) ([]byte, error) {
	var cell bufferCell
	if err := json.Unmarshal(raw, &cell); err != nil {
		return nil, fmt.Errorf("decode buffer cell: %w", err)
	}
	if cell.Type != "Buffer" {
		return nil, fmt.Errorf("decode buffer cell: unexpected type %q", cell.Type)
	}
	out := make([]byte, len(cell.Data))
	for i, v := range cell.Data {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("decode buffer cell: byte %d out of range", v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
