package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetupEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelInfo)

	l.Info("switch complete", slog.String("provider", "cursor"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "switch complete" {
		t.Errorf("msg = %q, want %q", entry["msg"], "switch complete")
	}
	if entry["provider"] != "cursor" {
		t.Errorf("provider = %q, want %q", entry["provider"], "cursor")
	}
}

func TestSetupHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelInfo)

	l.Debug("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("debug record should be suppressed at info level, got %s", buf.String())
	}
}
