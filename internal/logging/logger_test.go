package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "clinicd.log")

	logger, err := New(logPath, "clinicd", "info")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("database ready")
	logger.Debug("filtered out")
	_ = logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "database ready" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "clinicd" {
		t.Errorf("component = %v", entry["component"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing ts field")
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "x.log"), "clinicd", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewConsole("clinicctl", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
