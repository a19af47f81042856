package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Zereker/multivu"
)

var _ multivu.Logger = (*Logger)(nil)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.With("session", "abc").Info("client connected", "addr", "127.0.0.1:5000")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry["message"] != "client connected" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["addr"] != "127.0.0.1:5000" || entry["session"] != "abc" {
		t.Errorf("fields = %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown too")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("filtered entries written: %s", out)
	}
	if strings.Count(out, "\n") != 2 {
		t.Errorf("expected 2 entries, got: %s", out)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("server started", "port", 5000)
	if !strings.Contains(buf.String(), "server started") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Info("discarded", "key", "value")
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync() = %v", err)
	}
}
