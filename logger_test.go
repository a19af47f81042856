package multivu

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

var _ Logger = slog.Default()

func TestDefaultLogger(t *testing.T) {
	if defaultLogger() != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
	if newOptions(nil).logger != slog.Default() {
		t.Error("options default logger is not slog.Default()")
	}
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// mockLogger records every entry it receives.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *mockLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

// find returns the first entry with msg.
func (l *mockLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func TestServer_LogsLifecycle(t *testing.T) {
	logger := &mockLogger{}
	server := NewServer("127.0.0.1:0", LoggerOption(logger), PollIntervalOption(10*time.Millisecond))
	if err := server.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	rawExchange(t, conn, ActionStart)
	_ = conn.Close()
	waitUntil(t, "client dropped", func() bool {
		_, ok := logger.find("client disconnected")
		return ok
	})

	if err := server.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, msg := range []string{"server started", "client connected", "request received", "response sent", "server stopped"} {
		if _, ok := logger.find(msg); !ok {
			t.Errorf("missing log entry %q", msg)
		}
	}

	e, _ := logger.find("client connected")
	if e.level != "info" || len(e.args) < 4 || e.args[0] != "addr" || e.args[2] != "session" {
		t.Errorf("client connected entry = %+v", e)
	}
}

func TestSlogLogger_Output(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := NewClient("127.0.0.1:1", LoggerOption(logger), DialTimeoutOption(100*time.Millisecond))
	client.opts.logger.Debug("request sent", "action", "TEMP")

	if !strings.Contains(buf.String(), "action=TEMP") {
		t.Errorf("slog output = %q", buf.String())
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", "error", nil)
}
