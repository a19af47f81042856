package multivu

import "log/slog"

// Logger is the structured logger used by the server, the client and the
// per-connection state machines. *slog.Logger satisfies it, and so does the
// zap-backed logger in the logging package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the standard library default logger.
func defaultLogger() Logger {
	return slog.Default()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}
