package razy

// Logger defines the interface for framework logging.
// All framework operations (module activation, route registration,
// dispatch, plugin loading) log through this interface using structured
// key-value pairs, so host applications control how framework logs appear.
//
// The variadic arguments form key-value pairs:
//
//	logger.Info("module activated", "module", "acme/widget", "version", "1.2.0")
//
// This shape is compatible with slog, zap, logrus and similar libraries.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

// nopLogger discards everything. Used when no logger is configured so
// call sites never need a nil check.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NewNopLogger returns a logger that discards all output.
func NewNopLogger() Logger { return nopLogger{} }
