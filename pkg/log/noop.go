package log

// NoopLogger discards all log messages. It is the default for embedded use
// so that weir stays silent unless a logger is provided.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards everything.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

// Debug discards the message.
func (NoopLogger) Debug(msg string, fields ...Field) {}

// Info discards the message.
func (NoopLogger) Info(msg string, fields ...Field) {}

// Warn discards the message.
func (NoopLogger) Warn(msg string, fields ...Field) {}

// Error discards the message.
func (NoopLogger) Error(msg string, fields ...Field) {}
