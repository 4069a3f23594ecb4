package logger

import "context"

// NopLogger is a logger that discards everything. It is the default for
// library components constructed without an explicit logger.
type NopLogger struct{}

// NewNopLogger creates a new no-op logger.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// Debug discards the message.
func (l *NopLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {}

// Info discards the message.
func (l *NopLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {}

// Warn discards the message.
func (l *NopLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {}

// Error discards the message.
func (l *NopLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {}

// WithField returns the logger unchanged.
func (l *NopLogger) WithField(key string, value interface{}) Logger { return l }

// WithFields returns the logger unchanged.
func (l *NopLogger) WithFields(fields map[string]interface{}) Logger { return l }
