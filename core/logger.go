package core

import (
	"fmt"
	"log"
	"time"
)

// Logger provides debug logging for the sforce SDK.
type Logger struct {
	enabled bool
	prefix  string
}

// NewLogger creates a new logger.
func NewLogger(enabled bool) *Logger {
	return &Logger{
		enabled: enabled,
		prefix:  "sforce-go",
	}
}

func (l *Logger) formatMessage(level, message string) string {
	prefix := "sforce-go"
	if l != nil {
		prefix = l.prefix
	}
	return fmt.Sprintf("[%s] [%s] [%s] %s",
		time.Now().Format(time.RFC3339),
		prefix,
		level,
		message,
	)
}

func (l *Logger) emit(level, message string, args []any) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	log.Println(l.formatMessage(level, message))
}

// Trace logs record-level detail such as the ids being written (only if debug is enabled).
func (l *Logger) Trace(message string, args ...any) {
	if l.Enabled() {
		l.emit("TRACE", message, args)
	}
}

// Debug logs a debug message (only if debug is enabled).
func (l *Logger) Debug(message string, args ...any) {
	if l.Enabled() {
		l.emit("DEBUG", message, args)
	}
}

// Info logs an info message (only if debug is enabled).
func (l *Logger) Info(message string, args ...any) {
	if l.Enabled() {
		l.emit("INFO", message, args)
	}
}

// Warn logs a warning message (always logged).
func (l *Logger) Warn(message string, args ...any) {
	l.emit("WARN", message, args)
}

// Error logs an error message (always logged).
func (l *Logger) Error(message string, args ...any) {
	l.emit("ERROR", message, args)
}

// Timing logs call timing information.
func (l *Logger) Timing(operation string, duration time.Duration) {
	if l.Enabled() {
		l.Debug("%s completed in %dms", operation, duration.Milliseconds())
	}
}

// Retry logs retry attempt information.
func (l *Logger) Retry(attempt, maxAttempts int, delay time.Duration, reason string) {
	if l.Enabled() {
		l.Debug("Retry %d/%d in %dms: %s", attempt, maxAttempts, delay.Milliseconds(), reason)
	}
}

// Session logs session operations (without exposing the session id).
func (l *Logger) Session(operation string, serverURL string) {
	if l.Enabled() {
		if serverURL != "" {
			l.Debug("Session %s for %s", operation, serverURL)
		} else {
			l.Debug("Session %s", operation)
		}
	}
}

// Enabled returns whether debug logging is enabled. A nil Logger is disabled.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}
