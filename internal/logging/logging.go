// Package logging provides the engine's structured logger: a thin wrapper
// around charmbracelet/log that redacts sensitive data (tokens,
// Authorization headers, password=... pairs, PEM blocks) from every
// message and field value before it reaches the sink.
package logging

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// sensitivePatterns matches common sensitive data patterns for redaction.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|auth[_-]?token|access[_-]?token|secret[_-]?key|password|passwd|pwd)\s*[=:]\s*[^\s]+`),
	regexp.MustCompile(`(?i)bearer\s+[^\s]+`),
	regexp.MustCompile(`ssh://[^@\s]+@`),
	regexp.MustCompile(`https?://[^:@\s]+:[^@\s]+@`),
	regexp.MustCompile(`(?i)(AKIA|ASIA)[A-Z0-9]{16}`),
	regexp.MustCompile(`(?i)(token|key|secret|password)[=:]["']?[A-Za-z0-9+/]{32,}=*["']?`),
	regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
}

// RedactSensitive replaces potentially sensitive substrings in input with
// ***.
func RedactSensitive(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, "***")
	}
	return result
}

func redactArgs(keyvals []any) []any {
	out := make([]any, len(keyvals))
	for i, v := range keyvals {
		if s, ok := v.(string); ok {
			out[i] = RedactSensitive(s)
			continue
		}
		if err, ok := v.(error); ok {
			out[i] = RedactSensitive(err.Error())
			continue
		}
		out[i] = v
	}
	return out
}

// Logger wraps charmbracelet/log and redacts sensitive data from every
// call before delegating.
type Logger struct {
	*log.Logger
}

// New creates a logger writing to stderr at info level, or debug level
// when debug is true.
func New(debug bool) *Logger {
	l := log.New(os.Stderr)
	l.SetReportTimestamp(true)
	l.SetTimeFormat(time.Kitchen)

	if debug {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}

	return &Logger{Logger: l}
}

// NewWithLevel creates a logger at the named level (debug/info/warn/error),
// defaulting to info for an unrecognized value — this backs the
// MCP_GIT_LOG_LEVEL configuration knob.
func NewWithLevel(level string) *Logger {
	l := New(false)
	switch strings.ToLower(level) {
	case "debug":
		l.SetLevel(log.DebugLevel)
	case "warn", "warning":
		l.SetLevel(log.WarnLevel)
	case "error":
		l.SetLevel(log.ErrorLevel)
	default:
		l.SetLevel(log.InfoLevel)
	}
	return l
}

// SetDebug toggles debug-level logging.
func (l *Logger) SetDebug(debug bool) {
	if debug {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}
}

// Info logs a redacted info-level message with key/value fields.
func (l *Logger) Info(msg string, keyvals ...any) {
	l.Logger.Info(RedactSensitive(msg), redactArgs(keyvals)...)
}

// Warn logs a redacted warn-level message with key/value fields.
func (l *Logger) Warn(msg string, keyvals ...any) {
	l.Logger.Warn(RedactSensitive(msg), redactArgs(keyvals)...)
}

// Error logs a redacted error-level message with key/value fields.
func (l *Logger) Error(msg string, keyvals ...any) {
	l.Logger.Error(RedactSensitive(msg), redactArgs(keyvals)...)
}

// Debug logs a redacted debug-level message with key/value fields.
func (l *Logger) Debug(msg string, keyvals ...any) {
	l.Logger.Debug(RedactSensitive(msg), redactArgs(keyvals)...)
}

// Errorf formats and redacts before logging at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.Logger.Error(RedactSensitive(fmt.Sprintf(format, args...)))
}
