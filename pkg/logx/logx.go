// Package logx provides leveled, component-scoped logging with a bounded
// in-memory buffer of recent entries for diagnostics surfaces.
package logx

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Logger writes leveled log lines tagged with a component name.
type Logger struct {
	component string
	logger    *log.Logger
}

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is a structured record of one log line, retained in the recent buffer.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// recentBuffer keeps the last maxSize entries for diagnostics.
type recentBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

//nolint:gochecknoglobals // Package-wide buffer and debug flag, set once at startup.
var (
	buffer = &recentBuffer{
		entries: make([]Entry, 0),
		maxSize: 1000,
	}
	debugEnabled bool
	debugMu      sync.RWMutex
)

//nolint:gochecknoinits // Debug flag comes from the environment.
func init() {
	if os.Getenv("DEBUG") == "1" || os.Getenv("DEBUG") == "true" {
		debugEnabled = true
	}
}

// NewLogger creates a logger scoped to a component name (e.g. "workflow").
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0),
	}
}

// SetDebug enables or disables debug-level output process-wide.
func SetDebug(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugEnabled = enabled
}

// IsDebugEnabled reports whether debug output is active.
func IsDebugEnabled() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugEnabled
}

func (b *recentBuffer) add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, entry)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// GetRecentEntries returns buffered entries newer than since, optionally
// filtered by component ("" matches all).
func GetRecentEntries(component string, since time.Time) []Entry {
	buffer.mu.RLock()
	defer buffer.mu.RUnlock()

	cutoff := since.UTC().Format(timestampLayout)
	result := make([]Entry, 0)
	for i := range buffer.entries {
		e := &buffer.entries[i]
		if component != "" && e.Component != component {
			continue
		}
		if e.Timestamp >= cutoff {
			result = append(result, *e)
		}
	}
	return result
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format(timestampLayout)
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)

	buffer.add(Entry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
	})
}

// Debug logs a debug message when debug output is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Component returns the component name this logger is scoped to.
func (l *Logger) Component() string {
	return l.component
}

//nolint:gochecknoglobals // Default logger for package-level convenience functions.
var defaultLogger = NewLogger("planner")

// Debugf logs a debug message through the default logger.
func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

// Infof logs an informational message through the default logger.
func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

// Warnf logs a warning message through the default logger.
func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
// Use this when you need both logging and error returning:
//
//	err := logx.Errorf("restore failed: %w", err).
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
