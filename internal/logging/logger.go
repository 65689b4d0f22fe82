// Package logging provides the logging interface and default implementation
// used throughout ridgekv.
//
// Design: a small four-level interface (Error, Warn, Info, Debug), matching
// the style used by other embedded storage engines. Callers may supply their
// own Logger implementation; the default one is built entirely on the
// standard library's log package.
//
// Log format: YYYY/MM/DD HH:MM:SS LEVEL [component] message
//
// Example: 2026/08/03 18:45:13 INFO [flush] flush started
//
// Component namespace prefixes are used for filtering:
//   - [wal]      — write-ahead log operations
//   - [memtable] — memtable operations
//   - [flush]    — flush operations
//   - [compact]  — compaction operations
//   - [manifest] — manifest operations
//   - [recovery] — startup recovery operations
//   - [engine]   — general engine operations
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
)

// Level represents the logging level.
type Level int

const (
	// LevelError logs only errors.
	LevelError Level = iota
	// LevelWarn logs warnings and errors.
	LevelWarn
	// LevelInfo logs info, warnings, and errors.
	LevelInfo
	// LevelDebug logs everything including debug messages.
	LevelDebug
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the interface used for engine logging.
//
// User-provided Logger implementations must be safe for concurrent use only
// if the embedding application itself uses the engine concurrently; the
// engine's own calls into Logger are made from a single goroutine.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// DefaultLogger is the default logger, writing formatted lines to an
// io.Writer via the standard library's log package.
type DefaultLogger struct {
	logger *log.Logger
	level  Level
}

// NewDefaultLogger creates a logger at the given level, writing to stderr.
func NewDefaultLogger(level Level) *DefaultLogger {
	return NewLogger(os.Stderr, level)
}

// NewLogger creates a logger at the given level, writing to w.
func NewLogger(w io.Writer, level Level) *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  level,
	}
}

// Level returns the logger's current level.
func (l *DefaultLogger) Level() Level {
	return l.level
}

// SetLevel changes the logger's level.
func (l *DefaultLogger) SetLevel(level Level) {
	l.level = level
}

// Errorf logs a formatted error message.
func (l *DefaultLogger) Errorf(format string, args ...any) {
	if l.level >= LevelError {
		_ = l.logger.Output(2, "ERROR "+fmt.Sprintf(format, args...))
	}
}

// Warnf logs a formatted warning message.
func (l *DefaultLogger) Warnf(format string, args ...any) {
	if l.level >= LevelWarn {
		_ = l.logger.Output(2, "WARN "+fmt.Sprintf(format, args...))
	}
}

// Infof logs a formatted informational message.
func (l *DefaultLogger) Infof(format string, args ...any) {
	if l.level >= LevelInfo {
		_ = l.logger.Output(2, "INFO "+fmt.Sprintf(format, args...))
	}
}

// Debugf logs a formatted debug message.
func (l *DefaultLogger) Debugf(format string, args ...any) {
	if l.level >= LevelDebug {
		_ = l.logger.Output(2, "DEBUG "+fmt.Sprintf(format, args...))
	}
}

// Namespace prefixes for log messages. Use with Sprintf-style formats:
//
//	logger.Infof(NSFlush+"wrote %s", name)
const (
	NSWAL      = "[wal] "
	NSMemtable = "[memtable] "
	NSFlush    = "[flush] "
	NSCompact  = "[compact] "
	NSManifest = "[manifest] "
	NSRecovery = "[recovery] "
	NSEngine   = "[engine] "
)

// IsNil returns true if l is nil or a typed-nil interface value.
func IsNil(l Logger) bool {
	if l == nil {
		return true
	}
	v := reflect.ValueOf(l)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// OrDefault returns l if it is non-nil, otherwise a WARN-level default
// logger writing to stderr. Ensures an Engine's logger field is never nil.
func OrDefault(l Logger) Logger {
	if IsNil(l) {
		return NewDefaultLogger(LevelWarn)
	}
	return l
}
