// Package xlog is a small leveled wrapper around the standard library's
// log.Logger, formatted the same way the rest of this codebase's ancestry
// formats its logs: "LEVEL | name | message".
package xlog

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level is an ordered log level; a Logger only emits messages at or above
// its current level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name. Unrecognized names fall
// back to LevelWarn rather than panicking -- a CLI flag typo on a logging
// subsystem shouldn't take the process down.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelWarn
	}
}

// Logger is a named, leveled logger. The zero value is not usable; build
// one with New.
type Logger struct {
	name   string
	level  atomic.Int32
	logger *log.Logger
}

// New builds a Logger writing to stderr with the given name, defaulting to
// LevelWarn until SetLevel is called.
func New(name string) *Logger {
	l := &Logger{
		name:   name,
		logger: log.New(os.Stderr, "", log.Ldate|log.Ltime),
	}
	l.level.Store(int32(LevelWarn))
	return l
}

// SetLevel changes the minimum level this logger emits. Safe to call
// concurrently with logging calls.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return int32(level) >= l.level.Load()
}

func (l *Logger) log(level Level, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", level.String(), l.name, message)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }
