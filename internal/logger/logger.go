// Package logger is the process-wide levelled logger.
//
// Call sites use printf-style helpers and tag their component in brackets,
// e.g. logger.Infof("[pair] session %s open", id). Output goes through zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is the verbosity threshold. Lower values are more verbose.
type Level int

const (
	// LevelTrace enables protocol events and FSM inputs.
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo is the default.
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
	// LevelDisabled silences the logger.
	LevelDisabled
)

var (
	mu    sync.RWMutex
	level = LevelInfo
	app   = "pear-code"
	base  = newLogger(os.Stdout, app)
)

func newLogger(w io.Writer, name string) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).With().Timestamp().Str("app", name).Logger()
}

// Init names the application in every log line and writes to stdout.
func Init(name string) {
	mu.Lock()
	defer mu.Unlock()
	app = name
	base = newLogger(os.Stdout, app)
}

// SetOutput replaces the writer used by the logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(w, app)
}

// SetLevel sets the global log level threshold.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// Enabled reports whether a level would be emitted.
func Enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level && level != LevelDisabled
}

// ParseLevel parses a level name.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "off", "disabled", "none":
		return LevelDisabled, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

func emit(l Level, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	mu.RLock()
	lg := base
	mu.RUnlock()

	var ev *zerolog.Event
	switch l {
	case LevelTrace:
		ev = lg.Trace()
	case LevelDebug:
		ev = lg.Debug()
	case LevelWarn:
		ev = lg.Warn()
	case LevelError:
		ev = lg.Error()
	default:
		ev = lg.Info()
	}
	ev.Msgf(format, args...)
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { emit(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { emit(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { emit(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { emit(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { emit(LevelError, format, args...) }
