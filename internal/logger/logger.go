// Package logger is the process-wide leveled logger used by the server.
//
// Call sites use printf-style helpers (Infof, Warnf, ...) and a bracketed
// component prefix in the message, e.g. "[autoplay] session started". Output
// is rendered by zerolog, either as human-readable console lines or as JSON.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Level is the verbosity threshold. Lower values are more verbose.
type Level int32

const (
	// LevelTrace enables per-step actuator logs.
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// Format selects how log lines are rendered.
type Format string

const (
	// FormatConsole renders colorless, human-readable lines.
	FormatConsole Format = "console"
	// FormatJSON renders one JSON object per line.
	FormatJSON Format = "json"
)

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stderr
	format           = FormatConsole
	base             = build(os.Stderr, FormatConsole)

	threshold atomic.Int32
)

func init() {
	threshold.Store(int32(LevelInfo))
	// Filtering happens against threshold; zerolog must let everything through.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

func build(w io.Writer, f Format) zerolog.Logger {
	if f == FormatJSON {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.DateTime}
	return zerolog.New(cw).With().Timestamp().Logger()
}

// ParseLevel parses a log level string into a Level.
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
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// ParseFormat parses a format string. Empty selects FormatConsole.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return FormatConsole, fmt.Errorf("unknown log format %q", raw)
	}
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	base = build(out, format)
}

// SetFormat switches between console and JSON output.
func SetFormat(f Format) {
	mu.Lock()
	defer mu.Unlock()
	format = f
	base = build(out, format)
}

// SetLevel sets the global log level threshold.
func SetLevel(level Level) {
	threshold.Store(int32(level))
}

// GetLevel returns the current threshold.
func GetLevel() Level {
	return Level(threshold.Load())
}

// Enabled reports whether a level would be emitted by the current configuration.
func Enabled(level Level) bool {
	return level >= Level(threshold.Load())
}

func logf(level Level, format string, args ...any) {
	if !Enabled(level) {
		return
	}
	mu.RLock()
	l := base
	mu.RUnlock()

	var ev *zerolog.Event
	switch level {
	case LevelTrace:
		ev = l.Trace()
	case LevelDebug:
		ev = l.Debug()
	case LevelInfo:
		ev = l.Info()
	case LevelWarn:
		ev = l.Warn()
	default:
		ev = l.Error()
	}
	ev.Msgf(format, args...)
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { logf(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }
