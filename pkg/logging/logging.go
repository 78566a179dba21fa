// Package logging provides a small leveled logger. Grounded in the
// reference implementation's color-coded Logger
// (original_source/golang/lib/lib.go), which exposes Debug/Info/Warn/Error
// methods over a single sink; this version drops the ANSI coloring (there's
// no terminal-only consumer here, just process logs) but keeps the same
// level-gating shape.
package logging

import (
	"fmt"
	"log"
)

// Level selects which calls actually reach the sink. A call at a level
// below the logger's configured Level is silently dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
)

// ParseLevel parses the -log-level flag's value.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q (want debug, info, or warn)", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	default:
		return "unknown"
	}
}

// Logger wraps a standard library *log.Logger with level gating.
type Logger struct {
	out   *log.Logger
	level Level
}

// New builds a Logger. A nil out defaults to log.Default().
func New(out *log.Logger, level Level) *Logger {
	if out == nil {
		out = log.Default()
	}
	return &Logger{out: out, level: level}
}

// Debugf logs per-request chatter: the op of each parsed request.
// Never used for a job's payload — that stays out of the log entirely.
func (l *Logger) Debugf(format string, args ...any) { l.logAt(LevelDebug, format, args...) }

// Infof logs process and connection lifecycle: startup, listening,
// connect, disconnect (with the count of jobs released), shutdown.
func (l *Logger) Infof(format string, args ...any) { l.logAt(LevelInfo, format, args...) }

// Warnf logs malformed requests, transport errors, and dropped requests.
func (l *Logger) Warnf(format string, args ...any) { l.logAt(LevelWarn, format, args...) }

func (l *Logger) logAt(level Level, format string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	l.out.Printf("["+level.String()+"] "+format, args...)
}
