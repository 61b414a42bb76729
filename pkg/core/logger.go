package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the minimum severity a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case level name.
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
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel parses a level name (case-insensitive). An empty string is info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

// Logger provides leveled logging capabilities
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})
}

// stdLogger implements Logger on top of the standard log package, one
// *log.Logger per level so each line carries its level prefix.
type stdLogger struct {
	min     Level
	loggers [LevelError + 1]*log.Logger
}

// NewDefaultLogger returns an info-level logger: errors and warnings go to
// stderr, everything else to stdout.
func NewDefaultLogger() Logger {
	l := &stdLogger{min: LevelInfo}
	for lvl := LevelDebug; lvl <= LevelError; lvl++ {
		out := io.Writer(os.Stdout)
		if lvl >= LevelWarn {
			out = os.Stderr
		}
		l.loggers[lvl] = newLevelLogger(out, lvl)
	}
	return l
}

// NewLogger returns a logger writing every level at or above minLevel to w.
// Writes to w are serialized.
func NewLogger(w io.Writer, minLevel Level) Logger {
	l := &stdLogger{min: minLevel}
	shared := &lockedWriter{w: w}
	for lvl := LevelDebug; lvl <= LevelError; lvl++ {
		l.loggers[lvl] = newLevelLogger(shared, lvl)
	}
	return l
}

// lockedWriter lets several *log.Logger share one writer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

func newLevelLogger(w io.Writer, lvl Level) *log.Logger {
	return log.New(w, "["+lvl.String()+"] ", log.LstdFlags|log.Lshortfile)
}

func (l *stdLogger) output(lvl Level, msg string) {
	if lvl < l.min {
		return
	}
	// calldepth 3: output -> Logger method -> caller
	_ = l.loggers[lvl].Output(3, msg)
}

func (l *stdLogger) Error(args ...interface{}) { l.output(LevelError, fmt.Sprint(args...)) }

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.output(LevelError, fmt.Sprintf(format, args...))
}

func (l *stdLogger) Warn(args ...interface{}) { l.output(LevelWarn, fmt.Sprint(args...)) }

func (l *stdLogger) Warnf(format string, args ...interface{}) {
	l.output(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *stdLogger) Info(args ...interface{}) { l.output(LevelInfo, fmt.Sprint(args...)) }

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.output(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *stdLogger) Debug(args ...interface{}) { l.output(LevelDebug, fmt.Sprint(args...)) }

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.output(LevelDebug, fmt.Sprintf(format, args...))
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Error(...interface{})          {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warn(...interface{})           {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Info(...interface{})           {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Debug(...interface{})          {}
func (nopLogger) Debugf(string, ...interface{}) {}
