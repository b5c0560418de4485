// Package logging provides the level-gated component logger shared by hatloop packages.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level controls logging verbosity.
type Level int

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
		return "INFO"
	}
}

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type sink struct {
	mu     sync.Mutex
	logger *log.Logger
	closer io.Closer
	level  Level
	now    func() time.Time
}

// Logger writes "<RFC3339> <LEVEL> <component>: <message>" lines.
// A nil *Logger discards everything.
type Logger struct {
	sink      *sink
	component string
}

// New opens <dir>/logs/hatloop.log in append mode.
func New(dir, level string) (*Logger, error) {
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", logDir, err)
	}
	logPath := filepath.Join(logDir, "hatloop.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", logPath, err)
	}
	l := NewWriter(f, level)
	l.sink.closer = f
	return l, nil
}

// NewWriter builds a Logger over an arbitrary writer. Used by tests and --verbose.
func NewWriter(w io.Writer, level string) *Logger {
	return &Logger{
		sink: &sink{
			logger: log.New(w, "", 0),
			level:  ParseLevel(level),
			now:    time.Now,
		},
		component: "hatloop",
	}
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return NewWriter(io.Discard, "error")
}

// With returns a logger sharing the same sink under another component name.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{sink: l.sink, component: component}
}

// Enabled reports whether records at lvl are written.
func (l *Logger) Enabled(lvl Level) bool {
	return l != nil && lvl >= l.sink.level
}

// Close releases the underlying log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.sink.closer == nil {
		return nil
	}
	return l.sink.closer.Close()
}

func (l *Logger) logf(lvl Level, format string, args ...any) {
	if !l.Enabled(lvl) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.logger.Printf("%s %s %s: %s", l.sink.now().Format(time.RFC3339), lvl, l.component, msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }
