// Package seglog wraps github.com/charmbracelet/log behind the small
// Logger interface every core segment.* component accepts, so callers
// outside this module don't need to import charmbracelet/log directly.
package seglog

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Logger implements segment.Logger over a charmbracelet/log.Logger.
type Logger struct {
	l *log.Logger
}

// New builds a Logger writing to w at the given level ("debug", "info",
// "warn", "error"; anything else falls back to "info").
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "segment",
	})
	l.SetLevel(parseLevel(level))
	return &Logger{l: l}
}

func parseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// With returns a Logger that attaches the given key/value pairs to
// every subsequent message, mirroring charmbracelet/log's own With.
func (lg *Logger) With(keyvals ...any) *Logger {
	return &Logger{l: lg.l.With(keyvals...)}
}

func (lg *Logger) Debug(msg string, keyvals ...any) { lg.l.Debug(msg, keyvals...) }
func (lg *Logger) Warn(msg string, keyvals ...any)  { lg.l.Warn(msg, keyvals...) }
func (lg *Logger) Info(msg string, keyvals ...any)  { lg.l.Info(msg, keyvals...) }
func (lg *Logger) Error(msg string, keyvals ...any) { lg.l.Error(msg, keyvals...) }
