// Package logging defines the minimal structured-logging interface used
// across the project, with an slog-backed default implementation.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a structured logger. The variadic args are key-value pairs:
//
//	log.Info("applying event", "type", ev.Type, "block", ev.Block)
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New returns a Logger writing text lines to stderr.
func New() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

// NewDiscard returns a Logger that drops everything. Used in tests.
func NewDiscard() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}
