// Package logger provides the default structured logger implementation.
package logger

import (
	"log/slog"
	"os"

	"github.com/doeshing/toolgate/internal/ports"
)

var (
	_ ports.Logger = (*SlogLogger)(nil)
	_ ports.Logger = Nop{}
)

// SlogLogger routes structured logs through log/slog with a text handler on
// stderr. Verbose mode lowers the level gate to Debug.
type SlogLogger struct {
	slog *slog.Logger
}

// New creates a SlogLogger.
func New(verbose bool) *SlogLogger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &SlogLogger{slog: slog.New(handler)}
}

// NewWithHandler creates a SlogLogger over an existing handler. Used by tests
// to capture output.
func NewWithHandler(handler slog.Handler) *SlogLogger {
	return &SlogLogger{slog: slog.New(handler)}
}

func (l *SlogLogger) Debug(msg string, fields map[string]interface{}) {
	l.slog.Debug(msg, args(fields)...)
}

func (l *SlogLogger) Info(msg string, fields map[string]interface{}) {
	l.slog.Info(msg, args(fields)...)
}

func (l *SlogLogger) Warn(msg string, fields map[string]interface{}) {
	l.slog.Warn(msg, args(fields)...)
}

func (l *SlogLogger) Error(msg string, err error, fields map[string]interface{}) {
	kv := args(fields)
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	l.slog.Error(msg, kv...)
}

func args(fields map[string]interface{}) []any {
	kv := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}

// Nop discards everything. Handy default for tests.
type Nop struct{}

func (Nop) Debug(string, map[string]interface{})        {}
func (Nop) Info(string, map[string]interface{})         {}
func (Nop) Warn(string, map[string]interface{})         {}
func (Nop) Error(string, error, map[string]interface{}) {}
