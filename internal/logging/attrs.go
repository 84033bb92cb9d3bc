package logging

import (
	"context"
	"log/slog"
	"time"
)

const (
	// FieldComponent is the standardized key for component names.
	FieldComponent = "component"
	// FieldRole is the standardized key for the worker role (producer, consumer).
	FieldRole = "role"
	// FieldTask is the standardized key for the task being handled.
	FieldTask = "task"
	// FieldRunID is the standardized key for the identifier of one process run.
	FieldRunID = "run_id"
	// FieldState is the standardized key for lifecycle states.
	FieldState = "state"
	// FieldEventType is the standardized key for machine-readable event names.
	FieldEventType = "event_type"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Task(value any) Attr { return slog.Any(FieldTask, value) }

func Event(value string) Attr { return slog.String(FieldEventType, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger creates a logger with a standardized component attribute.
// If logger is nil, a no-op logger is used as the base.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
