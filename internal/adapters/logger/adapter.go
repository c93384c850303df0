// Package logger provides adapters for the logging interface.
package logger

import (
	"context"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// Logger defines the logging interface used throughout the application.
// External loggers that implement these methods can be wrapped with ZapAdapter.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Debug(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, err error, fields map[string]any)
}

// ZapAdapter adapts a Logger to the application's logging interface.
// Fields set with WithFields are added to every entry.
type ZapAdapter struct {
	log    Logger
	fields map[string]any
}

// NewZapAdapter creates a new ZapAdapter wrapping the given logger.
func NewZapAdapter(log Logger) *ZapAdapter {
	return &ZapAdapter{log: log}
}

// WithFields returns an adapter that adds fields to every entry.
// Fields given to a single call take precedence.
func (a *ZapAdapter) WithFields(fields map[string]any) *ZapAdapter {
	return &ZapAdapter{log: a.log, fields: merge(a.fields, fields)}
}

// Info logs an info message.
func (a *ZapAdapter) Info(ctx context.Context, msg string, fields map[string]any) {
	a.log.Info(ctx, msg, merge(a.fields, fields))
}

// Debug logs a debug message.
func (a *ZapAdapter) Debug(ctx context.Context, msg string, fields map[string]any) {
	a.log.Debug(ctx, msg, merge(a.fields, fields))
}

// Warn logs a warning message.
func (a *ZapAdapter) Warn(ctx context.Context, msg string, fields map[string]any) {
	a.log.Warn(ctx, msg, merge(a.fields, fields))
}

// Error logs an error message.
func (a *ZapAdapter) Error(ctx context.Context, msg string, err error, fields map[string]any) {
	a.log.Error(ctx, msg, err, merge(a.fields, fields))
}

func merge(base, extra map[string]any) map[string]any {
	if len(base) == 0 {
		return extra
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// TrailMirror copies the resolution trail of a reference build into the
// structured log at debug level, one entry per step.
type TrailMirror struct {
	log Logger
}

// NewTrailMirror creates a TrailMirror writing to log.
func NewTrailMirror(log Logger) *TrailMirror {
	return &TrailMirror{log: log}
}

// Mirror logs every message of the trail in order.
func (m *TrailMirror) Mirror(ctx context.Context, ref domain.ReferenceBuild) {
	for i, msg := range ref.Messages {
		m.log.Debug(ctx, msg, map[string]any{
			"owner_build": ref.OwnerBuildID,
			"step":        i + 1,
		})
	}
}
