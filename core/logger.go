package core

import (
	"context"
	"log/slog"
	"os"
)

// StructuredLogger is the default ComponentAwareLogger, backed by log/slog.
// Fields are passed through as slog attributes; component name (if set)
// is attached as a "component" attribute on every record.
type StructuredLogger struct {
	logger    *slog.Logger
	component string
}

// NewStructuredLogger builds a StructuredLogger writing JSON to stdout.
func NewStructuredLogger() *StructuredLogger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})
	return &StructuredLogger{logger: slog.New(h)}
}

func (l *StructuredLogger) attrs(fields map[string]interface{}) []any {
	args := make([]any, 0, len(fields)*2+2)
	if l.component != "" {
		args = append(args, "component", l.component)
	}
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.logger.Info(msg, l.attrs(fields)...)
}

func (l *StructuredLogger) Error(msg string, fields map[string]interface{}) {
	l.logger.Error(msg, l.attrs(fields)...)
}

func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn(msg, l.attrs(fields)...)
}

func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug(msg, l.attrs(fields)...)
}

func (l *StructuredLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger.InfoContext(ctx, msg, l.attrs(fields)...)
}

func (l *StructuredLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger.ErrorContext(ctx, msg, l.attrs(fields)...)
}

func (l *StructuredLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger.WarnContext(ctx, msg, l.attrs(fields)...)
}

func (l *StructuredLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger.DebugContext(ctx, msg, l.attrs(fields)...)
}

// WithComponent returns a logger tagged with the given component name.
func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{logger: l.logger, component: component}
}

var _ ComponentAwareLogger = (*StructuredLogger)(nil)
