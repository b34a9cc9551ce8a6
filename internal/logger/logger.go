package logger

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// withTrace appends trace and span IDs when the context carries a span.
func withTrace(ctx context.Context, args []any) []any {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		args = append(args,
			"trace_id", spanCtx.TraceID().String(),
			"span_id", spanCtx.SpanID().String(),
		)
	}
	return args
}

func Debug(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Debug(msg, withTrace(ctx, args)...)
}

func Info(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Info(msg, withTrace(ctx, args)...)
}

func Warn(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Warn(msg, withTrace(ctx, args)...)
}

func Error(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, withTrace(ctx, args)...)
}
