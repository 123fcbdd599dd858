package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/askql/askql/internal/config"
)

type traceIDKey struct{}

// NewLogger builds the process logger. Every record carries the service name
// and profile so CLI and server output can be told apart.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey{}).(string)
	if !ok {
		return ""
	}
	return value
}

// EnsureTraceID returns ctx unchanged when it already carries a trace ID and
// otherwise attaches a fresh one. Questions asked outside HTTP get one here.
func EnsureTraceID(ctx context.Context) context.Context {
	if TraceIDFromContext(ctx) != "" {
		return ctx
	}
	return ContextWithTraceID(ctx, NewTraceID())
}
