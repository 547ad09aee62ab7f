package observability

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"go-identity-service/internal/config"
)

// NewLogger builds the process logger: JSON to stdout, trace ids
// stamped onto every record, plus any extra handlers (e.g. an OTLP
// bridge) fanned out alongside.
func NewLogger(cfg *config.Config, extra ...slog.Handler) *slog.Logger {
	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})

	var h slog.Handler = base
	if len(extra) > 0 {
		h = &multiHandler{handlers: append([]slog.Handler{base}, extra...)}
	}
	return slog.New(&traceContextHandler{next: h})
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// multiHandler fans each record out to every child handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, rec slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if err := h.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// traceContextHandler stamps trace_id and span_id from the active span
// onto every record. The attrs are empty strings when no span is
// recording, which keeps log lines shape-stable.
type traceContextHandler struct {
	next slog.Handler
}

func (t *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.next.Enabled(ctx, level)
}

func (t *traceContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	var traceID, spanID string
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	}
	rec.AddAttrs(
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
	)
	return t.next.Handle(ctx, rec)
}

func (t *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{next: t.next.WithAttrs(attrs)}
}

func (t *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{next: t.next.WithGroup(name)}
}
