// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type runIDKey struct{}

// ContextWithRunID tags a context with the workflow run id so every log
// record emitted under it carries the id automatically.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id set by ContextWithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// ConfigureSlog sets the global slog logger. Records emitted under a span
// context carry trace_id/span_id; records under a run context carry run_id.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}
	logger := slog.New(&correlationHandler{next: base})
	slog.SetDefault(logger)
	return logger
}

// correlationHandler stamps records with the identifiers needed to tie a log
// line back to its trace and its workflow run.
type correlationHandler struct {
	next slog.Handler
}

func (h *correlationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *correlationHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx != nil {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			appendMissing(&record, "trace_id", sc.TraceID().String())
			appendMissing(&record, "span_id", sc.SpanID().String())
		}
		if runID := RunIDFromContext(ctx); runID != "" {
			appendMissing(&record, "run_id", runID)
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &correlationHandler{next: h.next.WithAttrs(attrs)}
}

func (h *correlationHandler) WithGroup(name string) slog.Handler {
	return &correlationHandler{next: h.next.WithGroup(name)}
}

// appendMissing adds the attr unless the record already carries the key.
func appendMissing(record *slog.Record, key, value string) {
	present := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			present = true
			return false
		}
		return true
	})
	if !present {
		record.AddAttrs(slog.String(key, value))
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
