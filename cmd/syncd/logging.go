package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
)

// Environment variables read before the configuration is loaded. LOG_LEVEL
// without prefix is still honoured.
var (
	envLogLevel  = config.EnvPrefix + "_LOG_LEVEL"
	envLogFormat = config.EnvPrefix + "_LOG_FORMAT"
)

// newLogger builds the process logger from the environment. JSON is the
// default format; "text" suits interactive use. Invalid settings fall back to
// the defaults and are described in the returned warning.
func newLogger(w io.Writer, getenv func(string) string) (*slog.Logger, string) {
	var warnings []string

	raw := getenv(envLogLevel)
	if raw == "" {
		raw = getenv("LOG_LEVEL")
	}
	level, err := parseLevel(raw)
	if err != nil {
		warnings = append(warnings, err.Error())
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch format := strings.ToLower(getenv(envLogFormat)); format {
	case "", "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		warnings = append(warnings, fmt.Sprintf("unknown log format %q, using json", format))
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(traceHandler{h}), strings.Join(warnings, "; ")
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q, using info", s)
}

// traceHandler adds the trace_id and span_id of the span in the record's
// context, so fetch logs can be joined with their traces
type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}
