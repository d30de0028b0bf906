// Package otel holds the span conventions of fetch executions.
package otel

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names
const (
	SpanFetch   = "fetch.Execute"
	SpanAttempt = "fetch.attempt"
)

// Attribute keys of the fetch spans
const (
	AttrSessionID     = attribute.Key("session.id")
	AttrAttemptID     = attribute.Key("fetch.attempt.id")
	AttrAttemptNumber = attribute.Key("fetch.attempt.number")
	AttrAttempts      = attribute.Key("fetch.attempts")
	AttrFailureKind   = attribute.Key("fetch.failure.kind")
)

// failedStatus is the only status description ever set. Error text can carry
// upstream URLs and credentials and stays in the span events.
const failedStatus = "fetch failed"

// StartFetch opens the span covering every attempt of one execution.
// A nil tracer yields the span already in ctx, usually a no-op.
func StartFetch(ctx context.Context, tracer trace.Tracer, sessionID string) (context.Context, trace.Span) {
	return start(ctx, tracer, SpanFetch, AttrSessionID.String(sessionID))
}

// StartAttempt opens the span of attempt n, numbered from 1. Each attempt
// gets its own ID so retries can be told apart in a trace.
func StartAttempt(ctx context.Context, tracer trace.Tracer, sessionID string, n int) (context.Context, trace.Span) {
	return start(ctx, tracer, SpanAttempt,
		AttrSessionID.String(sessionID),
		AttrAttemptNumber.Int(n),
		AttrAttemptID.String(uuid.NewString()),
	)
}

func start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail marks span as failed with the given failure kind. A nil err leaves the
// span untouched.
func Fail(span trace.Span, kind string, err error) {
	if err == nil || span == nil {
		return
	}
	if kind != "" {
		span.SetAttributes(AttrFailureKind.String(kind))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, failedStatus)
}
