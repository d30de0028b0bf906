// Package fetch runs remote reads with session checks, authentication refresh
// and bounded retries of transient failures.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/auth"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/otel"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/telemetry"
)

const (
	// DefaultMaxAttempts is the number of attempts made for transient failures
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the delay before the first retry
	DefaultBaseDelay = time.Second

	// DefaultMaxDelay caps every retry delay, including Retry-After hints
	DefaultMaxDelay = 10 * time.Second

	// TracerName is the name used for the fetch tracer
	TracerName = "github.com/GlobalTax/Crmcapittal-sub010/fetch"
)

//go:generate mockgen -destination=mocks/mock_sessions.go -package=mocks github.com/GlobalTax/Crmcapittal-sub010/internal/fetch Sessions

// Sessions is the part of auth.SessionGuard the executor relies on
type Sessions interface {
	CurrentSession(ctx context.Context) (*auth.Session, bool)
	RefreshSession(ctx context.Context) (*auth.Session, error)
}

// Func is a single remote read. It receives a context that is canceled when
// the caller gives up.
type Func[T any] func(ctx context.Context) (T, error)

// Executor performs a fetch function with the session and retry rules:
// no session fails fast, an auth failure triggers one refresh and one retry,
// transient failures are retried with exponential delay up to MaxAttempts,
// fatal failures are returned immediately.
type Executor struct {
	guard       Sessions
	clock       clock.Clock
	tracer      trace.Tracer
	metrics     *telemetry.FetchMetrics
	label       string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Option is a function that configures an Executor
type Option func(*Executor)

// WithClock sets the clock used to wait between attempts
func WithClock(c clock.Clock) Option {
	return func(e *Executor) {
		e.clock = c
	}
}

// WithMaxAttempts sets the maximum number of attempts for transient failures
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithDelays sets the first retry delay and the cap applied to every delay
func WithDelays(base, maxDelay time.Duration) Option {
	return func(e *Executor) {
		if base > 0 {
			e.baseDelay = base
		}
		if maxDelay > 0 {
			e.maxDelay = maxDelay
		}
	}
}

// WithTracer sets the tracer used for call and attempt spans
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithMetrics sets the attempt metrics recorder
func WithMetrics(m *telemetry.FetchMetrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithLabel sets the session ID used in logs, spans and metrics
func WithLabel(sessionID string) Option {
	return func(e *Executor) {
		e.label = sessionID
	}
}

// NewExecutor creates an Executor that checks sessions against guard.
func NewExecutor(guard Sessions, opts ...Option) *Executor {
	e := &Executor{
		guard:       guard,
		clock:       clock.RealClock{},
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxDelay < e.baseDelay {
		e.maxDelay = e.baseDelay
	}
	return e
}

// Delay returns the wait before the given retry (1-based):
// min(baseDelay * 2^(retry-1), maxDelay).
func (e *Executor) Delay(retry int) time.Duration {
	b := e.newBackOff()
	var d time.Duration
	for range max(retry, 1) {
		d = b.NextBackOff()
	}
	return d
}

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.baseDelay
	b.MaxInterval = e.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Execute runs fn until it succeeds or a terminal failure occurs.
// Every failure is returned as *Error.
func (e *Executor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := otel.StartFetch(ctx, e.tracer, e.label)
	defer span.End()

	err := e.execute(ctx, fn)
	var fe *Error
	if errors.As(err, &fe) {
		span.SetAttributes(otel.AttrAttempts.Int(fe.Attempts))
		otel.Fail(span, string(fe.Kind), err)
	}
	return err
}

func (e *Executor) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := e.guard.CurrentSession(ctx); !ok {
		return &Error{Kind: KindNoSession, Err: ErrNoSession}
	}

	delays := e.newBackOff()
	refreshed := false
	transient := 0

	for n := 1; ; n++ {
		kind, err := e.attempt(ctx, n, fn)
		if err == nil {
			return nil
		}

		switch kind {
		case KindCanceled:
			return &Error{Kind: KindCanceled, Attempts: n, Err: err}

		case KindAuth:
			if refreshed {
				return &Error{Kind: KindAuth, Attempts: n, Err: err}
			}
			refreshed = true
			if _, rerr := e.guard.RefreshSession(ctx); rerr != nil {
				if ctx.Err() != nil {
					return &Error{Kind: KindCanceled, Attempts: n, Err: ctx.Err()}
				}
				return &Error{Kind: KindAuth, Attempts: n, Err: fmt.Errorf("%w (refresh failed: %w)", err, rerr)}
			}
			slog.DebugContext(ctx, "Session refreshed, retrying fetch", "session", e.label, "attempt", n)

		case KindTransient:
			transient++
			if transient >= e.maxAttempts {
				return &Error{Kind: KindExhausted, Attempts: n, Err: err}
			}
			delay := delays.NextBackOff()
			if hint := RetryAfterHint(err); hint > delay {
				delay = min(hint, e.maxDelay)
			}
			slog.DebugContext(ctx, "Transient fetch failure, retrying",
				"session", e.label, "attempt", n, "delay", delay, "error", err)
			if werr := e.wait(ctx, delay); werr != nil {
				return &Error{Kind: KindCanceled, Attempts: n, Err: werr}
			}

		default:
			return &Error{Kind: kind, Attempts: n, Err: err}
		}
	}
}

// attempt runs fn once inside its own span and classifies the result.
func (e *Executor) attempt(ctx context.Context, n int, fn func(ctx context.Context) error) (Kind, error) {
	ctx, span := otel.StartAttempt(ctx, e.tracer, e.label, n)
	defer span.End()

	start := e.clock.Now()
	err := fn(ctx)
	if err == nil {
		e.metrics.RecordAttempt(ctx, e.label, e.clock.Since(start), "success")
		return "", nil
	}

	kind := Classify(ctx, err)
	e.metrics.RecordAttempt(ctx, e.label, e.clock.Since(start), string(kind))
	otel.Fail(span, string(kind), err)
	return kind, err
}

func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	t := e.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

// Do runs fn through the executor and returns its value on success.
func Do[T any](ctx context.Context, e *Executor, fn Func[T]) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
