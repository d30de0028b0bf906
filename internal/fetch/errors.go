package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies why a fetch failed
type Kind string

const (
	// KindAuth means the session was rejected and could not be refreshed
	KindAuth Kind = "auth"

	// KindTransient means the failure may succeed on retry (network, 5xx, 429)
	KindTransient Kind = "transient"

	// KindFatal means retrying cannot help (e.g. 400, 403, 404)
	KindFatal Kind = "fatal"

	// KindNoSession means no authenticated session was available
	KindNoSession Kind = "no_session"

	// KindExhausted means every retry attempt failed transiently
	KindExhausted Kind = "exhausted"

	// KindCanceled means the caller canceled the fetch
	KindCanceled Kind = "canceled"
)

// Sentinel errors matched by *Error through errors.Is
var (
	ErrAuth      = errors.New("authentication failed")
	ErrTransient = errors.New("transient failure")
	ErrFatal     = errors.New("fatal failure")
	ErrNoSession = errors.New("no authenticated session")
	ErrExhausted = errors.New("retries exhausted")
	ErrCanceled  = errors.New("fetch canceled")
)

var sentinels = map[Kind]error{
	KindAuth:      ErrAuth,
	KindTransient: ErrTransient,
	KindFatal:     ErrFatal,
	KindNoSession: ErrNoSession,
	KindExhausted: ErrExhausted,
	KindCanceled:  ErrCanceled,
}

// Error is returned by the Executor when a fetch does not succeed
type Error struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s after %d attempt(s)", e.Kind, e.Attempts)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the failure kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && sentinel == target
}

// HTTPError is returned by fetch functions for non-successful upstream responses
type HTTPError struct {
	StatusCode int
	Status     string

	// RetryAfter is the server-provided delay hint, zero when absent
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected response: %s", e.Status)
	}
	return fmt.Sprintf("unexpected response: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

type classifiedError struct {
	kind Kind
	err  error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	return &classifiedError{kind: KindFatal, err: err}
}

// Transient marks err as retryable.
func Transient(err error) error {
	return &classifiedError{kind: KindTransient, err: err}
}

// AuthFailure marks err as a rejected session that a refresh may fix.
func AuthFailure(err error) error {
	return &classifiedError{kind: KindAuth, err: err}
}

// ClassifyStatus maps an HTTP status code to a failure kind.
func ClassifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == 419, code == 440:
		return KindAuth
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly, code == http.StatusTooManyRequests:
		return KindTransient
	case code >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}

// Classify determines the failure kind of an error returned by a single attempt.
// ctx is the context of the whole fetch; when it is done the result is KindCanceled.
func Classify(ctx context.Context, err error) Kind {
	if err == nil {
		return ""
	}
	if ctx.Err() != nil {
		return KindCanceled
	}

	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return ClassifyStatus(he.StatusCode)
	}

	// Anything unclassified is retried: connection failures, per-attempt
	// deadlines and truncated bodies all land here.
	return KindTransient
}

// RetryAfterHint returns the upstream Retry-After delay carried by err, if any.
func RetryAfterHint(err error) time.Duration {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.RetryAfter
	}
	return 0
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	return Classify(context.Background(), err) == KindTransient
}
