package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want Kind
	}{
		{401, KindAuth},
		{419, KindAuth},
		{440, KindAuth},
		{403, KindFatal},
		{400, KindFatal},
		{404, KindFatal},
		{408, KindTransient},
		{425, KindTransient},
		{429, KindTransient},
		{500, KindTransient},
		{502, KindTransient},
		{503, KindTransient},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStatus(tt.code), "status %d", tt.code)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want Kind
	}{
		{"nil", context.Background(), nil, ""},
		{"parent canceled wins", canceled, &HTTPError{StatusCode: 500}, KindCanceled},
		{"explicit permanent", context.Background(), Permanent(errors.New("x")), KindFatal},
		{"explicit transient", context.Background(), Transient(errors.New("x")), KindTransient},
		{"explicit auth", context.Background(), AuthFailure(errors.New("x")), KindAuth},
		{"wrapped http error", context.Background(), fmt.Errorf("get: %w", &HTTPError{StatusCode: 401}), KindAuth},
		{"nested fetch error", context.Background(), &Error{Kind: KindFatal}, KindFatal},
		{"attempt deadline", context.Background(), context.DeadlineExceeded, KindTransient},
		{"unexpected eof", context.Background(), io.ErrUnexpectedEOF, KindTransient},
		{"net error", context.Background(), &net.OpError{Op: "dial", Err: errors.New("refused")}, KindTransient},
		{"url error", context.Background(), &url.Error{Op: "Get", URL: "http://x", Err: errors.New("reset")}, KindTransient},
		{"unknown", context.Background(), errors.New("mystery"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.ctx, tt.err))
		})
	}
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := fmt.Errorf("poll: %w", &Error{Kind: KindExhausted, Attempts: 3, Err: cause})

	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrFatal)
	assert.Equal(t, "poll: fetch exhausted after 3 attempt(s): boom", err.Error())
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unexpected response: 503 Service Unavailable", (&HTTPError{StatusCode: 503}).Error())
	assert.Equal(t, "unexpected response: 418 teapot", (&HTTPError{StatusCode: 418, Status: "418 teapot"}).Error())

	err := fmt.Errorf("wrapped: %w", &HTTPError{StatusCode: 429, RetryAfter: 30 * time.Second})
	assert.Equal(t, 30*time.Second, RetryAfterHint(err))
	assert.Zero(t, RetryAfterHint(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(&HTTPError{StatusCode: 502}))
	assert.False(t, IsRetryable(&HTTPError{StatusCode: 404}))
	assert.False(t, IsRetryable(&HTTPError{StatusCode: 401}))
}
