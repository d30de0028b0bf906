package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"k8s.io/utils/clock"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/fetch"
)

const (
	// DefaultTimeout is the default timeout for one request
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "syncd/1.0"
)

// ErrResponseTooLarge is returned when a response exceeds MaxResponseSize
var ErrResponseTooLarge = errors.New("response exceeds maximum allowed size")

// ErrUnexpectedNotModified is returned for a 304 answering an unconditional
// request. It is retried: the request carries no If-None-Match while nothing
// is cached, so the next attempt asks for the full body again.
var ErrUnexpectedNotModified = errors.New("304 Not Modified without a cached payload")

// HTTPConfig describes an HTTP endpoint polled by a session
type HTTPConfig struct {
	URL string

	// ItemsPath is a gjson path selecting the item array, empty to skip counting
	ItemsPath string

	// Timeout bounds one request, DefaultTimeout when zero
	Timeout time.Duration

	Headers map[string]string
}

// HTTPSource reads a JSON document over HTTP
type HTTPSource struct {
	cfg      HTTPConfig
	sessions fetch.Sessions
	client   *http.Client
	clock    clock.PassiveClock

	mu   sync.Mutex
	last *Payload
}

// HTTPOption is a function that configures an HTTPSource
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets the client used for requests
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.client = c
	}
}

// WithClock sets the clock used for timestamps and Retry-After dates
func WithClock(c clock.PassiveClock) HTTPOption {
	return func(s *HTTPSource) {
		s.clock = c
	}
}

// NewHTTPSource creates a source for cfg. The access token of the current
// session of sessions, if any, is sent as a bearer token.
func NewHTTPSource(cfg HTTPConfig, sessions fetch.Sessions, opts ...HTTPOption) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	s := &HTTPSource{
		cfg:      cfg,
		sessions: sessions,
		client:   &http.Client{},
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig creates the HTTP source of a configured session
func FromConfig(sc config.SessionConfig, sessions fetch.Sessions, opts ...HTTPOption) *HTTPSource {
	return NewHTTPSource(HTTPConfig{
		URL:       sc.URL,
		ItemsPath: sc.ItemsPath,
		Timeout:   sc.GetTimeout(),
		Headers:   sc.Headers,
	}, sessions, opts...)
}

// Fetch performs one GET. A 304 answer returns the previous payload marked
// NotModified.
func (s *HTTPSource) Fetch(ctx context.Context) (*Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fetch.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	if s.sessions != nil {
		if sess, ok := s.sessions.CurrentSession(ctx); ok && sess.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
		}
	}

	last := s.lastPayload()
	if last != nil && last.ETag != "" {
		req.Header.Set("If-None-Match", last.ETag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	now := s.clock.Now()

	if resp.StatusCode == http.StatusNotModified {
		if last == nil {
			return nil, fetch.Transient(ErrUnexpectedNotModified)
		}
		p := *last
		p.NotModified = true
		p.FetchedAt = now
		return &p, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &fetch.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now),
		}
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, fetch.Permanent(fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, resp.ContentLength))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fetch.Permanent(ErrResponseTooLarge)
	}
	if !json.Valid(body) {
		return nil, fetch.Permanent(errors.New("response is not valid JSON"))
	}

	p := &Payload{
		Body:      json.RawMessage(body),
		Hash:      hashBody(body),
		Items:     countItems(body, s.cfg.ItemsPath),
		ETag:      resp.Header.Get("ETag"),
		FetchedAt: now,
	}
	s.mu.Lock()
	s.last = p
	s.mu.Unlock()

	out := *p
	return &out, nil
}

func (s *HTTPSource) lastPayload() *Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func countItems(body []byte, path string) int {
	if path == "" {
		return -1
	}
	r := gjson.GetBytes(body, path)
	switch {
	case r.Type == gjson.Number && strings.HasSuffix(path, "#"):
		// a count query such as "items.#" already yields the length
		return int(r.Int())
	case r.IsArray():
		return len(r.Array())
	case r.Exists():
		return 1
	default:
		return 0
	}
}

// parseRetryAfter reads delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
