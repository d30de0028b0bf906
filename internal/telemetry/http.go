package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// HTTPInstrumentationName names the meter and the tracer of the API server
	HTTPInstrumentationName = "github.com/GlobalTax/Crmcapittal-sub010/http"

	// MaxUserAgentLength bounds the user agent recorded on spans
	MaxUserAgentLength = 256

	unknownRoute = "unknown_route"
)

// probePaths are polled by orchestrators every few seconds and are never traced
var probePaths = map[string]bool{
	"/health":    true,
	"/readiness": true,
}

// HTTPInstrumentation records metrics and spans for API requests.
//
// State streams are WebSocket upgrades that stay open for as long as a client
// watches, so they are counted as open streams and kept out of the request
// duration histogram.
type HTTPInstrumentation struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	openStreams     metric.Int64UpDownCounter
}

// NewHTTPInstrumentation creates the instruments. A nil provider turns the
// matching half off; with both nil the middleware passes requests through.
func NewHTTPInstrumentation(mp metric.MeterProvider, tp trace.TracerProvider) (*HTTPInstrumentation, error) {
	h := &HTTPInstrumentation{}
	if tp != nil {
		h.tracer = tp.Tracer(HTTPInstrumentationName)
		h.propagator = otel.GetTextMapPropagator()
	}
	if mp != nil {
		if err := h.initMetrics(mp.Meter(HTTPInstrumentationName)); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *HTTPInstrumentation) initMetrics(meter metric.Meter) error {
	var err error
	h.requestDuration, err = meter.Float64Histogram(
		"syncd_http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP requests in seconds, streams excluded"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	h.requestsTotal, err = meter.Int64Counter(
		"syncd_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request counter: %w", err)
	}

	h.activeRequests, err = meter.Int64UpDownCounter(
		"syncd_http_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests, streams excluded"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create active request counter: %w", err)
	}

	h.openStreams, err = meter.Int64UpDownCounter(
		"syncd_http_open_streams",
		metric.WithDescription("Number of open state streams"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create open stream counter: %w", err)
	}
	return nil
}

func (h *HTTPInstrumentation) metricsEnabled() bool {
	return h.requestsTotal != nil
}

// Middleware instruments next
func (h *HTTPInstrumentation) Middleware(next http.Handler) http.Handler {
	if h == nil || (h.tracer == nil && !h.metricsEnabled()) {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the request context may be canceled once ServeHTTP returns
		mctx := context.WithoutCancel(r.Context())
		stream := isStreamUpgrade(r)
		start := time.Now()

		ctx := r.Context()
		var span trace.Span
		if h.tracer != nil && !probePaths[r.URL.Path] {
			ctx = h.propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
			ctx, span = h.tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.UserAgentOriginal(truncateUserAgent(r.UserAgent())),
					attribute.Bool("syncd.stream", stream),
				),
			)
			defer span.End()
		}

		if h.metricsEnabled() {
			if stream {
				h.openStreams.Add(mctx, 1)
			} else {
				h.activeRequests.Add(mctx, 1)
			}
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			// hijacked by the WebSocket upgrade or nothing written
			status = http.StatusOK
			if stream {
				status = http.StatusSwitchingProtocols
			}
		}

		if span != nil {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCode(status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		}

		if h.metricsEnabled() {
			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.String("status_code", strconv.Itoa(status)),
			)
			h.requestsTotal.Add(mctx, 1, attrs)
			if stream {
				h.openStreams.Add(mctx, -1)
			} else {
				h.activeRequests.Add(mctx, -1)
				h.requestDuration.Record(mctx, time.Since(start).Seconds(), attrs)
			}
		}
	})
}

// routePattern returns the chi pattern of the matched route, so that
// "/v1/sessions/deals" is reported as "/v1/sessions/{id}"
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unknownRoute
}

func isStreamUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func truncateUserAgent(ua string) string {
	if len(ua) > MaxUserAgentLength {
		return ua[:MaxUserAgentLength]
	}
	return ua
}
