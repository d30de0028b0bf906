package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type instrumentedRouter struct {
	router *chi.Mux
	reader *sdkmetric.ManualReader
	spans  *tracetest.InMemoryExporter
}

func newInstrumentedRouter(t *testing.T) *instrumentedRouter {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		_ = tp.Shutdown(context.Background())
	})

	instr, err := NewHTTPInstrumentation(mp, tp)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(instr.Middleware)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"sessionId":"deals"}`))
	})
	r.Post("/v1/sessions/{id}/refresh", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	// stands in for a hijacked WebSocket upgrade
	r.Get("/v1/stream", func(http.ResponseWriter, *http.Request) {})

	return &instrumentedRouter{router: r, reader: reader, spans: spans}
}

func (ir *instrumentedRouter) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ir.router.ServeHTTP(rec, req)
	return rec
}

func spanAttr(s tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewHTTPInstrumentation_NilProviders(t *testing.T) {
	t.Parallel()

	instr, err := NewHTTPInstrumentation(nil, nil)
	require.NoError(t, err)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	instr.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions/deals/refresh", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHTTPInstrumentation_Spans(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/deals", nil)
	req.Header.Set("User-Agent", "syncd-watch/1.0")
	rec := ir.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	ir.do(httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil))
	ir.do(httptest.NewRequest(http.MethodPost, "/v1/sessions/deals/refresh", nil))

	spans := ir.spans.GetSpans()
	require.Len(t, spans, 3)

	ok := spans[0]
	assert.Equal(t, "GET /v1/sessions/{id}", ok.Name)
	route, found := spanAttr(ok, "http.route")
	require.True(t, found)
	assert.Equal(t, "/v1/sessions/{id}", route.AsString())
	status, found := spanAttr(ok, "http.response.status_code")
	require.True(t, found)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())
	ua, found := spanAttr(ok, "user_agent.original")
	require.True(t, found)
	assert.Equal(t, "syncd-watch/1.0", ua.AsString())
	stream, found := spanAttr(ok, "syncd.stream")
	require.True(t, found)
	assert.False(t, stream.AsBool())

	// client errors are not span errors
	assert.Equal(t, codes.Unset, spans[1].Status.Code)

	assert.Equal(t, "POST /v1/sessions/{id}/refresh", spans[2].Name)
	assert.Equal(t, codes.Error, spans[2].Status.Code)
}

func TestHTTPInstrumentation_ProbesNotTraced(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	rec := ir.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ir.spans.GetSpans())

	var rm metricdata.ResourceMetrics
	require.NoError(t, ir.reader.Collect(context.Background(), &rm))
	total := findMetric(t, rm, "syncd_http_requests_total")
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	route, _ := sum.DataPoints[0].Attributes.Value("route")
	assert.Equal(t, "/health", route.AsString())
}

func TestHTTPInstrumentation_Metrics(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	ir.do(httptest.NewRequest(http.MethodGet, "/v1/sessions/deals", nil))
	ir.do(httptest.NewRequest(http.MethodGet, "/v1/sessions/contacts", nil))
	ir.do(httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, ir.reader.Collect(context.Background(), &rm))

	sum, ok := findMetric(t, rm, "syncd_http_requests_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status_code")
		counts[route.AsString()+" "+status.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{
		"/v1/sessions/{id} 200": 2,
		"/v1/sessions/{id} 404": 1,
	}, counts)

	hist, ok := findMetric(t, rm, "syncd_http_request_duration_seconds").Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var observations uint64
	for _, dp := range hist.DataPoints {
		observations += dp.Count
	}
	assert.Equal(t, uint64(3), observations)

	active, ok := findMetric(t, rm, "syncd_http_active_requests").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range active.DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func TestHTTPInstrumentation_Streams(t *testing.T) {
	t.Parallel()
	ir := newInstrumentedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	ir.do(req)

	spans := ir.spans.GetSpans()
	require.Len(t, spans, 1)
	stream, _ := spanAttr(spans[0], "syncd.stream")
	assert.True(t, stream.AsBool())
	status, _ := spanAttr(spans[0], "http.response.status_code")
	assert.Equal(t, int64(http.StatusSwitchingProtocols), status.AsInt64())

	var rm metricdata.ResourceMetrics
	require.NoError(t, ir.reader.Collect(context.Background(), &rm))

	open, ok := findMetric(t, rm, "syncd_http_open_streams").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, open.DataPoints, 1)
	assert.Zero(t, open.DataPoints[0].Value)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			assert.NotEqual(t, "syncd_http_request_duration_seconds", m.Name, "streams have no duration")
		}
	}
}

func TestRoutePattern_Unrouted(t *testing.T) {
	t.Parallel()

	assert.Equal(t, unknownRoute, routePattern(httptest.NewRequest(http.MethodGet, "/anything", nil)))
}

func TestTruncateUserAgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", truncateUserAgent(""))
	assert.Equal(t, "curl/8.5.0", truncateUserAgent("curl/8.5.0"))

	long := strings.Repeat("a", MaxUserAgentLength+10)
	assert.Len(t, truncateUserAgent(long), MaxUserAgentLength)

	exact := strings.Repeat("b", MaxUserAgentLength)
	assert.Equal(t, exact, truncateUserAgent(exact))
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	require.Failf(t, "metric not found", "%s", name)
	return metricdata.Metrics{}
}
