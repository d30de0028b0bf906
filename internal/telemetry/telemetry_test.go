package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNew_Disabled(t *testing.T) {
	t.Parallel()

	for name, cfg := range map[string]*Config{
		"nil config":       nil,
		"disabled":         {Enabled: false, Tracing: &TracingConfig{Enabled: true}},
		"no parts enabled": {Enabled: true, Tracing: &TracingConfig{}, Metrics: &MetricsConfig{}},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tel, err := New(context.Background(), cfg)
			require.NoError(t, err)

			assert.IsType(t, tracenoop.TracerProvider{}, tel.TracerProvider())
			assert.IsType(t, metricnoop.MeterProvider{}, tel.MeterProvider())
			assert.Nil(t, tel.MetricsHandler())
			assert.NoError(t, tel.Shutdown(context.Background()))
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), &Config{
		Enabled: true,
		Tracing: &TracingConfig{Enabled: true, Sampling: 1.5},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry configuration")
}

// The providers install themselves globally, so these tests do not run in parallel.

func TestNew_PrometheusOnly(t *testing.T) {
	ctx := context.Background()
	tel, err := New(ctx, &Config{
		Enabled:     true,
		ServiceName: "syncd-test",
		Metrics:     &MetricsConfig{Enabled: true, Prometheus: true, DisableOTLP: true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	assert.IsType(t, &sdkmetric.MeterProvider{}, tel.MeterProvider())
	assert.IsType(t, tracenoop.TracerProvider{}, tel.TracerProvider())

	sm, err := NewSyncMetrics(tel.MeterProvider())
	require.NoError(t, err)
	sm.RecordFetch(ctx, "deals", "success", 2*time.Second, 0)

	handler := tel.MetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "syncd_fetch_outcomes_total")
}

func TestNew_TracingEnabled(t *testing.T) {
	ctx := context.Background()
	tel, err := New(ctx, &Config{
		Enabled:  true,
		Endpoint: "127.0.0.1:1",
		Insecure: true,
		Tracing:  &TracingConfig{Enabled: true, Sampling: 1},
	})
	require.NoError(t, err)

	_, isNoop := tel.TracerProvider().(tracenoop.TracerProvider)
	assert.False(t, isNoop)
	assert.IsType(t, metricnoop.MeterProvider{}, tel.MeterProvider())

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = tel.Shutdown(shutdownCtx)
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	tel := &Telemetry{
		shutdowns: []func(context.Context) error{
			func(context.Context) error { calls++; return nil },
		},
	}

	require.NoError(t, tel.Shutdown(context.Background()))
	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestShutdown_JoinsErrors(t *testing.T) {
	t.Parallel()

	tel := &Telemetry{
		shutdowns: []func(context.Context) error{
			func(context.Context) error { return io.ErrClosedPipe },
			func(context.Context) error { return context.DeadlineExceeded },
		},
	}

	err := tel.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "failed to shut down telemetry")
}

func TestSDKLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := sdkLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l.Info("exporter started", "spans", 3)
	l.Error(errors.New("connection refused"), "export failed")

	out := buf.String()
	assert.Contains(t, out, "exporter started")
	assert.Contains(t, out, "spans=3")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "connection refused")
}
