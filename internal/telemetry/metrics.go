package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// FetchMetricsMeterName is the name used for the fetch executor meter
	FetchMetricsMeterName = "github.com/GlobalTax/Crmcapittal-sub010/fetch"

	// SyncMetricsMeterName is the name used for the polling scheduler meter
	SyncMetricsMeterName = "github.com/GlobalTax/Crmcapittal-sub010/sync"
)

// FetchMetrics holds the OpenTelemetry instruments for individual fetch attempts
type FetchMetrics struct {
	attemptDuration metric.Float64Histogram
}

// NewFetchMetrics creates a new FetchMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewFetchMetrics(provider metric.MeterProvider) (*FetchMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(FetchMetricsMeterName)

	attemptDuration, err := meter.Float64Histogram(
		"syncd_fetch_attempt_duration_seconds",
		metric.WithDescription("Duration of individual fetch attempts in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	return &FetchMetrics{
		attemptDuration: attemptDuration,
	}, nil
}

// RecordAttempt records the duration of one fetch attempt.
// result is "success" or the failure kind of the attempt.
func (m *FetchMetrics) RecordAttempt(ctx context.Context, sessionID string, duration time.Duration, result string) {
	if m == nil || m.attemptDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("session", sessionID),
		attribute.String("result", result),
	}

	m.attemptDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// SyncMetrics holds the OpenTelemetry instruments for polling scheduler metrics
type SyncMetrics struct {
	interval          metric.Float64Gauge
	consecutiveErrors metric.Int64Gauge
	outcomes          metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	interval, err := meter.Float64Gauge(
		"syncd_poll_interval_seconds",
		metric.WithDescription("Interval currently in force for each session"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	consecutiveErrors, err := meter.Int64Gauge(
		"syncd_consecutive_errors",
		metric.WithDescription("Failed fetches since the last success for each session"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter(
		"syncd_fetch_outcomes_total",
		metric.WithDescription("Completed fetches by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		interval:          interval,
		consecutiveErrors: consecutiveErrors,
		outcomes:          outcomes,
	}, nil
}

// RecordFetch records the result of a completed fetch and the interval scheduled after it
func (m *SyncMetrics) RecordFetch(
	ctx context.Context, sessionID string, outcome string, interval time.Duration, consecutiveErrors uint,
) {
	if m == nil {
		return
	}

	session := metric.WithAttributes(attribute.String("session", sessionID))

	if m.outcomes != nil {
		m.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("session", sessionID),
			attribute.String("outcome", outcome),
		))
	}
	if m.interval != nil {
		m.interval.Record(ctx, interval.Seconds(), session)
	}
	if m.consecutiveErrors != nil {
		m.consecutiveErrors.Record(ctx, int64(consecutiveErrors), session)
	}
}

// RecordInterval records an interval change that was not caused by a fetch
func (m *SyncMetrics) RecordInterval(ctx context.Context, sessionID string, interval time.Duration) {
	if m == nil || m.interval == nil {
		return
	}
	m.interval.Record(ctx, interval.Seconds(), metric.WithAttributes(attribute.String("session", sessionID)))
}
