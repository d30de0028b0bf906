// Package telemetry provides OpenTelemetry instrumentation for the sync daemon:
// span export over OTLP, metric export over OTLP and Prometheus, the fetch and
// scheduler instruments, and HTTP instrumentation for the API server.
package telemetry

import (
	"cmp"
	"errors"
	"fmt"
)

const (
	// DefaultServiceName is reported when no service name is configured
	DefaultServiceName = "syncd"

	// DefaultEndpoint is the OTLP/HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling samples one trace in twenty. Polling daemons produce a
	// steady stream of near-identical fetch traces.
	DefaultSampling = 0.05
)

// Config is the telemetry section of the daemon configuration
type Config struct {
	// Enabled gates every other setting
	Enabled bool `yaml:"enabled"`

	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the collector as host:port; the exporters add /v1/traces
	// and /v1/metrics
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure exports over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of root traces kept, in [0, 1]. Zero means
	// DefaultSampling.
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig configures metric export
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Prometheus exposes the metrics on the API server's /metrics endpoint
	Prometheus bool `yaml:"prometheus,omitempty"`

	// DisableOTLP turns off the periodic push to the collector
	DisableOTLP bool `yaml:"disableOTLP,omitempty"`
}

// GetServiceName falls back to DefaultServiceName
func (c *Config) GetServiceName() string { return cmp.Or(c.ServiceName, DefaultServiceName) }

// GetServiceVersion falls back to "unknown"
func (c *Config) GetServiceVersion() string { return cmp.Or(c.ServiceVersion, "unknown") }

// GetEndpoint falls back to DefaultEndpoint
func (c *Config) GetEndpoint() string { return cmp.Or(c.Endpoint, DefaultEndpoint) }

func (c *Config) GetInsecure() bool { return c.Insecure }

// TracingEnabled reports whether spans are exported
func (c *Config) TracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

// MetricsEnabled reports whether metrics are collected
func (c *Config) MetricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

// GetSampling returns the configured ratio, or DefaultSampling when unset
func (c *TracingConfig) GetSampling() float64 {
	return cmp.Or(c.Sampling, DefaultSampling)
}

// Validate checks the sections that are switched on. A disabled section is
// never inspected.
func (c *Config) Validate() error {
	var errs []error
	if c.TracingEnabled() && (c.Tracing.Sampling < 0 || c.Tracing.Sampling > 1) {
		errs = append(errs, fmt.Errorf("tracing: sampling must be between 0.0 and 1.0, got %f", c.Tracing.Sampling))
	}
	if c.MetricsEnabled() && c.Metrics.DisableOTLP && !c.Metrics.Prometheus {
		errs = append(errs, errors.New("metrics: at least one exporter must be enabled"))
	}
	return errors.Join(errs...)
}
