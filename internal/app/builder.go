package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/api"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/auth"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/authz"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/fetch"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/notify"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sources"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/coordinator"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/state"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/telemetry"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	fetchTracerName = "github.com/GlobalTax/Crmcapittal-sub010/fetch"
)

// defaultPublicPaths are paths that never require authentication
var defaultPublicPaths = []string{"/health", "/readiness", "/version", "/.well-known"}

// SyncAppOptions is a function that configures the sync app builder
type SyncAppOptions func(*syncAppConfig) error

// syncAppConfig collects the settings and injected components of a SyncApp.
// Components left nil are built from the configuration.
type syncAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	guard        auth.SessionGuard
	stateService state.SessionStateService
	sourceClient *http.Client
	clock        clock.Clock

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Auth components
	authMiddleware  func(http.Handler) http.Handler
	authInfoHandler http.Handler

	// Telemetry components
	telemetry     *telemetry.Telemetry
	meterProvider metric.MeterProvider
}

// sessionSpec is a resolved session waiting to be registered on Start
type sessionSpec struct {
	config       pkgsync.SessionConfig
	source       *sources.HTTPSource
	fetchOnStart bool
}

func baseConfig(opts ...SyncAppOptions) (*syncAppConfig, error) {
	cfg := &syncAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		clock:          clock.RealClock{},
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		if err := WithAddress(cfg.config.GetServerAddress())(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewSyncApp builds every component of the daemon. Sessions are resolved
// here and registered when the app starts.
func NewSyncApp(
	ctx context.Context,
	opts ...SyncAppOptions,
) (*SyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components := &AppComponents{}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded {
			components.close(context.WithoutCancel(ctx))
		}
	}()

	if err := buildTelemetry(ctx, cfg, components); err != nil {
		return nil, fmt.Errorf("failed to build telemetry: %w", err)
	}

	if cfg.guard == nil {
		cfg.guard, err = auth.NewUpstreamGuard(ctx, cfg.config.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to build upstream credentials: %w", err)
		}
	}
	components.Guard = cfg.guard
	components.Signal = activity.NewSignal(cfg.clock)

	sessions, err := buildSyncComponents(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	if cfg.config.Notify != nil && cfg.config.Notify.NATS != nil {
		components.Notifier, err = notify.Connect(cfg.config.Notify.NATS, notify.WithClock(cfg.clock))
		if err != nil {
			return nil, fmt.Errorf("failed to build notifier: %w", err)
		}
	}

	// Build auth middleware (if not injected)
	if cfg.authMiddleware == nil {
		var authErr error
		cfg.authMiddleware, cfg.authInfoHandler, authErr = auth.NewAuthMiddleware(ctx, cfg.config.Auth, auth.DefaultValidatorFactory)
		if authErr != nil {
			return nil, fmt.Errorf("failed to build auth middleware: %w", authErr)
		}
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	// Create application context
	appCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	// Cleanup is now handled by the app, not in defer
	cleanupNeeded = false

	return &SyncApp{
		config:     cfg.config,
		components: components,
		sessions:   sessions,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		idx := strings.LastIndex(addr, ":")
		if idx < 0 {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host := addr[:idx]
		port := addr[idx+1:]

		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout bounds every API request except streams
func WithRequestTimeout(d time.Duration) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithSessionGuard allows injecting the upstream session guard (for testing)
func WithSessionGuard(g auth.SessionGuard) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.guard = g
		return nil
	}
}

// WithStateService allows injecting a custom state service (for testing)
func WithStateService(s state.SessionStateService) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.stateService = s
		return nil
	}
}

// WithSourceClient sets the HTTP client used to poll data sources
func WithSourceClient(c *http.Client) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.sourceClient = c
		return nil
	}
}

// WithClock sets the clock shared by the signal, the schedulers and the sources
func WithClock(c clock.Clock) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.clock = c
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for sync, fetch and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// buildTelemetry initializes the configured providers. An injected meter
// provider takes precedence over the configured one.
func buildTelemetry(ctx context.Context, b *syncAppConfig, components *AppComponents) error {
	tel, err := telemetry.New(ctx, b.config.Telemetry)
	if err != nil {
		return err
	}
	components.Telemetry = tel
	b.telemetry = tel

	if b.meterProvider == nil && b.config.Telemetry.MetricsEnabled() {
		b.meterProvider = tel.MeterProvider()
	}
	return nil
}

// buildSyncComponents builds the state service and the coordinator, restores
// persisted state and resolves every configured session
func buildSyncComponents(
	ctx context.Context,
	b *syncAppConfig,
	components *AppComponents,
) ([]sessionSpec, error) {
	slog.Info("Initializing sync components")

	if b.stateService == nil {
		svc, err := state.NewStateService(ctx, b.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create state service: %w", err)
		}
		b.stateService = svc
	}
	components.StateService = b.stateService

	execOpts, err := coordinator.ExecutorOptions(b.config.Executor)
	if err != nil {
		return nil, err
	}

	coordOpts := []coordinator.Option{coordinator.WithClock(b.clock)}

	// Create sync and fetch metrics if meter provider is configured
	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		if syncMetrics != nil {
			coordOpts = append(coordOpts, coordinator.WithSyncMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}

		fetchMetrics, err := telemetry.NewFetchMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create fetch metrics: %w", err)
		}
		if fetchMetrics != nil {
			execOpts = append(execOpts, fetch.WithMetrics(fetchMetrics))
			slog.Info("Fetch metrics enabled")
		}
	}
	if b.config.Telemetry.TracingEnabled() {
		execOpts = append(execOpts, fetch.WithTracer(b.telemetry.TracerProvider().Tracer(fetchTracerName)))
	}
	coordOpts = append(coordOpts, coordinator.WithExecutorOptions(execOpts...))

	coord := coordinator.New(components.Signal, b.guard, b.stateService, coordOpts...)
	components.Coordinator = coord

	sessions := make([]sessionSpec, 0, len(b.config.Sessions))
	ids := make([]string, 0, len(b.config.Sessions))
	for _, sc := range b.config.Sessions {
		resolved, err := coordinator.ResolveSession(b.config.Defaults, sc)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", sc.ID, err)
		}

		srcOpts := []sources.HTTPOption{sources.WithClock(b.clock)}
		if b.sourceClient != nil {
			srcOpts = append(srcOpts, sources.WithHTTPClient(b.sourceClient))
		}
		sessions = append(sessions, sessionSpec{
			config:       resolved,
			source:       sources.FromConfig(sc, b.guard, srcOpts...),
			fetchOnStart: sc.GetFetchOnStart(),
		})
		ids = append(ids, sc.ID)
	}

	if err := coord.Initialize(ctx, ids); err != nil {
		return nil, err
	}

	slog.Info("Sync components initialized successfully", "sessions", len(sessions))
	return sessions, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	_ context.Context,
	b *syncAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided. Request timeouts are applied by
	// the session API so that streams stay open.
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			api.LoggingMiddleware,
		}
	}

	// Instrumentation goes first so that requests rejected by auth are counted
	var tp trace.TracerProvider
	if b.config.Telemetry.TracingEnabled() {
		tp = b.telemetry.TracerProvider()
	}
	if b.meterProvider != nil || tp != nil {
		instr, err := telemetry.NewHTTPInstrumentation(b.meterProvider, tp)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP instrumentation: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{instr.Middleware}, b.middlewares...)
		slog.Info("HTTP instrumentation enabled", "metrics", b.meterProvider != nil, "tracing", tp != nil)
	}

	// Create auth middleware that bypasses public paths
	if b.authMiddleware == nil {
		return nil, errors.New("auth middleware cannot be nil")
	}
	b.middlewares = append(b.middlewares, auth.WrapWithPublicPaths(b.authMiddleware, defaultPublicPaths))

	if b.config.Auth != nil && b.config.Auth.Authz != nil {
		authzMiddleware, err := buildAuthzMiddleware(b.config.Auth.Authz)
		if err != nil {
			return nil, err
		}
		b.middlewares = append(b.middlewares, authzMiddleware)
		slog.Info("Scope based authorization enabled")
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithRequestTimeout(b.requestTimeout),
	}
	if b.authInfoHandler != nil {
		serverOpts = append(serverOpts, api.WithAuthInfoHandler(b.authInfoHandler))
	}
	if h := b.telemetry.MetricsHandler(); h != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(h))
	}

	router := api.NewServer(components.Coordinator, components.Signal, serverOpts...)
	components.API = router

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}
	// Hijacked stream connections are not tracked by Shutdown
	server.RegisterOnShutdown(router.Close)

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

func buildAuthzMiddleware(cfg *config.AuthzConfig) (func(http.Handler) http.Handler, error) {
	policies, err := cfg.GetPolicies()
	if err != nil {
		return nil, err
	}
	authorizer, err := authz.NewCedarAuthorizer(policies)
	if err != nil {
		return nil, err
	}
	return authz.Middleware(authorizer, authz.NewScopeMap(cfg.GetScopeMapping())), nil
}
