// Package api provides the HTTP server of the sync daemon.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/api/common"
	v1 "github.com/GlobalTax/Crmcapittal-sub010/internal/api/v1"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/versions"
)

// ProtectedResourcePath is where the OAuth protected resource metadata is served
const ProtectedResourcePath = "/.well-known/oauth-protected-resource"

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares     []func(http.Handler) http.Handler
	requestTimeout  time.Duration
	metricsHandler  http.Handler
	authInfoHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithRequestTimeout bounds API requests. Streams are not bounded.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(cfg *serverConfig) {
		cfg.requestTimeout = d
	}
}

// WithMetricsHandler serves h on /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithAuthInfoHandler serves the OAuth protected resource metadata
func WithAuthInfoHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.authInfoHandler = h
	}
}

// Server is the HTTP handler of the daemon
type Server struct {
	*chi.Mux
	routes *v1.Routes
}

// NewServer creates the router serving the session API and the system endpoints
func NewServer(svc v1.SessionService, engagement v1.Engagement, opts ...ServerOption) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)
	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}
	if cfg.authInfoHandler != nil {
		r.Handle(ProtectedResourcePath, cfg.authInfoHandler)
	}

	routes := v1.NewRoutes(svc, engagement, v1.WithRequestTimeout(cfg.requestTimeout))
	r.Mount("/v1", routes.Router())

	return &Server{Mux: r, routes: routes}
}

// Close ends the open WebSocket streams. Hijacked connections are not
// closed by http.Server.Shutdown.
func (s *Server) Close() {
	s.routes.Close()
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once every session has started polling
func readinessHandler(svc v1.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		views := svc.List()
		var starting []string
		for _, v := range views {
			if v.Phase == pkgsync.PhaseIdle || v.Phase == "" {
				starting = append(starting, v.SessionID)
			}
		}
		resp := ReadinessResponse{Status: "ready", Sessions: len(views), Starting: starting}
		if len(views) == 0 || len(starting) > 0 {
			resp.Status = "starting"
			common.WriteJSONResponse(w, resp, http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, resp, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
