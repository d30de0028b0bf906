// Package v1 provides the session API: listing and inspecting sessions,
// forcing refreshes, reconfiguring and disposing them, reporting engagement
// and streaming states over WebSocket.
package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/api/common"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/coordinator"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/scheduler"
)

// Routes holds the handlers of the session API
type Routes struct {
	svc        SessionService
	engagement Engagement

	requestTimeout time.Duration
	upgrader       websocket.Upgrader

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// RouterOption configures the session API
type RouterOption func(*Routes)

// WithRequestTimeout bounds every request except streams
func WithRequestTimeout(d time.Duration) RouterOption {
	return func(r *Routes) {
		r.requestTimeout = d
	}
}

// NewRoutes creates the session API handlers
func NewRoutes(svc SessionService, engagement Engagement, opts ...RouterOption) *Routes {
	r := &Routes{
		svc:        svc,
		engagement: engagement,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Router returns the chi router of the session API
func (rt *Routes) Router() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if rt.requestTimeout > 0 {
			r.Use(middleware.Timeout(rt.requestTimeout))
		}
		r.Get("/sessions", rt.listSessions)
		r.Get("/sessions/{id}", rt.getSession)
		r.Patch("/sessions/{id}", rt.reconfigureSession)
		r.Delete("/sessions/{id}", rt.disposeSession)
		r.Post("/sessions/{id}/refresh", rt.refreshSession)
		r.Get("/engagement", rt.getEngagement)
		r.Post("/engagement", rt.postEngagement)
	})

	r.Get("/stream", rt.streamAll)
	r.Get("/sessions/{id}/stream", rt.streamSession)

	return r
}

// Close ends every open stream
func (rt *Routes) Close() {
	rt.shutdownOnce.Do(func() {
		close(rt.shutdown)
	})
}

func (rt *Routes) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := rt.svc.List()
	if sessions == nil {
		sessions = []pkgsync.SessionView{}
	}
	common.WriteJSONResponse(w, SessionListResponse{Sessions: sessions}, http.StatusOK)
}

func (rt *Routes) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	view, err := rt.svc.View(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	cfg, err := rt.svc.SessionConfig(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	common.WriteJSONResponse(w, SessionResponse{Session: view, Config: toConfigResponse(cfg)}, http.StatusOK)
}

func (rt *Routes) refreshSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := rt.svc.ForceRefresh(id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (rt *Routes) reconfigureSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req ReconfigureRequest
	if err := common.DecodeJSONBody(w, r, &req); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	patch, err := req.Patch()
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := rt.svc.Reconfigure(id, patch); err != nil {
		writeServiceError(w, err)
		return
	}

	cfg, err := rt.svc.SessionConfig(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	slog.Info("Session reconfigured", "session", id, "request_id", middleware.GetReqID(r.Context()))
	common.WriteJSONResponse(w, toConfigResponse(cfg), http.StatusOK)
}

func (rt *Routes) disposeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := rt.svc.Dispose(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Routes) getEngagement(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, rt.engagement.Snapshot(), http.StatusOK)
}

func (rt *Routes) postEngagement(w http.ResponseWriter, r *http.Request) {
	var e activity.Event
	if err := common.DecodeJSONBody(w, r, &e); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rt.engagement.Apply(e); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := common.SessionIDParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// writeServiceError maps coordinator and domain errors to status codes
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrSessionNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pkgsync.ErrInvalidConfig), errors.Is(err, activity.ErrInvalidEvent):
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduler.ErrDisposed):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("Session API request failed", "error", err)
		common.WriteErrorResponse(w, "internal error", http.StatusInternalServerError)
	}
}
