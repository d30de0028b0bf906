// Package app provides application lifecycle management for the sync daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/coordinator"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/scheduler"
)

// SyncApp encapsulates all components needed to run the sync daemon.
// It provides lifecycle management and graceful shutdown capabilities.
type SyncApp struct {
	config     *config.Config
	components *AppComponents
	sessions   []sessionSpec
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	stopOnce   sync.Once
	stopErr    error
}

// Start registers the sessions, connects notifications and serves the API.
// This method blocks until the HTTP server stops or encounters an error.
func (app *SyncApp) Start() error {
	coord := app.components.Coordinator
	for _, s := range app.sessions {
		if _, err := coordinator.Register(coord, s.config, s.source.Fetch,
			scheduler.WithFetchOnStart(s.fetchOnStart)); err != nil {
			return fmt.Errorf("failed to register session %q: %w", s.config.ID, err)
		}
	}

	if n := app.components.Notifier; n != nil {
		unsubscribe := coord.Subscribe(n.PublishView)
		defer unsubscribe()

		events, err := n.Engagement(app.ctx)
		if err != nil {
			return fmt.Errorf("failed to subscribe to engagement events: %w", err)
		}
		go app.components.Signal.Pump(app.ctx, events)
	}

	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.mu.Lock()
	app.listener = ln
	app.mu.Unlock()

	g, gctx := errgroup.WithContext(app.ctx)

	// Start sync coordinator in background
	g.Go(func() error {
		if err := coord.Start(gctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
			return err
		}
		return nil
	})

	// Start HTTP server (blocks until stopped)
	g.Go(func() error {
		slog.Info("Server listening", "address", ln.Addr().String())
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		// The coordinator exits with the app context
		app.cancelFunc()
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout.
// The HTTP server drains first, then the sessions persist their last state,
// then notifications, storage and telemetry are closed.
func (app *SyncApp) Stop(timeout time.Duration) error {
	app.stopOnce.Do(func() {
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
		}

		// Cancel the application context
		app.cancelFunc()

		if err := app.components.Coordinator.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop sync coordinator: %w", err))
		}
		if err := app.components.close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}

		app.stopErr = errors.Join(errs...)
		slog.Info("Server shutdown complete")
	})
	return app.stopErr
}

// GetConfig returns the application configuration
func (app *SyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *SyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the built components
func (app *SyncApp) Components() *AppComponents {
	return app.components
}

// Addr returns the address the API listens on, empty before Start
func (app *SyncApp) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener == nil {
		return ""
	}
	return app.listener.Addr().String()
}
