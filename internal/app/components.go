package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/api"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/auth"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/notify"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/coordinator"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/state"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Coordinator owns the polling sessions
	Coordinator *coordinator.Coordinator

	// Signal is the shared engagement signal
	Signal *activity.Signal

	// Guard authenticates upstream requests
	Guard auth.SessionGuard

	// StateService persists the last state of every session
	StateService state.SessionStateService

	// Notifier fans states out over NATS (optional)
	Notifier *notify.Notifier

	// API serves the HTTP endpoints
	API *api.Server

	Telemetry *telemetry.Telemetry
}

// close releases notifications, storage and telemetry
func (c *AppComponents) close(ctx context.Context) error {
	var errs []error
	if c.API != nil {
		c.API.Close()
	}
	if c.Notifier != nil {
		c.Notifier.Close()
	}
	if c.StateService != nil {
		if err := c.StateService.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close state service: %w", err))
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
