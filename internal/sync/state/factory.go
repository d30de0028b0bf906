package state

import (
	"context"
	"fmt"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/status"
)

// NewStateService creates a SessionStateService based on the configured state type.
//
// For file-based state, it returns a service that keeps one JSON status file
// per session under the configured directory.
//
// For SQLite state, it opens the configured database file and keeps one row
// per session.
func NewStateService(ctx context.Context, cfg *config.Config) (SessionStateService, error) {
	switch cfg.GetStateType() {
	case config.StateTypeSQLite:
		return NewSQLiteStateService(ctx, cfg.GetStatePath())
	case config.StateTypeFile:
		return NewFileStateService(status.NewFileStatusPersistence(cfg.GetStatePath())), nil
	default:
		return nil, fmt.Errorf("unsupported state type: %s", cfg.GetStateType())
	}
}
