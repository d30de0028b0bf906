package v1

import (
	"context"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go SessionService,Engagement

// SessionService is the part of the sync coordinator exposed over HTTP
type SessionService interface {
	List() []pkgsync.SessionView
	View(id string) (pkgsync.SessionView, error)
	SessionConfig(id string) (pkgsync.SessionConfig, error)
	ForceRefresh(id string) error
	Reconfigure(id string, patch pkgsync.SessionPatch) error
	Dispose(ctx context.Context, id string) error
	Subscribe(fn func(pkgsync.SessionView)) func()
}

// Engagement receives engagement events from API clients
type Engagement interface {
	Apply(e activity.Event) error
	Snapshot() activity.Snapshot
}
