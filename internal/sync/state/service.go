// Package state contains logic for managing the session state which the daemon persists.
package state

import (
	"context"
	"errors"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/status"
)

// ErrSessionNotFound is returned when no state is known for a session
var ErrSessionNotFound = errors.New("session state not found")

// SessionStateService caches the last published state of each session and
// persists it so a restarted daemon continues where it stopped.
//
//go:generate mockgen -destination=mocks/mock_session_state_service.go -package=mocks github.com/GlobalTax/Crmcapittal-sub010/internal/sync/state SessionStateService
type SessionStateService interface {
	// Initialize loads the persisted state of the given sessions. A state
	// left in the Fetching phase by an interrupted run is reset and persisted.
	// The returned map only holds sessions with a previous state.
	Initialize(ctx context.Context, sessionIDs []string) (map[string]*status.SessionStatus, error)
	// ListStatuses lists the known state of every session.
	ListStatuses(ctx context.Context) (map[string]*status.SessionStatus, error)
	// GetStatus returns the state of one session, or ErrSessionNotFound.
	GetStatus(ctx context.Context, sessionID string) (*status.SessionStatus, error)
	// UpdateStatus replaces the state of a session.
	UpdateStatus(ctx context.Context, sessionID string, st *status.SessionStatus) error
	// DeleteStatus forgets a session.
	DeleteStatus(ctx context.Context, sessionID string) error
	// Close releases the backing store.
	Close() error
}
