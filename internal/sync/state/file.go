package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/status"
)

type fileStateService struct {
	statusPersistence status.StatusPersistence
	now               func() time.Time

	mu             sync.RWMutex
	cachedStatuses map[string]*status.SessionStatus
}

// NewFileStateService creates a new file-based session state service
func NewFileStateService(statusPersistence status.StatusPersistence) SessionStateService {
	return &fileStateService{
		statusPersistence: statusPersistence,
		now:               time.Now,
		cachedStatuses:    make(map[string]*status.SessionStatus),
	}
}

func (f *fileStateService) Initialize(ctx context.Context, sessionIDs []string) (map[string]*status.SessionStatus, error) {
	restored := make(map[string]*status.SessionStatus)
	for _, id := range sessionIDs {
		if st := f.loadSessionStatus(ctx, id); st != nil {
			restored[id] = copyStatus(st)
		}
	}
	return restored, nil
}

func (f *fileStateService) ListStatuses(_ context.Context) (map[string]*status.SessionStatus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make(map[string]*status.SessionStatus, len(f.cachedStatuses))
	for id, st := range f.cachedStatuses {
		result[id] = copyStatus(st)
	}
	return result, nil
}

func (f *fileStateService) GetStatus(_ context.Context, sessionID string) (*status.SessionStatus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st, exists := f.cachedStatuses[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return copyStatus(st), nil
}

func (f *fileStateService) UpdateStatus(ctx context.Context, sessionID string, st *status.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusPersistence.SaveStatus(ctx, sessionID, st); err != nil {
		return err
	}
	f.cachedStatuses[sessionID] = copyStatus(st)
	return nil
}

func (f *fileStateService) DeleteStatus(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusPersistence.DeleteStatus(ctx, sessionID); err != nil {
		return err
	}
	delete(f.cachedStatuses, sessionID)
	return nil
}

func (*fileStateService) Close() error {
	return nil
}

func (f *fileStateService) loadSessionStatus(ctx context.Context, sessionID string) *status.SessionStatus {
	st, err := f.statusPersistence.LoadStatus(ctx, sessionID)
	if err != nil {
		slog.Warn("Failed to load session status, starting fresh", "session", sessionID, "error", err)
		return nil
	}
	if st.IsEmpty() {
		slog.Info("No previous session status found", "session", sessionID)
		return nil
	}

	/*
	 * The reset below assumes that only one process at a time uses the
	 * state directory. The file lock keeps writes whole, not exclusive.
	 */
	if st.Interrupted() {
		slog.Warn("Previous fetch was interrupted, resetting", "session", sessionID)
		st.ResetInterrupted(f.now())
		if err := f.statusPersistence.SaveStatus(ctx, sessionID, st); err != nil {
			slog.Warn("Failed to persist corrected session status", "session", sessionID, "error", err)
		}
	}

	if st.LastSuccessAt != nil {
		slog.Info("Loaded session status",
			"session", sessionID,
			"phase", st.Phase,
			"last_success", st.LastSuccessAt.Format(time.RFC3339),
			"consecutive_errors", st.ConsecutiveErrors)
	} else {
		slog.Info("Loaded session status", "session", sessionID, "phase", st.Phase, "no_success", true)
	}

	f.mu.Lock()
	f.cachedStatuses[sessionID] = st
	f.mu.Unlock()
	return st
}

func copyStatus(st *status.SessionStatus) *status.SessionStatus {
	c := *st
	if st.LastOutcome != nil {
		o := *st.LastOutcome
		c.LastOutcome = &o
	}
	return &c
}
