// Package status provides session status records and their persistence.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"

	lockRetryDelay = 50 * time.Millisecond
)

// StatusPersistence defines the interface for session status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the status of a specific session
	SaveStatus(ctx context.Context, sessionID string, status *SessionStatus) error

	// LoadStatus loads the status of a specific session.
	// Returns an empty SessionStatus if nothing was saved yet (first run).
	LoadStatus(ctx context.Context, sessionID string) (*SessionStatus, error)

	// LoadAllStatus loads the status of every saved session
	LoadAllStatus(ctx context.Context) (map[string]*SessionStatus, error)

	// DeleteStatus removes the saved status of a session. Missing records are not an error.
	DeleteStatus(ctx context.Context, sessionID string) error
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence
// basePath is the base directory where per-session status files will be stored
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

func (f *fileStatusPersistence) sessionDir(sessionID string) string {
	return filepath.Join(f.basePath, sessionID)
}

// lock takes the per-session file lock so that two processes sharing a
// state directory never interleave writes
func (f *fileStatusPersistence) lock(ctx context.Context, sessionID string) (*flock.Flock, error) {
	fl := flock.New(filepath.Join(f.sessionDir(sessionID), StatusFileName+".lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock status file for session '%s': %w", sessionID, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock status file for session '%s'", sessionID)
	}
	return fl, nil
}

// SaveStatus saves the status to a JSON file in a session-specific directory
func (f *fileStatusPersistence) SaveStatus(ctx context.Context, sessionID string, status *SessionStatus) error {
	sessionDir := f.sessionDir(sessionID)
	if err := os.MkdirAll(sessionDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for session '%s': %w", sessionID, err)
	}

	fl, err := f.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		_ = fl.Unlock()
	}()

	filePath := filepath.Join(sessionDir, StatusFileName)

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for session '%s': %w", sessionID, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for session '%s': %w", sessionID, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for session '%s': %w", sessionID, err)
	}

	return nil
}

// LoadStatus loads the status from the JSON file of a specific session
func (f *fileStatusPersistence) LoadStatus(_ context.Context, sessionID string) (*SessionStatus, error) {
	filePath := filepath.Join(f.sessionDir(sessionID), StatusFileName)

	// #nosec G304 -- filePath is built from basePath and a validated session ID
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &SessionStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for session '%s': %w", sessionID, err)
	}

	var status SessionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for session '%s': %w", sessionID, err)
	}

	return &status, nil
}

// LoadAllStatus loads the status of every session directory under basePath
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*SessionStatus, error) {
	result := make(map[string]*SessionStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		sessionID := entry.Name()
		status, err := f.LoadStatus(ctx, sessionID)
		if err != nil {
			// Partial results are better than none
			continue
		}
		if status.IsEmpty() {
			continue
		}

		result[sessionID] = status
	}

	return result, nil
}

// DeleteStatus removes the status directory of a session
func (f *fileStatusPersistence) DeleteStatus(_ context.Context, sessionID string) error {
	if err := os.RemoveAll(f.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to delete status for session '%s': %w", sessionID, err)
	}
	return nil
}
