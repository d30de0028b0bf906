package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	// registers the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/status"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_status (
	session_id TEXT PRIMARY KEY,
	phase      TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

type sqliteStateService struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStateService opens (or creates) the SQLite database at path and
// returns a state service backed by it
func NewSQLiteStateService(ctx context.Context, path string) (SessionStateService, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &sqliteStateService{db: db, now: time.Now}, nil
}

func (s *sqliteStateService) Initialize(ctx context.Context, sessionIDs []string) (map[string]*status.SessionStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Sessions no longer configured are forgotten
	if err := deleteSessionsNotIn(ctx, tx, sessionIDs); err != nil {
		return nil, err
	}

	restored := make(map[string]*status.SessionStatus)
	for _, id := range sessionIDs {
		st, err := getStatus(ctx, tx, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if st.Interrupted() {
			slog.Warn("Previous fetch was interrupted, resetting", "session", id)
			st.ResetInterrupted(s.now())
			if err := putStatus(ctx, tx, id, st); err != nil {
				return nil, err
			}
		}
		restored[id] = st
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return restored, nil
}

func (s *sqliteStateService) ListStatuses(ctx context.Context) (map[string]*status.SessionStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, data FROM session_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to list session states: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make(map[string]*status.SessionStatus)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		st, err := decodeStatus(id, data)
		if err != nil {
			return nil, err
		}
		result[id] = st
	}
	return result, rows.Err()
}

func (s *sqliteStateService) GetStatus(ctx context.Context, sessionID string) (*status.SessionStatus, error) {
	return getStatus(ctx, s.db, sessionID)
}

func (s *sqliteStateService) UpdateStatus(ctx context.Context, sessionID string, st *status.SessionStatus) error {
	return putStatus(ctx, s.db, sessionID, st)
}

func (s *sqliteStateService) DeleteStatus(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_status WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete state of session '%s': %w", sessionID, err)
	}
	return nil
}

func (s *sqliteStateService) Close() error {
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getStatus(ctx context.Context, q querier, sessionID string) (*status.SessionStatus, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM session_status WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state of session '%s': %w", sessionID, err)
	}
	return decodeStatus(sessionID, data)
}

func putStatus(ctx context.Context, q querier, sessionID string, st *status.SessionStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state of session '%s': %w", sessionID, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO session_status (session_id, phase, seq, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			phase = excluded.phase,
			seq = excluded.seq,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		sessionID, string(st.Phase), int64(st.Seq), string(data), st.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store state of session '%s': %w", sessionID, err)
	}
	return nil
}

func deleteSessionsNotIn(ctx context.Context, q querier, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		_, err := q.ExecContext(ctx, `DELETE FROM session_status`)
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sessionIDs)), ",")
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		args[i] = id
	}
	// #nosec G202 -- only placeholders are concatenated
	_, err := q.ExecContext(ctx, `DELETE FROM session_status WHERE session_id NOT IN (`+placeholders+`)`, args...)
	return err
}

func decodeStatus(sessionID, data string) (*status.SessionStatus, error) {
	var st status.SessionStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state of session '%s': %w", sessionID, err)
	}
	return &st, nil
}
