package status

import (
	"time"

	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

// SessionStatus is the persisted record of a session's last published state
type SessionStatus struct {
	pkgsync.PollingState

	// Message provides additional information about the status, such as
	// the reason an interrupted fetch was reset
	Message string `json:"message,omitempty"`

	// UpdatedAt is the time the record was last written
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromState builds a status record from a published state
func FromState(st pkgsync.PollingState, now time.Time) *SessionStatus {
	s := &SessionStatus{PollingState: st, UpdatedAt: now}
	if st.LastOutcome != nil && !st.LastOutcome.Success {
		s.Message = st.LastOutcome.Message
	}
	return s
}

// IsEmpty reports whether the record was never written
func (s *SessionStatus) IsEmpty() bool {
	return s.Phase == "" && s.Seq == 0
}

// Interrupted reports whether the previous run stopped during a fetch
func (s *SessionStatus) Interrupted() bool {
	return s.Phase == pkgsync.PhaseFetching
}

// ResetInterrupted marks an interrupted fetch as scheduled again so the
// session restarts cleanly
func (s *SessionStatus) ResetInterrupted(now time.Time) {
	s.Phase = pkgsync.PhaseScheduled
	s.Message = "Previous fetch was interrupted"
	s.UpdatedAt = now
}
