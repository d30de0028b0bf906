package sync

import (
	"errors"
	"time"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/fetch"
)

// Phase represents the lifecycle phase of a polling session
type Phase string

const (
	// PhaseIdle means the session is registered but not started
	PhaseIdle Phase = "Idle"

	// PhaseScheduled means a fetch is armed for CurrentInterval from now
	PhaseScheduled Phase = "Scheduled"

	// PhaseFetching means a fetch attempt sequence is in flight
	PhaseFetching Phase = "Fetching"

	// PhasePaused means polling stopped until activity resumes
	PhasePaused Phase = "Paused"

	// PhaseDisposed is terminal; no further states are published
	PhaseDisposed Phase = "Disposed"
)

// Outcome describes how the most recent fetch completed
type Outcome struct {
	Success bool       `json:"success"`
	Kind    fetch.Kind `json:"kind,omitempty"`
	Message string     `json:"message,omitempty"`
}

// SuccessOutcome is the outcome of a successful fetch.
func SuccessOutcome() Outcome {
	return Outcome{Success: true}
}

// FailureOutcome builds the outcome of a failed fetch from its error.
func FailureOutcome(err error) Outcome {
	kind := fetch.KindTransient
	var fe *fetch.Error
	if errors.As(err, &fe) {
		kind = fe.Kind
	}
	return Outcome{Kind: kind, Message: err.Error()}
}

// PollingState is the observable state of one session.
type PollingState struct {
	SessionID string `json:"sessionId"`
	Phase     Phase  `json:"phase"`

	// CurrentInterval is the interval in force for the next wait
	CurrentInterval time.Duration `json:"currentInterval"`

	// ConsecutiveErrors is the number of failed fetches since the last success
	ConsecutiveErrors uint `json:"consecutiveErrors"`

	Paused      bool     `json:"paused"`
	LastOutcome *Outcome `json:"lastOutcome,omitempty"`

	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`

	// Seq increases by one with every published state of the session
	Seq uint64 `json:"seq"`
}

// SessionView is a PollingState together with the last successfully fetched data.
type SessionView struct {
	PollingState
	Data any `json:"data,omitempty"`
}
