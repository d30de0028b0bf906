package v1

import (
	"fmt"
	"time"

	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

// SessionListResponse is returned by GET /v1/sessions
type SessionListResponse struct {
	Sessions []pkgsync.SessionView `json:"sessions"`
}

// SessionResponse is returned by GET /v1/sessions/{id}
type SessionResponse struct {
	Session pkgsync.SessionView `json:"session"`
	Config  ConfigResponse      `json:"config"`
}

// ConfigResponse is a session configuration with durations as strings
type ConfigResponse struct {
	ID                  string            `json:"id"`
	BaseInterval        string            `json:"baseInterval"`
	MaxInterval         string            `json:"maxInterval"`
	BackoffMultiplier   float64           `json:"backoffMultiplier"`
	PauseWhenHidden     bool              `json:"pauseWhenHidden"`
	PauseWhenInactive   bool              `json:"pauseWhenInactive"`
	InactivityThreshold string            `json:"inactivityThreshold"`
	PauseMode           pkgsync.PauseMode `json:"pauseMode"`
}

func toConfigResponse(c pkgsync.SessionConfig) ConfigResponse {
	return ConfigResponse{
		ID:                  c.ID,
		BaseInterval:        c.BaseInterval.String(),
		MaxInterval:         c.MaxInterval.String(),
		BackoffMultiplier:   c.BackoffMultiplier,
		PauseWhenHidden:     c.PauseWhenHidden,
		PauseWhenInactive:   c.PauseWhenInactive,
		InactivityThreshold: c.InactivityThreshold.String(),
		PauseMode:           c.PauseMode,
	}
}

// ReconfigureRequest is the body of PATCH /v1/sessions/{id}. Omitted fields
// are left unchanged; durations use Go syntax ("30s", "5m").
type ReconfigureRequest struct {
	BaseInterval        *string  `json:"baseInterval,omitempty"`
	MaxInterval         *string  `json:"maxInterval,omitempty"`
	BackoffMultiplier   *float64 `json:"backoffMultiplier,omitempty"`
	PauseWhenHidden     *bool    `json:"pauseWhenHidden,omitempty"`
	PauseWhenInactive   *bool    `json:"pauseWhenInactive,omitempty"`
	InactivityThreshold *string  `json:"inactivityThreshold,omitempty"`
	PauseMode           *string  `json:"pauseMode,omitempty"`
}

// Patch converts the request into a session patch
func (r ReconfigureRequest) Patch() (pkgsync.SessionPatch, error) {
	var p pkgsync.SessionPatch
	var err error
	if p.BaseInterval, err = parseOptionalDuration("baseInterval", r.BaseInterval); err != nil {
		return p, err
	}
	if p.MaxInterval, err = parseOptionalDuration("maxInterval", r.MaxInterval); err != nil {
		return p, err
	}
	if p.InactivityThreshold, err = parseOptionalDuration("inactivityThreshold", r.InactivityThreshold); err != nil {
		return p, err
	}
	p.BackoffMultiplier = r.BackoffMultiplier
	p.PauseWhenHidden = r.PauseWhenHidden
	p.PauseWhenInactive = r.PauseWhenInactive
	if r.PauseMode != nil {
		mode := pkgsync.PauseMode(*r.PauseMode)
		p.PauseMode = &mode
	}
	return p, nil
}

func parseOptionalDuration(field string, v *string) (*time.Duration, error) {
	if v == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &d, nil
}

// StreamMessage is sent to WebSocket clients for every published state
type StreamMessage struct {
	Type    string              `json:"type"`
	Session pkgsync.SessionView `json:"session"`
}

// StreamMessageTypeState is the type of state messages
const StreamMessageTypeState = "state"
