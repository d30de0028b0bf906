package sync

import (
	"errors"
	"fmt"
	"time"
)

// PauseMode selects what happens when the activity policy asks to pause.
type PauseMode string

const (
	// PauseModeSlow keeps polling at a stretched interval (10x hidden, 5x inactive).
	PauseModeSlow PauseMode = "slow"

	// PauseModeStop stops polling entirely until activity resumes.
	PauseModeStop PauseMode = "stop"
)

// Default polling configuration values
const (
	DefaultBaseInterval        = 30 * time.Second
	DefaultMaxInterval         = 5 * time.Minute
	DefaultBackoffMultiplier   = 1.5
	DefaultInactivityThreshold = 5 * time.Minute
	DefaultPauseMode           = PauseModeSlow
)

var (
	// ErrInvalidConfig is returned when a session configuration violates its bounds
	ErrInvalidConfig = errors.New("invalid session configuration")
)

// SessionConfig is the polling configuration of one synchronized data view.
type SessionConfig struct {
	// ID uniquely identifies the session within the process
	ID string `json:"id" yaml:"id"`

	// BaseInterval is the polling interval for an active, visible, healthy session
	BaseInterval time.Duration `json:"baseInterval" yaml:"baseInterval"`

	// MaxInterval bounds every computed interval, backoff included
	MaxInterval time.Duration `json:"maxInterval" yaml:"maxInterval"`

	// BackoffMultiplier is applied to the current interval on each consecutive failure
	BackoffMultiplier float64 `json:"backoffMultiplier" yaml:"backoffMultiplier"`

	PauseWhenHidden     bool          `json:"pauseWhenHidden" yaml:"pauseWhenHidden"`
	PauseWhenInactive   bool          `json:"pauseWhenInactive" yaml:"pauseWhenInactive"`
	InactivityThreshold time.Duration `json:"inactivityThreshold" yaml:"inactivityThreshold"`

	// PauseMode decides whether pause conditions stretch the interval or stop polling
	PauseMode PauseMode `json:"pauseMode" yaml:"pauseMode"`
}

// DefaultSessionConfig returns a configuration populated with the default values.
func DefaultSessionConfig(id string) SessionConfig {
	return SessionConfig{
		ID:                  id,
		BaseInterval:        DefaultBaseInterval,
		MaxInterval:         DefaultMaxInterval,
		BackoffMultiplier:   DefaultBackoffMultiplier,
		PauseWhenHidden:     true,
		PauseWhenInactive:   true,
		InactivityThreshold: DefaultInactivityThreshold,
		PauseMode:           DefaultPauseMode,
	}
}

// Validate checks that the configuration is usable by a scheduler.
func (c SessionConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	if c.BaseInterval <= 0 {
		return fmt.Errorf("%w: session '%s': baseInterval must be positive", ErrInvalidConfig, c.ID)
	}
	if c.MaxInterval < c.BaseInterval {
		return fmt.Errorf("%w: session '%s': maxInterval (%s) must be >= baseInterval (%s)",
			ErrInvalidConfig, c.ID, c.MaxInterval, c.BaseInterval)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: session '%s': backoffMultiplier must be >= 1", ErrInvalidConfig, c.ID)
	}
	if c.PauseWhenInactive && c.InactivityThreshold <= 0 {
		return fmt.Errorf("%w: session '%s': inactivityThreshold must be positive", ErrInvalidConfig, c.ID)
	}
	switch c.PauseMode {
	case PauseModeSlow, PauseModeStop:
	default:
		return fmt.Errorf("%w: session '%s': unknown pauseMode '%s'", ErrInvalidConfig, c.ID, c.PauseMode)
	}
	return nil
}

// Clamp bounds d to [BaseInterval, MaxInterval].
func (c SessionConfig) Clamp(d time.Duration) time.Duration {
	return min(max(d, c.BaseInterval), c.MaxInterval)
}

// SessionPatch carries a partial configuration update. Nil fields are left unchanged.
type SessionPatch struct {
	BaseInterval        *time.Duration `json:"baseInterval,omitempty"`
	MaxInterval         *time.Duration `json:"maxInterval,omitempty"`
	BackoffMultiplier   *float64       `json:"backoffMultiplier,omitempty"`
	PauseWhenHidden     *bool          `json:"pauseWhenHidden,omitempty"`
	PauseWhenInactive   *bool          `json:"pauseWhenInactive,omitempty"`
	InactivityThreshold *time.Duration `json:"inactivityThreshold,omitempty"`
	PauseMode           *PauseMode     `json:"pauseMode,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SessionPatch) IsEmpty() bool {
	return p == SessionPatch{}
}

// Apply returns a copy of c with the patch merged in. The result is not validated.
func (c SessionConfig) Apply(p SessionPatch) SessionConfig {
	if p.BaseInterval != nil {
		c.BaseInterval = *p.BaseInterval
	}
	if p.MaxInterval != nil {
		c.MaxInterval = *p.MaxInterval
	}
	if p.BackoffMultiplier != nil {
		c.BackoffMultiplier = *p.BackoffMultiplier
	}
	if p.PauseWhenHidden != nil {
		c.PauseWhenHidden = *p.PauseWhenHidden
	}
	if p.PauseWhenInactive != nil {
		c.PauseWhenInactive = *p.PauseWhenInactive
	}
	if p.InactivityThreshold != nil {
		c.InactivityThreshold = *p.InactivityThreshold
	}
	if p.PauseMode != nil {
		c.PauseMode = *p.PauseMode
	}
	return c
}
