// Package backoff stretches a session's polling interval while its fetches
// keep failing. The stretched interval grows geometrically by the session's
// backoff multiplier, stays within the session bounds and drops back to the
// adaptive interval on the first success.
package backoff

import (
	"math"
	"sync"
	"time"

	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

// Controller tracks the error streak of one session
type Controller struct {
	mu                sync.Mutex
	base              time.Duration
	maxInterval       time.Duration
	multiplier        float64
	consecutiveErrors uint
}

// New creates a Controller for the bounds and multiplier of cfg
func New(cfg pkgsync.SessionConfig) *Controller {
	c := &Controller{}
	c.Reconfigure(cfg)
	return c
}

// OnFailure records a failed fetch and returns the next interval, current
// multiplied by the backoff multiplier and clamped to the session bounds.
func (c *Controller) OnFailure(current time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveErrors++

	next := float64(current) * c.multiplier
	if next >= math.MaxInt64 {
		return c.maxInterval
	}
	return c.clamp(time.Duration(next))
}

// OnSuccess ends the error streak and returns the adaptive interval, clamped
func (c *Controller) OnSuccess(adaptive time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveErrors = 0
	return c.clamp(adaptive)
}

// ConsecutiveErrors returns the number of failures since the last success
func (c *Controller) ConsecutiveErrors() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveErrors
}

// BackingOff reports whether an error streak is in progress
func (c *Controller) BackingOff() bool {
	return c.ConsecutiveErrors() > 0
}

// Clamp bounds d to the configured interval range
func (c *Controller) Clamp(d time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clamp(d)
}

// Reconfigure replaces the bounds and multiplier. The error streak is kept.
func (c *Controller) Reconfigure(cfg pkgsync.SessionConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.base = cfg.BaseInterval
	c.maxInterval = cfg.MaxInterval
	c.multiplier = max(cfg.BackoffMultiplier, 1)
}

// Restore resumes an error streak, used when a session is rebuilt from persisted state
func (c *Controller) Restore(consecutiveErrors uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors = consecutiveErrors
}

func (c *Controller) clamp(d time.Duration) time.Duration {
	return min(max(d, c.base), c.maxInterval)
}
