// Package policy computes polling intervals from the user's engagement.
//
// A hidden view polls ten times slower than its base interval and an idle
// one five times slower, both bounded by the session's maximum interval.
// Hidden takes precedence over inactive.
package policy

import (
	"time"

	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

const (
	// HiddenFactor multiplies the base interval while the views are hidden
	HiddenFactor = 10

	// InactiveFactor multiplies the base interval while the user is idle
	InactiveFactor = 5
)

// Activity is the engagement state read by the policy
type Activity interface {
	IsVisible() bool
	IsInactive(threshold time.Duration) bool
}

// ComputeInterval returns the polling interval for cfg given the current activity
func ComputeInterval(cfg pkgsync.SessionConfig, a Activity) time.Duration {
	switch {
	case cfg.PauseWhenHidden && !a.IsVisible():
		return scale(cfg.BaseInterval, HiddenFactor, cfg.MaxInterval)
	case cfg.PauseWhenInactive && a.IsInactive(cfg.InactivityThreshold):
		return scale(cfg.BaseInterval, InactiveFactor, cfg.MaxInterval)
	default:
		return cfg.BaseInterval
	}
}

// ShouldPause reports whether a session in stop mode should stop polling
func ShouldPause(cfg pkgsync.SessionConfig, a Activity) bool {
	if cfg.PauseWhenHidden && !a.IsVisible() {
		return true
	}
	return cfg.PauseWhenInactive && a.IsInactive(cfg.InactivityThreshold)
}

// Reason describes why the interval is stretched, empty when it is not
func Reason(cfg pkgsync.SessionConfig, a Activity) string {
	switch {
	case cfg.PauseWhenHidden && !a.IsVisible():
		return "hidden"
	case cfg.PauseWhenInactive && a.IsInactive(cfg.InactivityThreshold):
		return "inactive"
	default:
		return ""
	}
}

func scale(base time.Duration, factor int64, limit time.Duration) time.Duration {
	if base > limit/time.Duration(factor) {
		return limit
	}
	return base * time.Duration(factor)
}
