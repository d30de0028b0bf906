package coordinator

import (
	"fmt"
	"time"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/fetch"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

// ResolveSession builds the scheduler configuration of a configured session.
// Session overrides win over the defaults section, which wins over the
// built-in defaults.
func ResolveSession(defaults config.PollingConfig, s config.SessionConfig) (pkgsync.SessionConfig, error) {
	p := s.PollingConfig.Merge(defaults)
	cfg := pkgsync.DefaultSessionConfig(s.ID)

	var err error
	if cfg.BaseInterval, err = parseDuration(p.BaseInterval, cfg.BaseInterval); err != nil {
		return cfg, fmt.Errorf("session '%s': baseInterval: %w", s.ID, err)
	}
	if cfg.MaxInterval, err = parseDuration(p.MaxInterval, cfg.MaxInterval); err != nil {
		return cfg, fmt.Errorf("session '%s': maxInterval: %w", s.ID, err)
	}
	if cfg.InactivityThreshold, err = parseDuration(p.InactivityThreshold, cfg.InactivityThreshold); err != nil {
		return cfg, fmt.Errorf("session '%s': inactivityThreshold: %w", s.ID, err)
	}
	if p.BackoffMultiplier != nil {
		cfg.BackoffMultiplier = *p.BackoffMultiplier
	}
	if p.PauseWhenHidden != nil {
		cfg.PauseWhenHidden = *p.PauseWhenHidden
	}
	if p.PauseWhenInactive != nil {
		cfg.PauseWhenInactive = *p.PauseWhenInactive
	}
	if p.PauseMode != "" {
		cfg.PauseMode = pkgsync.PauseMode(p.PauseMode)
	}

	// A base interval above the built-in max raises the max with it
	if p.MaxInterval == "" && cfg.MaxInterval < cfg.BaseInterval {
		cfg.MaxInterval = cfg.BaseInterval
	}

	return cfg, cfg.Validate()
}

// ExecutorOptions converts the executor settings into fetch options
func ExecutorOptions(cfg *config.ExecutorConfig) ([]fetch.Option, error) {
	if cfg == nil {
		return nil, nil
	}
	base, err := parseDuration(cfg.BaseDelay, 0)
	if err != nil {
		return nil, fmt.Errorf("executor.baseDelay: %w", err)
	}
	maxDelay, err := parseDuration(cfg.MaxDelay, 0)
	if err != nil {
		return nil, fmt.Errorf("executor.maxDelay: %w", err)
	}
	return []fetch.Option{
		fetch.WithMaxAttempts(cfg.MaxAttempts),
		fetch.WithDelays(base, maxDelay),
	}, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
