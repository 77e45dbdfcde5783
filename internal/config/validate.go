package config

import (
	"errors"
	"fmt"
)

// ValidationError names the config field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration and reports every problem found, not
// just the first, so a bad config file is fixed in one pass.
func Validate(cfg *Config) error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Target == "" {
		bad("target", "worker binary path is required")
	}
	if cfg.BasePort < 1 || cfg.BasePort > 65535 {
		bad("base_port", "must be in 1..65535 (got %d)", cfg.BasePort)
	}
	if cfg.UsePool && cfg.PoolSize < 1 {
		bad("pool_size", "must be at least 1 when the pool is enabled")
	}
	if cfg.ReadyTimeout <= 0 {
		bad("ready_timeout", "must be positive")
	}
	if cfg.StopTimeout <= 0 {
		bad("stop_timeout", "must be positive")
	}
	if cfg.PollInterval <= 0 {
		bad("poll_interval", "must be positive")
	}
	if cfg.Deadline <= 0 {
		bad("deadline", "must be positive")
	}
	if cfg.MaxRetries < 0 {
		bad("max_retries", "must not be negative")
	}
	if len(cfg.ReadyMarkers) == 0 {
		bad("ready_markers", "at least one readiness marker is required")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		bad("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}
	if cfg.HostMetricsURL != "" && cfg.HostScrapeInterval <= 0 {
		bad("host_scrape_interval", "must be positive when host metrics are enabled")
	}

	return errors.Join(errs...)
}
