package flake

import "time"

// RetryConfig is the retry policy applied to failed scenarios.
type RetryConfig struct {
	// MaxRetries is the number of reruns after the first failure.
	MaxRetries int

	// Delay is the wait between attempts.
	Delay time.Duration

	// Allow restricts retries to the listed test identifiers when non-empty.
	Allow []string

	// Deny excludes the listed test identifiers from retry.
	Deny []string
}

// NoRetry disables retries entirely.
func NoRetry() RetryConfig {
	return RetryConfig{}
}

// ConservativeRetry allows a single rerun after a short pause.
func ConservativeRetry() RetryConfig {
	return RetryConfig{MaxRetries: 1, Delay: 2 * time.Second}
}

// AggressiveRetry keeps rerunning known-unstable tests.
func AggressiveRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, Delay: time.Second}
}

// ShouldRetry decides whether a failed test gets another attempt. attempt is
// zero-based: attempt 0 is the first run, so a test with MaxRetries=1 runs at
// most twice.
func (c RetryConfig) ShouldRetry(testID string, attempt int) bool {
	if attempt >= c.MaxRetries {
		return false
	}
	for _, id := range c.Deny {
		if id == testID {
			return false
		}
	}
	if len(c.Allow) > 0 {
		for _, id := range c.Allow {
			if id == testID {
				return true
			}
		}
		return false
	}
	return true
}
