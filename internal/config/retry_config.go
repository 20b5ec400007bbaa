package config

import (
	"time"
)

// RetryConfig holds the generation retry policy.
type RetryConfig struct {
	// MaxAttempts counts the first call, so 3 means two retries.
	MaxAttempts int
	// InitialDelay is the wait after the first failed attempt
	InitialDelay time.Duration
	// MaxDelay caps the wait between attempts
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// Timeout bounds one logical generation including all retries.
	Timeout time.Duration
}

// GetRetryConfig returns the retry configuration appropriate for the current environment.
// In test environments the waits are much shorter for faster test execution.
func (c Config) GetRetryConfig() RetryConfig {
	rc := RetryConfig{
		MaxAttempts:  c.GenMaxAttempts,
		InitialDelay: c.GenBackoffInitial,
		MaxDelay:     c.GenBackoffMax,
		Multiplier:   c.GenBackoffMultiplier,
		Timeout:      c.GenTimeout,
	}
	if c.IsTest() {
		rc.InitialDelay = 10 * time.Millisecond
		rc.MaxDelay = 50 * time.Millisecond
		rc.Timeout = 5 * time.Second
	}
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.Multiplier < 1 {
		rc.Multiplier = 1
	}
	return rc
}
