package repo

import "time"

// Config holds configuration for the Client.
type Config struct {
	// CallTimeout bounds a single network call, not a whole operation.
	// Default: 5s
	CallTimeout time.Duration

	// MaxAttempts is the number of tries for a call that fails with a
	// temporary transport error or times out. 1 disables retries.
	// Default: 4
	// Max: 10
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; it doubles on each
	// further attempt, with +-10% jitter.
	// Default: 50ms
	BaseDelay time.Duration

	// MaxDelay caps the backoff between attempts.
	// Default: 2s
	MaxDelay time.Duration

	// PageSize is the number of records requested per List page.
	// Default: 50
	// Max: 1000
	PageSize int
}

// DefaultConfig returns sensible defaults for an interactive caller.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 5 * time.Second,
		MaxAttempts: 4,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		PageSize:    50,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.MaxAttempts > 10 {
		c.MaxAttempts = 10
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Millisecond
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.PageSize < 1 {
		c.PageSize = 50
	}
	if c.PageSize > 1000 {
		c.PageSize = 1000
	}
}
