package projection

import "time"

// Config controls cache lifetime.
type Config struct {
	// TTL bounds how long a profile is served without being rebuilt, as a
	// safety net for writes whose invalidation was lost. Zero disables expiry.
	// Default: 5m
	TTL time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{TTL: 5 * time.Minute}
}

func (c *Config) validate() {
	if c.TTL < 0 {
		c.TTL = 0
	}
}
