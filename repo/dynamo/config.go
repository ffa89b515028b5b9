package dynamo

// Config holds configuration for the Store.
type Config struct {
	// Table is the name of the records table.
	// Default: "lanyards_records"
	Table string

	// ConsistentRead makes GetRecord and ListRecords strongly consistent.
	// Reads issued right after a write through another client may otherwise
	// miss it.
	// Default: true
	ConsistentRead bool
}

// DefaultConfig returns the default table configuration.
func DefaultConfig() Config {
	return Config{
		Table:          "lanyards_records",
		ConsistentRead: true,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "lanyards_records"
	}
}
