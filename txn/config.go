package txn

import (
	"log/slog"
	"time"
)

// Config holds the identity and execution settings shared by every builder
// of a session.
type Config struct {
	// UserID is stamped into last_edited_by_id on every local mutation.
	UserID string

	// SpaceID and ShardID are stamped onto records created in the session.
	SpaceID string
	ShardID int64

	// Defer pushes operation batches onto the session stack instead of
	// flushing them immediately.
	// Default: false
	Defer bool

	// Now returns the edit timestamp.
	// Default: time.Now
	Now func() time.Time

	// Logger receives iteration warnings and debug traces.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns a config that flushes immediately.
func DefaultConfig() Config {
	return Config{
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

// validate fills in defaults.
func (c *Config) validate() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
