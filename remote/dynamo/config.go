package dynamo

import "github.com/jacentio/arbor/internal/shard"

// Config holds configuration for the Backend.
type Config struct {
	// TablePrefix is prepended to the kind to name each record table, so
	// blocks live in "<prefix>block".
	// Default: "arbor_"
	TablePrefix string

	// RelationshipTable is the name of the parent/child relationship table.
	// Default: "arbor_relationships"
	RelationshipTable string

	// NumShards is the number of shards per parent in the relationship table.
	// Queries fan out to every shard.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int

	// Concurrency bounds the number of in-flight requests of one fan-out.
	// Default: 8
	Concurrency int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		TablePrefix:       "arbor_",
		RelationshipTable: "arbor_relationships",
		NumShards:         1,
		Concurrency:       8,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TablePrefix == "" {
		c.TablePrefix = "arbor_"
	}
	if c.RelationshipTable == "" {
		c.RelationshipTable = "arbor_relationships"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > shard.MaxShards {
		c.NumShards = shard.MaxShards
	}
	if c.Concurrency < 1 {
		c.Concurrency = 8
	}
}
