package cache

import (
	"errors"
	"time"
)

// Config holds the metadata cache settings.
type Config struct {
	// TTL is the lifetime of an entry.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// Capacity is the maximum number of entries across all shards.
	// Default: 100
	Capacity int `yaml:"capacity"`

	// Shards is the number of independently locked partitions.
	// Default: 16
	Shards int `yaml:"shards"`
}

const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 100
	DefaultShards   = 16
)

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Shards == 0 {
		c.Shards = DefaultShards
	}
}

// Validate checks that field values are acceptable.
func (c *Config) Validate() error {
	if c.TTL <= 0 {
		return errors.New("cache: config: TTL must be positive")
	}
	if c.Capacity <= 0 {
		return errors.New("cache: config: Capacity must be positive")
	}
	if c.Shards <= 0 {
		return errors.New("cache: config: Shards must be positive")
	}
	return nil
}
