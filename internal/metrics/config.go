package metrics

import (
	"errors"
	"time"
)

// DefaultTargetHost is the pmcd host queried when a caller names none.
const DefaultTargetHost = "localhost"

// DefaultMinInterval is the shortest accepted sampling interval.
const DefaultMinInterval = 100 * time.Millisecond

// DefaultMaxInterval is the longest accepted sampling interval.
const DefaultMaxInterval = 10 * time.Second

// Config holds the engine configuration.
type Config struct {
	// TargetHost is the default pmcd host.
	// Default: "localhost"
	TargetHost string `yaml:"target_host"`

	// AllowedHosts lists the other hosts callers may name. "*" allows any.
	AllowedHosts []string `yaml:"allowed_hosts"`

	// MinInterval and MaxInterval bound the sampling interval of rate requests.
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`

	// StrictCounters makes a decreasing counter an error instead of a reset.
	StrictCounters bool `yaml:"strict_counters"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.TargetHost == "" {
		c.TargetHost = DefaultTargetHost
	}
	if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = DefaultMaxInterval
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.TargetHost == "" {
		return errors.New("metrics: config: TargetHost is required")
	}
	if c.MinInterval <= 0 {
		return errors.New("metrics: config: MinInterval must be positive")
	}
	if c.MaxInterval < c.MinInterval {
		return errors.New("metrics: config: MaxInterval must be >= MinInterval")
	}
	return nil
}

// hostAllowed reports whether host may be queried.
func (c *Config) hostAllowed(host string) bool {
	if host == c.TargetHost {
		return true
	}
	for _, h := range c.AllowedHosts {
		if h == "*" || h == host {
			return true
		}
	}
	return false
}
