package session

import (
	"errors"
	"time"
)

// Config holds session manager settings.
type Config struct {
	// PollTimeout is sent to the gateway as polltimeout; an idle context is
	// discarded by the gateway after this period.
	// Default: 60s
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// CreateTimeout bounds a single context creation. Creation runs detached
	// from the requesting caller so a canceled caller never leaves a half
	// applied renewal behind.
	// Default: 10s
	CreateTimeout time.Duration `yaml:"create_timeout"`
}

// DefaultPollTimeout is the default gateway-side idle timeout of a context.
const DefaultPollTimeout = 60 * time.Second

// DefaultCreateTimeout is the default context creation timeout.
const DefaultCreateTimeout = 10 * time.Second

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.CreateTimeout == 0 {
		c.CreateTimeout = DefaultCreateTimeout
	}
}

// Validate checks that field values are acceptable.
func (c *Config) Validate() error {
	if c.PollTimeout < time.Second {
		return errors.New("session: config: PollTimeout must be at least 1s")
	}
	if c.CreateTimeout <= 0 {
		return errors.New("session: config: CreateTimeout must be positive")
	}
	return nil
}
