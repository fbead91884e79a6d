package queryapi

import (
	"errors"
	"time"
)

// Config holds the configuration for the query API server.
// Config is passed as a constructor argument; there is no file I/O in this
// package apart from reading the token file on Start.
type Config struct {
	// Listen is the TCP listen address.
	// Default: 127.0.0.1:9464
	Listen string `yaml:"listen"`

	// TokenFile is the path to the bearer token file. Empty disables
	// authentication.
	TokenFile string `yaml:"token_file"`

	// ShutdownTimeout is the maximum time to wait for a graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// ReadHeaderTimeout bounds the time to read request headers.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// DefaultListen is the default listen address.
const DefaultListen = "127.0.0.1:9464"

// DefaultShutdownTimeout is the default graceful shutdown timeout.
const DefaultShutdownTimeout = 5 * time.Second

// DefaultReadHeaderTimeout is the default header read timeout.
const DefaultReadHeaderTimeout = 10 * time.Second

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
}

// Validate checks that values are acceptable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("queryapi: config: Listen is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("queryapi: config: ShutdownTimeout must be positive")
	}
	if c.ReadHeaderTimeout <= 0 {
		return errors.New("queryapi: config: ReadHeaderTimeout must be positive")
	}
	return nil
}
