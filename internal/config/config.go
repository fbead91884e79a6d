// Package config loads the pcpmon configuration file and applies PCP_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/plexsphere/pcpmon/internal/api"
	"github.com/plexsphere/pcpmon/internal/cache"
	"github.com/plexsphere/pcpmon/internal/metrics"
	"github.com/plexsphere/pcpmon/internal/queryapi"
	"github.com/plexsphere/pcpmon/internal/session"
	"github.com/plexsphere/pcpmon/internal/telemetry"
	"github.com/plexsphere/pcpmon/internal/watch"
)

const (
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultPath is the configuration file read when none is named.
	DefaultPath = "/etc/pcpmon/config.yaml"

	// DefaultGatewayPort is the pmproxy default port.
	DefaultGatewayPort = 44322
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "PCP_"

// Config is the top-level pcpmon configuration. It aggregates the
// configuration of every subsystem and is populated from YAML via Load.
type Config struct {
	// LogLevel is the log level: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	Gateway   api.Config       `yaml:"gateway"`
	Session   session.Config   `yaml:"session"`
	Cache     cache.Config     `yaml:"cache"`
	Metrics   metrics.Config   `yaml:"metrics"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Server    queryapi.Config  `yaml:"server"`
	Watch     watch.Config     `yaml:"watch"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Gateway.ApplyDefaults()
	c.Session.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Metrics.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Watch.ApplyDefaults()
}

// Validate checks that required fields are set and values are acceptable.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q (must be debug, info, warn or error)", c.LogLevel)
	}
	validators := []interface{ Validate() error }{
		&c.Gateway, &c.Session, &c.Cache, &c.Metrics, &c.Telemetry, &c.Server, &c.Watch,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides from the
// process environment, then defaults, and validates the result. A missing
// file is only an error when required is true.
func Load(path string, required bool) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from PCP_* variables returned by lookup.
//
// PCP_HOST, PCP_PORT and PCP_USE_TLS together replace the gateway base URL
// when any of them is set. PCP_TIMEOUT and PCP_CACHE_TTL accept seconds or a
// Go duration. PCP_ALLOWED_HOSTS is a comma separated list.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok
	}

	host, hostSet := get("HOST")
	port, portSet := get("PORT")
	useTLS, tlsSet := get("USE_TLS")
	if hostSet || portSet || tlsSet {
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = strconv.Itoa(DefaultGatewayPort)
		} else if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("config: %sPORT: invalid port %q", EnvPrefix, port)
		}
		scheme := "http"
		if tlsSet && useTLS != "" {
			on, err := strconv.ParseBool(useTLS)
			if err != nil {
				return fmt.Errorf("config: %sUSE_TLS: %w", EnvPrefix, err)
			}
			if on {
				scheme = "https"
			}
		}
		c.Gateway.BaseURL = scheme + "://" + net.JoinHostPort(host, port)
	}

	if v, ok := get("TIMEOUT"); ok && v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("config: %sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Gateway.RequestTimeout = d
	}
	if v, ok := get("USERNAME"); ok {
		c.Gateway.Username = v
	}
	if v, ok := get("PASSWORD"); ok {
		c.Gateway.Password = v
	}
	if v, ok := get("TARGET_HOST"); ok && v != "" {
		c.Metrics.TargetHost = v
	}
	if v, ok := get("ALLOWED_HOSTS"); ok {
		c.Metrics.AllowedHosts = nil
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				c.Metrics.AllowedHosts = append(c.Metrics.AllowedHosts, h)
			}
		}
	}
	if v, ok := get("CACHE_TTL"); ok && v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("config: %sCACHE_TTL: %w", EnvPrefix, err)
		}
		c.Cache.TTL = d
	}
	if v, ok := get("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	return nil
}

// parseSeconds accepts a number of seconds ("2.5") or a Go duration ("2500ms").
func parseSeconds(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%q must be positive", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither seconds nor a duration", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%q must be positive", s)
	}
	return d, nil
}
