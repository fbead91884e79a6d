// Package packaging installs pcpmon as a systemd service that runs the query
// API on bare-metal Linux hosts.
package packaging

import (
	"errors"
)

// InstallConfig holds the paths and settings used to install the service.
// No file I/O happens while building it.
type InstallConfig struct {
	// BinaryPath is where the pcpmon binary is installed.
	// Default: /usr/local/bin/pcpmon
	BinaryPath string

	// ConfigDir holds config.yaml, the environment file and the API token.
	// Default: /etc/pcpmon
	ConfigDir string

	// StateDir is writable by the service, e.g. for watch --latest files.
	// Default: /var/lib/pcpmon
	StateDir string

	// UnitFilePath is the path for the systemd unit file.
	// Default: /etc/systemd/system/pcpmon.service
	UnitFilePath string

	// ServiceName is the systemd service name.
	// Default: pcpmon
	ServiceName string

	// GatewayURL is written into a new config.yaml (optional).
	GatewayURL string

	// Listen is the query API listen address written into a new config.yaml
	// (optional).
	Listen string

	// TokenValue is the query API bearer token (optional).
	TokenValue string

	// TokenFile is a file to read the bearer token from (optional).
	TokenFile string
}

const (
	DefaultBinaryPath   = "/usr/local/bin/pcpmon"
	DefaultConfigDir    = "/etc/pcpmon"
	DefaultStateDir     = "/var/lib/pcpmon"
	DefaultServiceName  = "pcpmon"
	DefaultUnitFilePath = "/etc/systemd/system/pcpmon.service"
)

// Files written below ConfigDir.
const (
	configFileName      = "config.yaml"
	environmentFileName = "environment"
	tokenFileName       = "api-token"
)

// ApplyDefaults sets default values for zero-valued fields.
func (c *InstallConfig) ApplyDefaults() {
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultBinaryPath
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.UnitFilePath == "" {
		c.UnitFilePath = DefaultUnitFilePath
	}
}

// Validate checks that required fields are set.
func (c *InstallConfig) Validate() error {
	if c.BinaryPath == "" {
		return errors.New("packaging: config: BinaryPath is required")
	}
	if c.ConfigDir == "" {
		return errors.New("packaging: config: ConfigDir is required")
	}
	if c.StateDir == "" {
		return errors.New("packaging: config: StateDir is required")
	}
	if c.ServiceName == "" {
		return errors.New("packaging: config: ServiceName is required")
	}
	if c.UnitFilePath == "" {
		return errors.New("packaging: config: UnitFilePath is required")
	}
	if c.TokenValue != "" && c.TokenFile != "" {
		return errors.New("packaging: config: TokenValue and TokenFile are mutually exclusive")
	}
	return nil
}
