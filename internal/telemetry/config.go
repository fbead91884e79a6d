package telemetry

import (
	"errors"
	"fmt"
)

// Exporter selects where telemetry is sent.
type Exporter string

const (
	// ExporterNone installs no-op providers.
	ExporterNone Exporter = "none"
	// ExporterStdout writes spans and metrics to stderr, for debugging.
	ExporterStdout Exporter = "stdout"
	// ExporterOTLPHTTP exports via OTLP over HTTP.
	ExporterOTLPHTTP Exporter = "otlp-http"
)

// DefaultServiceName is the service.name resource attribute.
const DefaultServiceName = "pcpmon"

// Config holds telemetry settings.
type Config struct {
	// Enabled turns telemetry on. Default: false (no-op providers).
	Enabled bool `yaml:"enabled"`

	// Exporter is one of none, stdout, otlp-http. Default: none.
	Exporter Exporter `yaml:"exporter"`

	// OTLPEndpoint is host:port of the OTLP HTTP receiver.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// OTLPInsecure disables TLS towards the receiver.
	OTLPInsecure bool `yaml:"otlp_insecure"`

	// ServiceName overrides the service.name attribute.
	ServiceName string `yaml:"service_name"`

	// SampleRate is the trace sampling ratio in [0, 1]. Default: 1.
	SampleRate float64 `yaml:"sample_rate"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Exporter == "" {
		c.Exporter = ExporterNone
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	switch c.Exporter {
	case ExporterNone, ExporterStdout, ExporterOTLPHTTP:
	default:
		return fmt.Errorf("telemetry: config: unknown exporter %q", c.Exporter)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return errors.New("telemetry: config: SampleRate must be between 0 and 1")
	}
	return nil
}

func (c *Config) active() bool {
	return c.Enabled && c.Exporter != ExporterNone
}
