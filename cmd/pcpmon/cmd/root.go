// Package cmd implements the pcpmon CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	logLevel   string
	gatewayURL string
	targetHost string
	outputFile string
	jsonOutput bool
)

// Build info set from main.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersionInfo sets the version info from build-time ldflags.
func SetVersionInfo(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("pcpmon version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

var rootCmd = &cobra.Command{
	Use:   "pcpmon",
	Short: "pcpmon queries Performance Co-Pilot metrics through pmproxy",
	Long: "pcpmon talks to a pmproxy gateway to read Performance Co-Pilot metrics.\n" +
		"It turns cumulative counters into per-second rates, builds system health\n" +
		"snapshots, and can serve the same data over a small HTTP API or record it\n" +
		"periodically.",
	SilenceUsage: true,
	// No Run function, prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default /etc/pcpmon/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides config")
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "pmproxy base URL, overrides config")
	rootCmd.PersistentFlags().StringVar(&targetHost, "host", "", "pmcd host to query (default: configured target host)")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write the JSON result to this file instead of stdout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")

	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("pcpmon version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
