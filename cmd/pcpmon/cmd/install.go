package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/plexsphere/pcpmon/internal/packaging"
)

var (
	installGatewayURL string
	installListen     string
	installToken      string
	installTokenFile  string
	purge             bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install pcpmon serve as a systemd service",
	Args:  cobra.NoArgs,
	RunE:  runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the pcpmon systemd service",
	Args:  cobra.NoArgs,
	RunE:  runUninstall,
}

func init() {
	installCmd.Flags().StringVar(&installGatewayURL, "gateway-url", "", "pmproxy URL written into a new config file")
	installCmd.Flags().StringVar(&installListen, "listen", "", "query API listen address written into a new config file")
	installCmd.Flags().StringVar(&installToken, "token", "", "query API bearer token value")
	installCmd.Flags().StringVar(&installTokenFile, "token-file", "", "path to a file holding the query API bearer token")
	uninstallCmd.Flags().BoolVar(&purge, "purge", false, "also remove config and state directories")
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}

func runInstall(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := packaging.InstallConfig{
		GatewayURL: installGatewayURL,
		Listen:     installListen,
		TokenValue: installToken,
		TokenFile:  installTokenFile,
	}
	installer := packaging.NewInstaller(cfg, packaging.NewSystemdController(), packaging.NewRootChecker(), logger)
	if err := installer.Install(); err != nil {
		return fmt.Errorf("pcpmon install: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "pcpmon installed; start it with: systemctl enable --now pcpmon")
	return nil
}

func runUninstall(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	installer := packaging.NewInstaller(packaging.InstallConfig{}, packaging.NewSystemdController(), packaging.NewRootChecker(), logger)
	if err := installer.Uninstall(purge); err != nil {
		return fmt.Errorf("pcpmon uninstall: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "pcpmon uninstalled successfully")
	return nil
}
