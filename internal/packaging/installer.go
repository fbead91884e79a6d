package packaging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/plexsphere/pcpmon/internal/fsutil"
)

const maxTokenLength = 512

// Installer installs and removes the pcpmon systemd service.
type Installer struct {
	cfg     InstallConfig
	systemd SystemdController
	root    RootChecker
	logger  *slog.Logger
}

// NewInstaller creates a new Installer with defaults applied.
func NewInstaller(cfg InstallConfig, systemd SystemdController, root RootChecker, logger *slog.Logger) *Installer {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{
		cfg:     cfg,
		systemd: systemd,
		root:    root,
		logger:  logger.With("component", "packaging"),
	}
}

// Install copies the binary, writes a config if none exists, writes the unit
// file and reloads systemd. The service is not enabled or started.
func (ins *Installer) Install() error {
	if err := ins.cfg.Validate(); err != nil {
		return err
	}
	if !ins.root.IsRoot() {
		return errors.New("packaging: install requires root privileges")
	}
	if !ins.systemd.IsAvailable() {
		return errors.New("packaging: systemd is not available")
	}

	// Read the token before touching the filesystem so a bad token leaves
	// nothing behind.
	token, err := ins.token()
	if err != nil {
		return err
	}

	dirs := []struct {
		path string
		perm os.FileMode
	}{
		{ins.cfg.ConfigDir, 0o755},
		{ins.cfg.StateDir, 0o750},
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.path, d.perm); err != nil {
			return fmt.Errorf("packaging: create directory %s: %w", d.path, err)
		}
		ins.logger.Info("directory created", "path", d.path, "perm", fmt.Sprintf("%04o", d.perm))
	}

	if err := ins.copyBinary(); err != nil {
		return err
	}

	var tokenPath string
	if token != "" {
		tokenPath = filepath.Join(ins.cfg.ConfigDir, tokenFileName)
		if err := fsutil.WriteFileAtomic(tokenPath, []byte(token+"\n"), 0o600); err != nil {
			return fmt.Errorf("packaging: write token: %w", err)
		}
		ins.logger.Info("api token written", "path", tokenPath)
	}

	configPath := filepath.Join(ins.cfg.ConfigDir, configFileName)
	switch _, err := os.Stat(configPath); {
	case errors.Is(err, os.ErrNotExist):
		content := GenerateDefaultConfig(ins.cfg.GatewayURL, ins.cfg.Listen, tokenPath)
		if err := fsutil.WriteFileAtomic(configPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("packaging: write config: %w", err)
		}
		ins.logger.Info("default config written", "path", configPath)
	case err == nil:
		ins.logger.Info("existing config preserved", "path", configPath)
	default:
		return fmt.Errorf("packaging: stat config: %w", err)
	}

	if err := fsutil.WriteFileAtomic(ins.cfg.UnitFilePath, []byte(GenerateUnitFile(ins.cfg)), 0o644); err != nil {
		return fmt.Errorf("packaging: write unit file: %w", err)
	}
	ins.logger.Info("unit file written", "path", ins.cfg.UnitFilePath)

	if err := ins.systemd.DaemonReload(); err != nil {
		return fmt.Errorf("packaging: daemon-reload: %w", err)
	}
	ins.logger.Info("systemd daemon reloaded")
	return nil
}

// Uninstall stops and removes the service. With purge the config and state
// directories are removed too. It is a no-op when no unit file exists.
func (ins *Installer) Uninstall(purge bool) error {
	if !ins.root.IsRoot() {
		return errors.New("packaging: uninstall requires root privileges")
	}
	if _, err := os.Stat(ins.cfg.UnitFilePath); errors.Is(err, os.ErrNotExist) {
		ins.logger.Info("pcpmon is not installed, nothing to do")
		return nil
	}

	// Stop and disable fail when the unit is inactive or was never enabled.
	service := ins.cfg.ServiceName
	steps := []struct {
		op  string
		run func(string) error
	}{
		{"stop", ins.systemd.Stop},
		{"disable", ins.systemd.Disable},
	}
	for _, step := range steps {
		if err := step.run(service); err != nil {
			ins.logger.Info("systemctl "+step.op+" failed, continuing", "service", service, "error", err)
		}
	}

	if err := removeIfExists(ins.cfg.UnitFilePath); err != nil {
		return fmt.Errorf("packaging: remove unit file: %w", err)
	}
	ins.logger.Info("unit file removed", "path", ins.cfg.UnitFilePath)

	if err := ins.systemd.DaemonReload(); err != nil {
		return fmt.Errorf("packaging: daemon-reload: %w", err)
	}

	if err := removeIfExists(ins.cfg.BinaryPath); err != nil {
		return fmt.Errorf("packaging: remove binary: %w", err)
	}
	ins.logger.Info("binary removed", "path", ins.cfg.BinaryPath)

	if !purge {
		return nil
	}
	for _, dir := range []string{ins.cfg.StateDir, ins.cfg.ConfigDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("packaging: purge %s: %w", dir, err)
		}
		ins.logger.Info("directory purged", "path", dir)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// copyBinary installs the running executable at BinaryPath. The copy goes to
// a temporary file that is renamed into place, so a binary that is currently
// executing is replaced rather than truncated.
func (ins *Installer) copyBinary() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("packaging: resolve executable path: %w", err)
	}
	if self, err = filepath.EvalSymlinks(self); err != nil {
		return fmt.Errorf("packaging: resolve symlinks: %w", err)
	}
	dst := ins.cfg.BinaryPath
	if self == dst {
		ins.logger.Info("binary already at install path", "path", dst)
		return nil
	}

	src, err := os.Open(self)
	if err != nil {
		return fmt.Errorf("packaging: open executable: %w", err)
	}
	defer src.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("packaging: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".pcpmon-*")
	if err != nil {
		return fmt.Errorf("packaging: create temp binary: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, src)
	if err == nil {
		err = tmp.Chmod(0o755)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		return fmt.Errorf("packaging: install binary: %w", err)
	}

	ins.logger.Info("binary installed", "src", self, "dst", dst)
	return nil
}

// token returns the configured bearer token, or "" when none was given.
func (ins *Installer) token() (string, error) {
	token := strings.TrimSpace(ins.cfg.TokenValue)
	if token == "" && ins.cfg.TokenFile != "" {
		data, err := os.ReadFile(ins.cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("packaging: read token file %q: %w", ins.cfg.TokenFile, err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return "", nil
	}
	if err := validateToken(token); err != nil {
		return "", err
	}
	return token, nil
}

func validateToken(token string) error {
	if len(token) > maxTokenLength {
		return fmt.Errorf("packaging: token exceeds maximum length of %d bytes", maxTokenLength)
	}
	for i := 0; i < len(token); i++ {
		if token[i] < 0x21 || token[i] > 0x7E {
			return errors.New("packaging: token contains whitespace or non-printable characters")
		}
	}
	return nil
}
