package packaging

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

type mockSystemdController struct {
	available       bool
	daemonReloadErr error
	disableErr      error
	stopErr         error

	daemonReloadCalls int
	enableCalls       []string
	disableCalls      []string
	stopCalls         []string
}

func (m *mockSystemdController) IsAvailable() bool { return m.available }

func (m *mockSystemdController) DaemonReload() error {
	m.daemonReloadCalls++
	return m.daemonReloadErr
}

func (m *mockSystemdController) Enable(service string) error {
	m.enableCalls = append(m.enableCalls, service)
	return nil
}

func (m *mockSystemdController) Disable(service string) error {
	m.disableCalls = append(m.disableCalls, service)
	return m.disableErr
}

func (m *mockSystemdController) Stop(service string) error {
	m.stopCalls = append(m.stopCalls, service)
	return m.stopErr
}

type mockRootChecker struct {
	isRoot bool
}

func (m *mockRootChecker) IsRoot() bool { return m.isRoot }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPaths returns an InstallConfig whose paths all live below a temp dir.
func testPaths(t *testing.T) (InstallConfig, string) {
	t.Helper()
	tmp := t.TempDir()
	return InstallConfig{
		BinaryPath:   filepath.Join(tmp, "usr", "local", "bin", "pcpmon"),
		ConfigDir:    filepath.Join(tmp, "etc", "pcpmon"),
		StateDir:     filepath.Join(tmp, "var", "lib", "pcpmon"),
		UnitFilePath: filepath.Join(tmp, "etc", "systemd", "system", "pcpmon.service"),
	}, tmp
}
