package packaging

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

type systemctl struct{}

// NewSystemdController returns a SystemdController backed by systemctl.
func NewSystemdController() SystemdController {
	return systemctl{}
}

func (systemctl) IsAvailable() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

func (s systemctl) DaemonReload() error { return s.run("daemon-reload") }
func (s systemctl) Enable(service string) error { return s.run("enable", service) }
func (s systemctl) Disable(service string) error { return s.run("disable", service) }
func (s systemctl) Stop(service string) error { return s.run("stop", service) }

func (systemctl) run(args ...string) error {
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("packaging: systemctl %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return nil
}

type uidChecker struct{}

// NewRootChecker returns a RootChecker that checks the process UID.
func NewRootChecker() RootChecker {
	return uidChecker{}
}

func (uidChecker) IsRoot() bool {
	return os.Getuid() == 0
}
