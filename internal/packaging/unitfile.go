package packaging

import (
	"fmt"
	"path/filepath"
)

// GenerateUnitFile renders the systemd unit that runs "pcpmon serve".
func GenerateUnitFile(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	return fmt.Sprintf(`[Unit]
Description=pcpmon Performance Co-Pilot query API
Documentation=man:pmproxy(1)
After=network-online.target pmproxy.service
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s serve --config %s
EnvironmentFile=-%s
Restart=on-failure
RestartSec=5s
NoNewPrivileges=true
ProtectSystem=strict
ProtectHome=true
PrivateTmp=true
ReadWritePaths=%s

[Install]
WantedBy=multi-user.target
`, cfg.BinaryPath,
		filepath.Join(cfg.ConfigDir, configFileName),
		filepath.Join(cfg.ConfigDir, environmentFileName),
		cfg.StateDir)
}
