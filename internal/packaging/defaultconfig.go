package packaging

import (
	"strings"
)

// GenerateDefaultConfig renders a starter config.yaml. Empty arguments leave
// the corresponding setting commented out so the built-in default applies.
func GenerateDefaultConfig(gatewayURL, listen, tokenPath string) string {
	var b strings.Builder
	b.WriteString("# pcpmon configuration\n")
	b.WriteString("# PCP_* variables in the environment file override these values.\n\n")
	b.WriteString("log_level: info\n\n")

	b.WriteString("gateway:\n")
	setting(&b, "base_url", gatewayURL, "http://localhost:44322")
	b.WriteString("\nmetrics:\n  target_host: localhost\n\n")

	b.WriteString("server:\n")
	setting(&b, "listen", listen, "127.0.0.1:9464")
	setting(&b, "token_file", tokenPath, "/etc/pcpmon/api-token")
	return b.String()
}

func setting(b *strings.Builder, key, value, example string) {
	if value == "" {
		b.WriteString("  # " + key + ": " + example + "\n")
		return
	}
	b.WriteString("  " + key + ": " + value + "\n")
}
