package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plexsphere/pcpmon/internal/metrics"
)

var (
	tcpMetrics = []string{
		"network.tcp.activeopens",
		"network.tcp.passiveopens",
		"network.tcp.attemptfails",
		"network.tcp.estabresets",
		"network.tcp.currestab",
		"network.tcp.retranssegs",
		"network.tcp.inerrs",
		"network.tcp.outrsts",
	}
	udpMetrics = []string{
		"network.udp.indatagrams",
		"network.udp.outdatagrams",
		"network.udp.inerrors",
		"network.udp.noports",
	}
	interfaceErrorMetrics = []string{
		"network.interface.in.errors",
		"network.interface.out.errors",
		"network.interface.in.drops",
	}
)

// TCPStats holds TCP protocol counters as per-second rates. CurrentEstablished
// is the instantaneous connection count.
type TCPStats struct {
	ActiveOpensPerSec  float64 `json:"active_opens_per_sec"`
	PassiveOpensPerSec float64 `json:"passive_opens_per_sec"`
	AttemptFailsPerSec float64 `json:"attempt_fails_per_sec"`
	EstabResetsPerSec  float64 `json:"estab_resets_per_sec"`
	RetransmitsPerSec  float64 `json:"retransmits_per_sec"`
	InErrorsPerSec     float64 `json:"in_errors_per_sec"`
	OutResetsPerSec    float64 `json:"out_resets_per_sec"`
	CurrentEstablished int     `json:"current_established"`
}

// UDPStats holds UDP protocol counters as per-second rates.
type UDPStats struct {
	InDatagramsPerSec  float64 `json:"in_datagrams_per_sec"`
	OutDatagramsPerSec float64 `json:"out_datagrams_per_sec"`
	InErrorsPerSec     float64 `json:"in_errors_per_sec"`
	NoPortsPerSec      float64 `json:"no_ports_per_sec"`
}

// InterfaceErrors holds error and drop rates of one network interface.
type InterfaceErrors struct {
	Interface       string  `json:"interface"`
	InErrorsPerSec  float64 `json:"in_errors_per_sec"`
	OutErrorsPerSec float64 `json:"out_errors_per_sec"`
	InDropsPerSec   float64 `json:"in_drops_per_sec"`
}

// NetworkStats is the protocol-level network health of one host.
type NetworkStats struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Host       string                     `json:"host"`
	TCP        TCPStats                   `json:"tcp"`
	UDP        UDPStats                   `json:"udp"`
	Interfaces []InterfaceErrors          `json:"interface_errors"`
	Assessment string                     `json:"assessment"`
	Missing    []metrics.MetricAnnotation `json:"missing,omitempty"`
}

// NetworkStats samples TCP, UDP and interface error counters on host.
func (b *Builder) NetworkStats(ctx context.Context, host string, interval time.Duration) (*NetworkStats, error) {
	if err := validateSampleInterval(interval, MinSampleInterval, MaxSampleInterval); err != nil {
		return nil, err
	}
	names := appendUnique(nil, tcpMetrics...)
	names = appendUnique(names, udpMetrics...)
	names = appendUnique(names, interfaceErrorMetrics...)

	report, err := b.source.Rates(ctx, host, names, interval)
	if err != nil {
		return nil, fmt.Errorf("snapshot: network stats: %w", err)
	}
	stats := BuildNetworkStats(report)
	stats.Timestamp = b.now().UTC()
	return stats, nil
}

// BuildNetworkStats builds protocol statistics and their assessment from r.
func BuildNetworkStats(r *metrics.RateReport) *NetworkStats {
	s := &NetworkStats{
		Host: r.Host,
		TCP: TCPStats{
			ActiveOpensPerSec:  round(r.First("network.tcp.activeopens"), 1),
			PassiveOpensPerSec: round(r.First("network.tcp.passiveopens"), 1),
			AttemptFailsPerSec: round(r.First("network.tcp.attemptfails"), 1),
			EstabResetsPerSec:  round(r.First("network.tcp.estabresets"), 1),
			RetransmitsPerSec:  round(r.First("network.tcp.retranssegs"), 1),
			InErrorsPerSec:     round(r.First("network.tcp.inerrs"), 1),
			OutResetsPerSec:    round(r.First("network.tcp.outrsts"), 1),
			CurrentEstablished: int(r.First("network.tcp.currestab")),
		},
		UDP: UDPStats{
			InDatagramsPerSec:  round(r.First("network.udp.indatagrams"), 1),
			OutDatagramsPerSec: round(r.First("network.udp.outdatagrams"), 1),
			InErrorsPerSec:     round(r.First("network.udp.inerrors"), 1),
			NoPortsPerSec:      round(r.First("network.udp.noports"), 1),
		},
		Missing: r.Missing,
	}

	byIface := make(map[string]*InterfaceErrors)
	iface := func(name string) *InterfaceErrors {
		e, ok := byIface[name]
		if !ok {
			e = &InterfaceErrors{Interface: name}
			byIface[name] = e
		}
		return e
	}
	for _, res := range r.Instances("network.interface.in.errors") {
		iface(res.Instance).InErrorsPerSec = round(res.Value, 1)
	}
	for _, res := range r.Instances("network.interface.out.errors") {
		iface(res.Instance).OutErrorsPerSec = round(res.Value, 1)
	}
	for _, res := range r.Instances("network.interface.in.drops") {
		iface(res.Instance).InDropsPerSec = round(res.Value, 1)
	}
	for _, e := range byIface {
		s.Interfaces = append(s.Interfaces, *e)
	}
	sort.Slice(s.Interfaces, func(i, j int) bool { return s.Interfaces[i].Interface < s.Interfaces[j].Interface })

	s.Assessment = assessNetworkStats(s)
	return s
}

func assessNetworkStats(s *NetworkStats) string {
	var issues []string
	switch {
	case s.TCP.RetransmitsPerSec > 100:
		issues = append(issues, fmt.Sprintf("heavy TCP retransmissions (%.0f/s)", s.TCP.RetransmitsPerSec))
	case s.TCP.RetransmitsPerSec > 10:
		issues = append(issues, fmt.Sprintf("moderate TCP retransmissions (%.0f/s)", s.TCP.RetransmitsPerSec))
	}
	if s.TCP.AttemptFailsPerSec > 10 {
		issues = append(issues, fmt.Sprintf("high TCP connection failures (%.0f/s)", s.TCP.AttemptFailsPerSec))
	}
	if s.TCP.EstabResetsPerSec > 10 {
		issues = append(issues, fmt.Sprintf("frequent TCP resets (%.0f/s)", s.TCP.EstabResetsPerSec))
	}
	if s.UDP.InErrorsPerSec > 10 {
		issues = append(issues, fmt.Sprintf("UDP receive errors (%.0f/s)", s.UDP.InErrorsPerSec))
	}

	var bad []string
	for _, e := range s.Interfaces {
		if e.InErrorsPerSec > 0 || e.OutErrorsPerSec > 0 || e.InDropsPerSec > 0 {
			bad = append(bad, e.Interface)
		}
	}
	if len(bad) > 0 {
		issues = append(issues, "interface errors on "+strings.Join(bad, ", "))
	}

	if len(issues) == 0 {
		return "Network protocol health is normal"
	}
	return "Issues detected: " + strings.Join(issues, "; ")
}
