package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plexsphere/pcpmon/internal/api"
)

func newEngine(t *testing.T, env *testEnv, cfg Config) *Engine {
	t.Helper()
	e, err := env.engine(cfg)
	require.NoError(t, err)
	return e
}

func TestRates_CounterAndInstant(t *testing.T) {
	env := newTestEnv()
	env.gw.define("disk.all.read", "counter", "count", scalar(1000), scalar(1500))
	env.gw.define("mem.util.used", "instant", "Kbyte", scalar(4000), scalar(4352))
	env.gw.stamp(api.Timestamp{Sec: 100}, api.Timestamp{Sec: 101})
	e := newEngine(t, env, Config{})

	report, err := e.Rates(context.Background(), "", []string{"disk.all.read", "mem.util.used"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, "localhost", report.Host)
	require.Equal(t, time.Second, report.Elapsed)
	require.Empty(t, report.Missing)

	read, ok := report.Lookup("disk.all.read", "")
	require.True(t, ok)
	require.Equal(t, 500.0, read.Value)
	require.True(t, read.IsRate)

	used, ok := report.Lookup("mem.util.used", "")
	require.True(t, ok)
	require.Equal(t, 4352.0, used.Value)
	require.False(t, used.IsRate)

	// Both names are well known: no metadata lookups.
	require.Zero(t, env.gw.count(api.PathMetric))
	require.Equal(t, 2, env.gw.count(api.PathFetch))
}

func TestRates_CounterResetClamped(t *testing.T) {
	env := newTestEnv()
	env.gw.define("disk.all.read", "counter", "count", scalar(1000), scalar(50))
	env.gw.stamp(api.Timestamp{Sec: 100}, api.Timestamp{Sec: 102})
	e := newEngine(t, env, Config{})

	report, err := e.Rates(context.Background(), "", []string{"disk.all.read"}, 2*time.Second)
	require.NoError(t, err)
	r, ok := report.Lookup("disk.all.read", "")
	require.True(t, ok)
	require.Equal(t, 25.0, r.Value)
	require.True(t, r.Reset)
}

func TestRates_StrictCountersRejectDecrease(t *testing.T) {
	env := newTestEnv()
	env.gw.define("disk.all.read", "counter", "count", scalar(1000), scalar(50))
	e := newEngine(t, env, Config{StrictCounters: true})

	_, err := e.Rates(context.Background(), "", []string{"disk.all.read"}, time.Second)
	require.ErrorIs(t, err, ErrRateCalculation)
}

func TestRates_InstantOnlyFetchesOnce(t *testing.T) {
	env := newTestEnv()
	env.gw.define("mem.util.used", "instant", "Kbyte", scalar(4352))
	env.gw.define("hinv.ncpu", "discrete", "count", scalar(8))
	e := newEngine(t, env, Config{})

	report, err := e.Rates(context.Background(), "", []string{"mem.util.used", "hinv.ncpu"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, env.gw.count(api.PathFetch))
	require.Equal(t, 8.0, report.First("hinv.ncpu"))
	require.Zero(t, report.Elapsed)
}

func TestRates_PerInstanceCounters(t *testing.T) {
	env := newTestEnv()
	env.gw.define("network.interface.in.bytes", "counter", "byte",
		reading{"eth0": 1000, "lo": 10},
		reading{"eth0": 3000, "lo": 30},
	)
	env.gw.stamp(api.Timestamp{Sec: 10}, api.Timestamp{Sec: 12})
	e := newEngine(t, env, Config{})

	report, err := e.Rates(context.Background(), "", []string{"network.interface.in.bytes"}, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, report.Instances("network.interface.in.bytes"), 2)
	require.Equal(t, 1010.0, report.Sum("network.interface.in.bytes"))
	eth0, ok := report.Lookup("network.interface.in.bytes", "eth0")
	require.True(t, ok)
	require.Equal(t, 1000.0, eth0.Value)
}

func TestRates_UnknownMetricAnnotated(t *testing.T) {
	env := newTestEnv()
	env.gw.define("disk.all.read", "counter", "count", scalar(0), scalar(10))
	env.gw.stamp(api.Timestamp{Sec: 1}, api.Timestamp{Sec: 2})
	e := newEngine(t, env, Config{})

	report, err := e.Rates(context.Background(), "", []string{"disk.all.read", "no.such.metric"}, time.Second)
	require.NoError(t, err)
	require.True(t, report.Has("disk.all.read"))
	require.False(t, report.Has("no.such.metric"))
	require.Len(t, report.Missing, 1)
	require.Equal(t, "no.such.metric", report.Missing[0].Metric)
	require.Equal(t, ReasonUnknownMetric, report.Missing[0].Reason)
}

func TestRates_OnlyUnknownMetrics(t *testing.T) {
	env := newTestEnv()
	e := newEngine(t, env, Config{})

	report, err := e.Rates(context.Background(), "", []string{"no.such.metric"}, time.Second)
	require.NoError(t, err)
	require.Empty(t, report.Results)
	require.Len(t, report.Missing, 1)
	require.Zero(t, env.gw.count(api.PathFetch))
}

func TestRates_GatewayClassifiedCounter(t *testing.T) {
	env := newTestEnv()
	env.gw.define("app.requests", "counter", "count", scalar(10), scalar(40))
	env.gw.stamp(api.Timestamp{Sec: 1}, api.Timestamp{Sec: 4})
	e := newEngine(t, env, Config{})

	report, err := e.Rates(context.Background(), "", []string{"app.requests"}, time.Second)
	require.NoError(t, err)
	r, ok := report.Lookup("app.requests", "")
	require.True(t, ok)
	require.True(t, r.IsRate)
	require.Equal(t, 10.0, r.Value)
}

func TestEngine_ValidationBeforeNetwork(t *testing.T) {
	env := newTestEnv()
	e := newEngine(t, env, Config{})
	ctx := context.Background()

	tests := []struct {
		name     string
		host     string
		names    []string
		interval time.Duration
	}{
		{"interval too short", "", []string{"disk.all.read"}, 50 * time.Millisecond},
		{"interval too long", "", []string{"disk.all.read"}, time.Minute},
		{"no names", "", nil, time.Second},
		{"bad name", "", []string{"disk all"}, time.Second},
		{"host not allowed", "db9", []string{"disk.all.read"}, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Rates(ctx, tt.host, tt.names, tt.interval)
			require.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
	require.Zero(t, env.gw.total())
}

func TestEngine_AllowedHosts(t *testing.T) {
	env := newTestEnv()
	env.gw.define("mem.util.used", "instant", "Kbyte", scalar(1))

	e := newEngine(t, env, Config{AllowedHosts: []string{"db1"}})
	_, err := e.Query(context.Background(), "db1", []string{"mem.util.used"})
	require.NoError(t, err)
	_, err = e.Query(context.Background(), "db2", []string{"mem.util.used"})
	require.ErrorIs(t, err, ErrInvalidParameter)

	wildcard := newEngine(t, env, Config{AllowedHosts: []string{"*"}})
	_, err = wildcard.Query(context.Background(), "db2", []string{"mem.util.used"})
	require.NoError(t, err)
}

func TestQuery_ReturnsSamplesInOrder(t *testing.T) {
	env := newTestEnv()
	env.gw.define("kernel.all.load", "instant", "none", reading{"1": 0.5, "5": 0.4, "15": 0.3})
	env.gw.define("hinv.ncpu", "discrete", "count", scalar(4))
	e := newEngine(t, env, Config{})

	res, err := e.Query(context.Background(), "", []string{"hinv.ncpu", "kernel.all.load", "no.such.metric"})
	require.NoError(t, err)
	require.Len(t, res.Samples, 4)
	require.Equal(t, "hinv.ncpu", res.Samples[0].Metric)
	require.Equal(t, "15", res.Samples[3].Instance)
	require.Len(t, res.Missing, 1)
}

func TestSearch_SortedAndCached(t *testing.T) {
	env := newTestEnv()
	env.gw.define("kernel.all.nprocs", "instant", "count")
	env.gw.define("kernel.all.cpu.user", "counter", "millisec")
	env.gw.define("mem.util.used", "instant", "Kbyte")
	e := newEngine(t, env, Config{})

	got, err := e.Search(context.Background(), "", "kernel.all")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "kernel.all.cpu.user", got[0].Name)
	require.Equal(t, KindCounter, got[0].Kind)
	require.Equal(t, "kernel.all.nprocs", got[1].Name)

	_, err = e.Search(context.Background(), "", "kernel.all")
	require.NoError(t, err)
	require.Equal(t, 1, env.gw.count(api.PathMetric))
}

func TestSearch_RejectsBadPattern(t *testing.T) {
	env := newTestEnv()
	e := newEngine(t, env, Config{})

	for _, p := range []string{"", "kernel/all", "kernel all", strings.Repeat("a", 257)} {
		_, err := e.Search(context.Background(), "", p)
		require.ErrorIs(t, err, ErrInvalidParameter, "pattern %q", p)
	}
	require.Zero(t, env.gw.total())
}

func TestNamespaces_TopLevelAndActivePMDAs(t *testing.T) {
	env := newTestEnv()
	env.gw.define("kernel.all.load", "instant", "none")
	env.gw.define("kernel.all.nprocs", "instant", "count")
	env.gw.define("mem.physmem", "discrete", "Kbyte")
	env.gw.define("pmcd.agent.status", "instant", "none", reading{"0": 0, "1": -1, "2": 0})
	e := newEngine(t, env, Config{})

	got, err := e.Namespaces(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "localhost", got.Host)
	require.Equal(t, []string{"kernel", "mem", "pmcd"}, got.Namespaces)
	require.Equal(t, []string{"0", "2"}, got.ActivePMDAs)

	_, err = e.Namespaces(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 1, env.gw.count(api.PathMetric))
	require.Equal(t, 1, env.gw.count(api.PathFetch))
}

func TestNamespaces_WithoutPMDAStatus(t *testing.T) {
	env := newTestEnv()
	env.gw.define("disk.all.read", "counter", "count")
	e := newEngine(t, env, Config{})

	got, err := e.Namespaces(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"disk"}, got.Namespaces)
	require.Empty(t, got.ActivePMDAs)
}

func TestNamespaces_RejectsDisallowedHost(t *testing.T) {
	env := newTestEnv()
	e := newEngine(t, env, Config{})

	_, err := e.Namespaces(context.Background(), "db9")
	require.ErrorIs(t, err, ErrInvalidParameter)
	require.Zero(t, env.gw.total())
}

func TestDescribe_UnknownMetric(t *testing.T) {
	env := newTestEnv()
	e := newEngine(t, env, Config{})

	_, err := e.Describe(context.Background(), "", "no.such.metric")
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestPing(t *testing.T) {
	env := newTestEnv()
	e := newEngine(t, env, Config{})
	require.NoError(t, e.Ping(context.Background(), ""))
	require.Equal(t, 1, env.gw.count(api.PathContext))
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	env := newTestEnv()
	_, err := env.engine(Config{MinInterval: time.Second, MaxInterval: time.Millisecond})
	require.Error(t, err)
}
