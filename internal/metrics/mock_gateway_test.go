package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/plexsphere/pcpmon/internal/api"
	"github.com/plexsphere/pcpmon/internal/cache"
	"github.com/plexsphere/pcpmon/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errExpired = &api.APIError{StatusCode: 400, Message: "unknown context identifier"}

// reading maps an instance identifier to a value. The empty identifier is
// the singular instance.
type reading map[string]any

func scalar(v any) reading { return reading{"": v} }

// fakeGateway is an in-memory pmproxy. Fetch values are served from a
// per-metric queue; the last entry repeats once the queue is drained.
type fakeGateway struct {
	mu         sync.Mutex
	calls      map[string]int
	nextCtx    int
	fetches    int
	metrics    map[string]api.MetricInfo
	series     map[string][]reading
	timestamps []api.Timestamp
	// expireFetch lists 1-based fetch numbers answered with an expired
	// context error.
	expireFetch map[int]bool
	// lookupErr, when set, fails every /pmapi/metric request.
	lookupErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls:       make(map[string]int),
		metrics:     make(map[string]api.MetricInfo),
		series:      make(map[string][]reading),
		expireFetch: make(map[int]bool),
	}
}

// define registers a metric in the namespace.
func (g *fakeGateway) define(name, sem, units string, values ...reading) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metrics[name] = api.MetricInfo{
		Name:        name,
		Type:        "U64",
		Sem:         sem,
		Units:       units,
		TextOneLine: name + " from the gateway",
	}
	g.series[name] = append(g.series[name], values...)
}

func (g *fakeGateway) stamp(ts ...api.Timestamp) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timestamps = append(g.timestamps, ts...)
}

func (g *fakeGateway) count(path string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[path]
}

func (g *fakeGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *fakeGateway) Get(_ context.Context, path string, params url.Values, result any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[path]++

	var body any
	switch path {
	case api.PathContext:
		g.nextCtx++
		body = map[string]any{"context": g.nextCtx, "hostspec": params.Get("hostspec")}
	case api.PathFetch:
		g.fetches++
		if g.expireFetch[g.fetches] {
			return errExpired
		}
		names := strings.Split(params.Get("names"), ",")
		for _, n := range names {
			if _, ok := g.metrics[n]; !ok {
				return &api.APIError{StatusCode: 400, Message: "Unknown metric name: " + n}
			}
		}
		values := []any{}
		for _, n := range names {
			r, ok := g.pop(n)
			if !ok {
				continue
			}
			values = append(values, map[string]any{"name": n, "instances": encodeInstances(r)})
		}
		resp := map[string]any{"context": params.Get("context"), "values": values}
		if len(g.timestamps) > 0 {
			resp["timestamp"] = g.timestamps[0]
			g.timestamps = g.timestamps[1:]
		}
		body = resp
	case api.PathMetric:
		if g.lookupErr != nil {
			return g.lookupErr
		}
		var infos []api.MetricInfo
		if names := params.Get("names"); names != "" {
			for _, n := range strings.Split(names, ",") {
				info, ok := g.metrics[n]
				if !ok {
					return &api.APIError{StatusCode: 400, Message: "Unknown metric name: " + n}
				}
				infos = append(infos, info)
			}
		} else {
			prefix := params.Get("prefix")
			for name, info := range g.metrics {
				if strings.HasPrefix(name, prefix) {
					infos = append(infos, info)
				}
			}
		}
		body = map[string]any{"metrics": infos}
	default:
		return fmt.Errorf("unexpected path %s", path)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

// pop returns the next queued reading of name. Caller must hold g.mu.
func (g *fakeGateway) pop(name string) (reading, bool) {
	q := g.series[name]
	if len(q) == 0 {
		return nil, false
	}
	r := q[0]
	if len(q) > 1 {
		g.series[name] = q[1:]
	}
	return r, true
}

func encodeInstances(r reading) []any {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		var inst any
		switch _, err := strconv.Atoi(id); {
		case id == "":
			inst = nil
		case err == nil:
			inst = json.Number(id)
		default:
			inst = id
		}
		out = append(out, map[string]any{"instance": inst, "value": r[id]})
	}
	return out
}

// fakeClock advances by the requested delay whenever After is called, so
// sampling pairs complete immediately.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
	// onAfter, when set, replaces the immediate firing.
	onAfter func(d time.Duration) <-chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	if c.onAfter != nil {
		return c.onAfter(d)
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	t := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- t
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	gw       *fakeGateway
	sessions *session.Manager
	cache    *cache.Cache
	clock    *fakeClock
}

func newTestEnv() *testEnv {
	gw := newFakeGateway()
	c, err := cache.New(cache.Config{})
	if err != nil {
		panic(err)
	}
	clk := newFakeClock()
	c.SetClock(clk.Now)
	return &testEnv{
		gw:       gw,
		sessions: session.NewManager(gw, session.Config{}, discardLogger()),
		cache:    c,
		clock:    clk,
	}
}

func (e *testEnv) sampler() *Sampler {
	s := NewSampler(e.gw, e.sessions, DefaultMinInterval, DefaultMaxInterval, discardLogger())
	s.SetClock(e.clock)
	return s
}

func (e *testEnv) engine(cfg Config) (*Engine, error) {
	eng, err := NewEngine(e.gw, e.sessions, e.cache, cfg, discardLogger())
	if err != nil {
		return nil, err
	}
	eng.Sampler().SetClock(e.clock)
	return eng, nil
}
