package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeMetric describes how the fake gateway answers for one metric. value is
// called with the fetch sequence number, starting at 0.
type fakeMetric struct {
	sem       string
	units     string
	instances []string
	value     func(tick int) any
}

// fakePMProxy is an in-memory pmproxy. Every fetch advances the gateway
// clock by one second so counter rates are deterministic.
type fakePMProxy struct {
	mu      sync.Mutex
	metrics map[string]fakeMetric
	ticks   int
	fetches int
}

func newFakePMProxy(t *testing.T) (*fakePMProxy, *httptest.Server) {
	t.Helper()
	f := &fakePMProxy{metrics: map[string]fakeMetric{
		"kernel.all.cpu.user": {sem: "counter", units: "millisec", value: func(tick int) any { return 1000 + tick*250 }},
		"kernel.all.load": {sem: "instant", units: "none", instances: []string{"1", "5", "15"},
			value: func(int) any { return 0.5 }},
		"hinv.ncpu":            {sem: "discrete", units: "count", value: func(int) any { return 4 }},
		"kernel.uname.release": {sem: "discrete", units: "none", value: func(int) any { return "6.1.0" }},
		"mem.physmem":          {sem: "discrete", units: "Kbyte", value: func(int) any { return 8 * 1024 * 1024 }},
		"mem.util.available":   {sem: "instant", units: "Kbyte", value: func(int) any { return 4 * 1024 * 1024 }},
		"pmcd.agent.status":    {sem: "instant", units: "none", instances: []string{"2", "58"}, value: func(int) any { return 0 }},
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("/pmapi/context", func(w http.ResponseWriter, r *http.Request) {
		writeFakeJSON(w, map[string]any{"context": 42, "hostspec": r.URL.Query().Get("hostspec")})
	})
	mux.HandleFunc("/pmapi/fetch", f.handleFetch)
	mux.HandleFunc("/pmapi/metric", f.handleMetric)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakePMProxy) handleFetch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	tick := f.ticks
	f.ticks++
	f.fetches++
	f.mu.Unlock()

	var values []map[string]any
	for _, name := range strings.Split(r.URL.Query().Get("names"), ",") {
		m, ok := f.metrics[name]
		if !ok {
			continue
		}
		var insts []map[string]any
		if len(m.instances) == 0 {
			insts = append(insts, map[string]any{"instance": nil, "value": m.value(tick)})
		}
		for _, id := range m.instances {
			insts = append(insts, map[string]any{"instance": id, "value": m.value(tick)})
		}
		values = append(values, map[string]any{"name": name, "instances": insts})
	}
	writeFakeJSON(w, map[string]any{
		"context":   42,
		"timestamp": map[string]int64{"s": 1_700_000_000 + int64(tick), "us": 0},
		"values":    values,
	})
}

func (f *fakePMProxy) handleMetric(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var out []map[string]any
	for name, m := range f.metrics {
		switch {
		case q.Get("names") != "":
			if !contains(strings.Split(q.Get("names"), ","), name) {
				continue
			}
		case !strings.HasPrefix(name, q.Get("prefix")):
			continue
		}
		indom := "PM_INDOM_NULL"
		if len(m.instances) > 0 {
			indom = "60.2"
		}
		out = append(out, map[string]any{
			"name":         name,
			"type":         "U64",
			"sem":          m.sem,
			"units":        m.units,
			"indom":        indom,
			"text-oneline": "fake " + name,
		})
	}
	if len(out) == 0 && q.Get("names") != "" {
		w.WriteHeader(http.StatusBadRequest)
		writeFakeJSON(w, map[string]any{"success": false, "message": "Unknown metric name"})
		return
	}
	writeFakeJSON(w, map[string]any{"context": 42, "metrics": out})
}

func (f *fakePMProxy) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func writeFakeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
