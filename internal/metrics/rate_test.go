package metrics

import (
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	counterDesc  = Descriptor{Name: "disk.all.read", Kind: KindCounter, Unit: "count"}
	instantDesc  = Descriptor{Name: "mem.util.used", Kind: KindInstant, Unit: "Kbyte"}
	discreteDesc = Descriptor{Name: "hinv.ncpu", Kind: KindDiscrete, Unit: "count"}
)

func sample(metric string, v float64) Sample {
	return Sample{Metric: metric, Value: NumberValue(v)}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name      string
		s1, s2    Sample
		elapsed   time.Duration
		desc      Descriptor
		wantValue float64
		wantRate  bool
		wantReset bool
	}{
		{
			name:      "counter rate",
			s1:        sample("disk.all.read", 1000),
			s2:        sample("disk.all.read", 1500),
			elapsed:   time.Second,
			desc:      counterDesc,
			wantValue: 500,
			wantRate:  true,
		},
		{
			name:      "counter over fractional interval",
			s1:        sample("disk.all.read", 0),
			s2:        sample("disk.all.read", 300),
			elapsed:   1500 * time.Millisecond,
			desc:      counterDesc,
			wantValue: 200,
			wantRate:  true,
		},
		{
			name:      "counter reset takes second value",
			s1:        sample("disk.all.read", 1000),
			s2:        sample("disk.all.read", 50),
			elapsed:   2 * time.Second,
			desc:      counterDesc,
			wantValue: 25,
			wantRate:  true,
			wantReset: true,
		},
		{
			name:      "instant passes through",
			s1:        sample("mem.util.used", 1),
			s2:        sample("mem.util.used", 4352),
			elapsed:   time.Second,
			desc:      instantDesc,
			wantValue: 4352,
		},
		{
			name:      "instant ignores elapsed",
			s2:        sample("mem.util.used", 4352),
			desc:      instantDesc,
			wantValue: 4352,
		},
		{
			name:      "discrete passes through",
			s2:        sample("hinv.ncpu", 8),
			desc:      discreteDesc,
			wantValue: 8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculator{}.Derive(tt.s1, tt.s2, tt.elapsed, tt.desc)
			if err != nil {
				t.Fatalf("Derive: %v", err)
			}
			if math.Abs(got.Value-tt.wantValue) > 1e-9 {
				t.Errorf("Value = %v, want %v", got.Value, tt.wantValue)
			}
			if got.IsRate != tt.wantRate {
				t.Errorf("IsRate = %v, want %v", got.IsRate, tt.wantRate)
			}
			if got.Reset != tt.wantReset {
				t.Errorf("Reset = %v, want %v", got.Reset, tt.wantReset)
			}
			if got.Unit != tt.desc.Unit {
				t.Errorf("Unit = %q, want %q", got.Unit, tt.desc.Unit)
			}
		})
	}
}

func TestDerive_TextPassesThrough(t *testing.T) {
	s2 := Sample{Metric: "kernel.uname.release", Value: TextValue("6.1.0")}
	got, err := Calculator{}.Derive(Sample{}, s2, 0, Descriptor{Kind: KindDiscrete})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if got.Text != "6.1.0" || got.IsRate {
		t.Errorf("got %+v", got)
	}
}

func TestDerive_CounterErrors(t *testing.T) {
	tests := []struct {
		name    string
		calc    Calculator
		s1, s2  Sample
		elapsed time.Duration
	}{
		{"zero elapsed", Calculator{}, sample("c", 1), sample("c", 2), 0},
		{"negative elapsed", Calculator{}, sample("c", 1), sample("c", 2), -time.Second},
		{"strict decrease", Calculator{Strict: true}, sample("c", 1000), sample("c", 50), time.Second},
		{"text first sample", Calculator{}, Sample{Metric: "c", Value: TextValue("x")}, sample("c", 2), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.calc.Derive(tt.s1, tt.s2, tt.elapsed, counterDesc)
			if !errors.Is(err, ErrRateCalculation) {
				t.Fatalf("err = %v, want ErrRateCalculation", err)
			}
			var rce *RateCalculationError
			if !errors.As(err, &rce) || rce.Metric != "c" {
				t.Errorf("err = %#v, want RateCalculationError for c", err)
			}
		})
	}
}

func newSet(sessionID string, at time.Time, readings ...Reading) *SampleSet {
	s := &SampleSet{SessionID: sessionID, CapturedAt: at, Readings: make(map[string]Reading)}
	for _, r := range readings {
		s.Order = append(s.Order, r.Metric)
		s.Readings[r.Metric] = r
	}
	return s
}

func TestDeriveSet_RejectsMixedSessions(t *testing.T) {
	now := time.Now()
	a := newSet("1", now, Reading{Metric: "disk.all.read", Scalar: NumberValue(1)})
	b := newSet("2", now.Add(time.Second), Reading{Metric: "disk.all.read", Scalar: NumberValue(2)})

	_, _, err := Calculator{}.DeriveSet(a, b, time.Second, map[string]Descriptor{"disk.all.read": counterDesc})
	if !errors.Is(err, ErrRateCalculation) {
		t.Fatalf("err = %v, want ErrRateCalculation", err)
	}
}

func TestDeriveSet_OmitsOneSidedInstances(t *testing.T) {
	now := time.Now()
	desc := Descriptor{Name: "disk.dev.read", Kind: KindCounter, HasInstances: true}
	a := newSet("7", now, Reading{Metric: "disk.dev.read", Instances: map[string]Value{
		"sda": NumberValue(100), "sdb": NumberValue(10),
	}})
	b := newSet("7", now.Add(time.Second), Reading{Metric: "disk.dev.read", Instances: map[string]Value{
		"sdb": NumberValue(30), "sdc": NumberValue(5),
	}})

	results, missing, err := Calculator{}.DeriveSet(a, b, time.Second, map[string]Descriptor{"disk.dev.read": desc})
	if err != nil {
		t.Fatalf("DeriveSet: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("missing = %v, want none", missing)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v, want only sdb", results)
	}
	if results[0].Instance != "sdb" || results[0].Value != 20 {
		t.Errorf("result = %+v, want sdb at 20/s", results[0])
	}
}

func TestDeriveSet_AnnotatesUnclassified(t *testing.T) {
	now := time.Now()
	set := newSet("3", now,
		Reading{Metric: "mem.util.used", Scalar: NumberValue(10)},
		Reading{Metric: "app.custom", Scalar: NumberValue(1)},
	)

	results, missing, err := Calculator{}.DeriveSet(set, set, 0, map[string]Descriptor{"mem.util.used": instantDesc})
	if err != nil {
		t.Fatalf("DeriveSet: %v", err)
	}
	if len(results) != 1 || results[0].Metric != "mem.util.used" {
		t.Errorf("results = %+v", results)
	}
	if len(missing) != 1 || missing[0].Metric != "app.custom" || missing[0].Reason != ReasonClassify {
		t.Errorf("missing = %+v", missing)
	}
}

func TestDeriveSet_KeepsRequestOrder(t *testing.T) {
	now := time.Now()
	a := newSet("1", now,
		Reading{Metric: "disk.all.read", Scalar: NumberValue(0)},
		Reading{Metric: "kernel.all.load", Instances: map[string]Value{"15": NumberValue(0.5), "1": NumberValue(1.5), "5": NumberValue(1)}},
	)
	b := newSet("1", now.Add(time.Second),
		Reading{Metric: "disk.all.read", Scalar: NumberValue(10)},
		Reading{Metric: "kernel.all.load", Instances: map[string]Value{"15": NumberValue(0.6), "1": NumberValue(1.2), "5": NumberValue(0.9)}},
	)
	descs := map[string]Descriptor{"disk.all.read": counterDesc, "kernel.all.load": {Kind: KindInstant}}

	results, _, err := Calculator{}.DeriveSet(a, b, time.Second, descs)
	if err != nil {
		t.Fatalf("DeriveSet: %v", err)
	}
	var got []string
	for _, r := range results {
		got = append(got, r.Metric+"/"+r.Instance)
	}
	want := []string{"disk.all.read/", "kernel.all.load/1", "kernel.all.load/5", "kernel.all.load/15"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRateResult_String(t *testing.T) {
	r := RateResult{Metric: "disk.dev.read", Instance: "sda", Value: 12.5, Unit: "count", IsRate: true}
	if got, want := r.String(), "disk.dev.read[sda] = 12.50 count/s"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
