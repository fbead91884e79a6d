// Package metrics turns gateway readings into point-in-time values and
// per-second rates.
//
// The Classifier decides how each metric must be interpreted, the Sampler
// fetches one or two SampleSets through a session, and the Calculator derives
// results from a pair. Engine bundles them behind Query, Rates, Search and
// Describe.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Kind is the semantic class of a metric.
type Kind int

const (
	// KindInstant is a gauge; the current value is meaningful on its own.
	KindInstant Kind = iota
	// KindCounter is a monotonically increasing cumulative value.
	KindCounter
	// KindDiscrete is a value that rarely or never changes.
	KindDiscrete
)

// String returns the gateway's name for the kind.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindDiscrete:
		return "discrete"
	default:
		return "instant"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}

// ParseKind maps the gateway "sem" field to a Kind. Unknown semantics are
// treated as instant so a value is never turned into a rate by accident.
func ParseKind(sem string) Kind {
	switch sem {
	case "counter":
		return KindCounter
	case "discrete":
		return KindDiscrete
	default:
		return KindInstant
	}
}

// Descriptor is the immutable metadata of a metric.
type Descriptor struct {
	Name         string `json:"name"`
	Kind         Kind   `json:"kind"`
	Unit         string `json:"unit"`
	Type         string `json:"type,omitempty"`
	HasInstances bool   `json:"has_instances"`
	Help         string `json:"help,omitempty"`
	InDom        string `json:"indom,omitempty"`
}

// Value is a gateway value: a number, or text for string-typed metrics.
type Value struct {
	Number float64
	Text   string
	IsText bool
}

// NumberValue returns a numeric Value.
func NumberValue(f float64) Value { return Value{Number: f} }

// TextValue returns a text Value.
func TextValue(s string) Value { return Value{Text: s, IsText: true} }

// String formats the value for display.
func (v Value) String() string {
	if v.IsText {
		return v.Text
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

// MarshalJSON encodes numbers as JSON numbers and text as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return []byte(strconv.Quote(v.Text)), nil
	}
	if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v.Number, 'g', -1, 64)), nil
}

// Reading is everything one fetch returned for one metric: a scalar for
// singular metrics or a value per instance.
type Reading struct {
	Metric string
	Scalar Value
	// Instances is nil for singular metrics.
	Instances map[string]Value
}

// Sample is one (metric, instance) value with its capture time. Instance is
// empty for the singular instance.
type Sample struct {
	Metric     string    `json:"metric"`
	Instance   string    `json:"instance,omitempty"`
	Value      Value     `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
}

// MetricAnnotation records why a requested metric is absent from a result.
type MetricAnnotation struct {
	Metric string `json:"metric"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Annotation reasons.
const (
	ReasonUnknownMetric = "unknown metric"
	ReasonNoValues      = "no values returned"
	ReasonDecode        = "undecodable value"
	ReasonClassify      = "classification failed"
)

// SampleSet is the result of one fetch: readings keyed by metric with a
// single capture time and the session that produced them.
type SampleSet struct {
	Host       string
	SessionID  string
	CapturedAt time.Time
	// Order lists metric names in request order.
	Order    []string
	Readings map[string]Reading
	Missing  []MetricAnnotation
}

// Reading returns the reading for metric.
func (s *SampleSet) Reading(metric string) (Reading, bool) {
	r, ok := s.Readings[metric]
	return r, ok
}

// Sample returns the sample for (metric, instance).
func (s *SampleSet) Sample(metric, instance string) (Sample, bool) {
	r, ok := s.Readings[metric]
	if !ok {
		return Sample{}, false
	}
	if r.Instances == nil {
		if instance != "" {
			return Sample{}, false
		}
		return Sample{Metric: metric, Value: r.Scalar, CapturedAt: s.CapturedAt}, true
	}
	v, ok := r.Instances[instance]
	if !ok {
		return Sample{}, false
	}
	return Sample{Metric: metric, Instance: instance, Value: v, CapturedAt: s.CapturedAt}, true
}

// Samples returns every sample of metric, instances sorted.
func (s *SampleSet) Samples(metric string) []Sample {
	r, ok := s.Readings[metric]
	if !ok {
		return nil
	}
	if r.Instances == nil {
		return []Sample{{Metric: metric, Value: r.Scalar, CapturedAt: s.CapturedAt}}
	}
	out := make([]Sample, 0, len(r.Instances))
	for _, inst := range sortedInstances(r.Instances) {
		out = append(out, Sample{Metric: metric, Instance: inst, Value: r.Instances[inst], CapturedAt: s.CapturedAt})
	}
	return out
}

// RateResult is a derived value for one (metric, instance).
type RateResult struct {
	Metric   string  `json:"metric"`
	Instance string  `json:"instance,omitempty"`
	Value    float64 `json:"value"`
	Text     string  `json:"text,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	// IsRate is true only for counters derived from two samples.
	IsRate bool `json:"is_rate"`
	// Reset is true when the counter went backwards and the second value was
	// taken as the delta.
	Reset bool `json:"reset,omitempty"`
}

// String formats the result for display.
func (r RateResult) String() string {
	name := r.Metric
	if r.Instance != "" {
		name += "[" + r.Instance + "]"
	}
	if r.Text != "" {
		return name + " = " + r.Text
	}
	v := strconv.FormatFloat(r.Value, 'f', 2, 64)
	unit := r.Unit
	if r.IsRate {
		unit += "/s"
	}
	return fmt.Sprintf("%s = %s %s", name, v, unit)
}

// instanceLess orders instance identifiers numerically when both are
// numbers and lexically otherwise.
func instanceLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

func sortedInstances(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return instanceLess(keys[i], keys[j]) })
	return keys
}
