package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ContextResponse is returned by GET /pmapi/context.
type ContextResponse struct {
	Context  json.Number `json:"context"`
	Source   string      `json:"source,omitempty"`
	Hostspec string      `json:"hostspec,omitempty"`
	Hostname string      `json:"hostname,omitempty"`
}

// ID returns the opaque context token.
func (r *ContextResponse) ID() string {
	return r.Context.String()
}

// Timestamp is the gateway capture time of a fetch. pmproxy reports it either
// as {"s": 1547483646, "us": 2804} or as fractional seconds.
type Timestamp struct {
	Sec  int64 `json:"s"`
	USec int64 `json:"us"`
}

// UnmarshalJSON accepts both the object and the number encoding.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '{' {
		type plain Timestamp
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("api: timestamp: %w", err)
		}
		*t = Timestamp(p)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("api: timestamp: %w", err)
	}
	sec := int64(f)
	*t = Timestamp{Sec: sec, USec: int64((f - float64(sec)) * 1e6)}
	return nil
}

// IsZero reports whether the timestamp was absent.
func (t Timestamp) IsZero() bool {
	return t.Sec == 0 && t.USec == 0
}

// Time converts the timestamp to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Sec, t.USec*int64(time.Microsecond))
}

// FetchResponse is returned by GET /pmapi/fetch.
type FetchResponse struct {
	Context   json.Number  `json:"context,omitempty"`
	Timestamp Timestamp    `json:"timestamp"`
	Values    []FetchValue `json:"values"`
}

// FetchValue holds the instances returned for one metric.
type FetchValue struct {
	PMID      string          `json:"pmid,omitempty"`
	Name      string          `json:"name"`
	Instances []FetchInstance `json:"instances"`
}

// FetchInstance is one instance value. Instance is null or -1 for singular
// metrics and a numeric or string identifier otherwise.
type FetchInstance struct {
	Instance json.RawMessage `json:"instance"`
	Value    json.RawMessage `json:"value"`
}

// InstanceID returns the instance identifier as a string and false for the
// singular (null or -1) instance.
func (i FetchInstance) InstanceID() (string, bool) {
	raw := bytes.TrimSpace(i.Instance)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	}
	s := string(raw)
	if s == "-1" {
		return "", false
	}
	return s, true
}

// DecodeValue decodes the instance value. Numeric values (including numbers
// sent as strings) are returned as num; anything else is returned as text with
// isText set.
func (i FetchInstance) DecodeValue() (num float64, text string, isText bool, err error) {
	raw := bytes.TrimSpace(i.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, "", false, fmt.Errorf("api: missing value")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, "", false, fmt.Errorf("api: decode value: %w", err)
		}
		if f, perr := strconv.ParseFloat(s, 64); perr == nil {
			return f, "", false, nil
		}
		return 0, s, true, nil
	}
	f, perr := strconv.ParseFloat(string(raw), 64)
	if perr != nil {
		return 0, "", false, fmt.Errorf("api: decode value: %w", perr)
	}
	return f, "", false, nil
}

// MetricResponse is returned by GET /pmapi/metric.
type MetricResponse struct {
	Context json.Number  `json:"context,omitempty"`
	Metrics []MetricInfo `json:"metrics"`
}

// MetricInfo describes one metric in the gateway namespace.
type MetricInfo struct {
	Name        string `json:"name"`
	PMID        string `json:"pmid,omitempty"`
	InDom       string `json:"indom,omitempty"`
	Type        string `json:"type"`
	Sem         string `json:"sem"`
	Units       string `json:"units"`
	UnitsSpace  string `json:"units-space,omitempty"`
	UnitsTime   string `json:"units-time,omitempty"`
	UnitsCount  string `json:"units-count,omitempty"`
	TextOneLine string `json:"text-oneline,omitempty"`
	TextHelp    string `json:"text-help,omitempty"`
}

// HasInstances reports whether the metric has an instance domain.
func (m MetricInfo) HasInstances() bool {
	switch m.InDom {
	case "", "none", "PM_INDOM_NULL", "0xffffffff", "4294967295":
		return false
	}
	return true
}

// UnitString returns the human readable unit. When the combined "units" field
// is empty it is assembled from the space, time and count components.
func (m MetricInfo) UnitString() string {
	if m.Units != "" && m.Units != "none" {
		return m.Units
	}
	var parts []string
	for _, p := range []string{m.UnitsSpace, m.UnitsTime, m.UnitsCount} {
		if p != "" && p != "none" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += " / " + p
	}
	return out
}

// Help returns the long help text, falling back to the one-line text.
func (m MetricInfo) Help() string {
	if m.TextHelp != "" {
		return m.TextHelp
	}
	if m.TextOneLine != "" {
		return m.TextOneLine
	}
	return "no description available"
}
