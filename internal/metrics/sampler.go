package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plexsphere/pcpmon/internal/api"
	"github.com/plexsphere/pcpmon/internal/session"
)

// Sampler fetches SampleSets through a host session.
type Sampler struct {
	transport   api.Transport
	sessions    Sessions
	clock       api.Clock
	minInterval time.Duration
	maxInterval time.Duration
	logger      *slog.Logger
}

// NewSampler creates a Sampler accepting intervals within [minInterval, maxInterval].
func NewSampler(transport api.Transport, sessions Sessions, minInterval, maxInterval time.Duration, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		transport:   transport,
		sessions:    sessions,
		clock:       api.RealClock{},
		minInterval: minInterval,
		maxInterval: maxInterval,
		logger:      logger.With("component", "sampler"),
	}
}

// SetClock replaces the clock used for the sampling delay and for capture
// times when the gateway reports none. It must be called before the Sampler
// is used; it is not safe for concurrent use.
func (s *Sampler) SetClock(c api.Clock) {
	s.clock = c
}

// FetchOnce fetches the current values of names in a single round trip.
// Unknown names are listed in SampleSet.Missing instead of failing the call.
func (s *Sampler) FetchOnce(ctx context.Context, host string, names []string) (*SampleSet, error) {
	if err := validateNames(names); err != nil {
		return nil, err
	}
	var set *SampleSet
	err := s.sessions.Do(ctx, host, func(ctx context.Context, sess session.Session) error {
		var err error
		set, _, err = s.fetch(ctx, host, sess, names)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: fetch: %w", err)
	}
	return set, nil
}

// FetchWithInterval captures two SampleSets interval apart with the same
// session and returns the time that actually elapsed between them. When the
// session expires during either leg, the whole pair is retried once.
func (s *Sampler) FetchWithInterval(ctx context.Context, host string, names []string, interval time.Duration) (first, second *SampleSet, elapsed time.Duration, err error) {
	if err := validateNames(names); err != nil {
		return nil, nil, 0, err
	}
	if err := s.validateInterval(interval); err != nil {
		return nil, nil, 0, err
	}

	err = s.sessions.Do(ctx, host, func(ctx context.Context, sess session.Session) error {
		a, localA, err := s.fetch(ctx, host, sess, names)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(interval):
		}

		b, localB, err := s.fetch(ctx, host, sess, fetchable(a, names))
		if err != nil {
			return err
		}
		b.Missing = mergeMissing(a.Missing, b.Missing)

		first, second = a, b
		if localA.gateway && localB.gateway {
			elapsed = b.CapturedAt.Sub(a.CapturedAt)
		} else {
			elapsed = localB.at.Sub(localA.at)
		}
		return nil
	})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("metrics: fetch pair: %w", err)
	}
	return first, second, elapsed, nil
}

func (s *Sampler) validateInterval(interval time.Duration) error {
	if interval < s.minInterval || interval > s.maxInterval {
		return InvalidParameter("interval", "%s is outside [%s, %s]", interval, s.minInterval, s.maxInterval)
	}
	return nil
}

// captureTime records when a fetch completed locally and whether the
// SampleSet carries a gateway timestamp.
type captureTime struct {
	at      time.Time
	gateway bool
}

// fetch performs one fetch. When the gateway rejects the batch because of an
// unknown name, the names are checked one by one and the valid subset is
// fetched again.
func (s *Sampler) fetch(ctx context.Context, host string, sess session.Session, names []string) (*SampleSet, captureTime, error) {
	var missing []MetricAnnotation
	valid := names

	resp := &api.FetchResponse{}
	var err error
	if len(names) > 0 {
		resp, err = api.Fetch(ctx, s.transport, sess.ID, names)
	}
	if err != nil && api.Classify(err) == api.FailureUnknownMetric {
		valid, missing, err = s.partition(ctx, sess, names)
		if err != nil {
			return nil, captureTime{}, err
		}
		if len(valid) == 0 {
			resp, err = &api.FetchResponse{}, nil
		} else {
			resp, err = api.Fetch(ctx, s.transport, sess.ID, valid)
		}
	}
	if err != nil {
		return nil, captureTime{}, err
	}

	local := captureTime{at: s.clock.Now()}
	set := &SampleSet{
		Host:       host,
		SessionID:  sess.ID,
		CapturedAt: local.at,
		Readings:   make(map[string]Reading, len(resp.Values)),
		Missing:    missing,
	}
	if !resp.Timestamp.IsZero() {
		set.CapturedAt = resp.Timestamp.Time()
		local.gateway = true
	}

	for _, v := range resp.Values {
		if len(v.Instances) == 0 {
			continue
		}
		reading, err := decodeReading(v)
		if err != nil {
			set.Missing = append(set.Missing, MetricAnnotation{Metric: v.Name, Reason: ReasonDecode, Err: err})
			continue
		}
		set.Readings[v.Name] = reading
	}
	for _, name := range valid {
		if _, ok := set.Readings[name]; ok {
			set.Order = append(set.Order, name)
			continue
		}
		if !annotated(set.Missing, name) {
			set.Missing = append(set.Missing, MetricAnnotation{Metric: name, Reason: ReasonNoValues})
		}
	}
	for _, m := range set.Missing {
		s.logger.Warn("metric omitted", "host", host, "metric", m.Metric, "reason", m.Reason)
	}
	return set, local, nil
}

// partition splits names into those the gateway knows and annotations for
// the rest.
func (s *Sampler) partition(ctx context.Context, sess session.Session, names []string) ([]string, []MetricAnnotation, error) {
	var valid []string
	var missing []MetricAnnotation
	for _, name := range names {
		resp, err := api.LookupMetrics(ctx, s.transport, sess.ID, []string{name})
		switch {
		case err != nil && api.Classify(err) == api.FailureUnknownMetric:
			missing = append(missing, MetricAnnotation{Metric: name, Reason: ReasonUnknownMetric, Err: &UnknownMetricError{Name: name, Err: err}})
		case err != nil:
			return nil, nil, err
		case len(resp.Metrics) == 0:
			missing = append(missing, MetricAnnotation{Metric: name, Reason: ReasonUnknownMetric, Err: &UnknownMetricError{Name: name}})
		default:
			valid = append(valid, name)
		}
	}
	return valid, missing, nil
}

// decodeReading resolves the gateway's instance list into a Reading.
func decodeReading(v api.FetchValue) (Reading, error) {
	r := Reading{Metric: v.Name}
	if len(v.Instances) == 0 {
		return r, fmt.Errorf("metrics: %s: no instances", v.Name)
	}
	for _, inst := range v.Instances {
		num, text, isText, err := inst.DecodeValue()
		if err != nil {
			return r, fmt.Errorf("metrics: %s: %w", v.Name, err)
		}
		val := Value{Number: num, Text: text, IsText: isText}
		id, ok := inst.InstanceID()
		if !ok {
			r.Scalar = val
			continue
		}
		if r.Instances == nil {
			r.Instances = make(map[string]Value, len(v.Instances))
		}
		r.Instances[id] = val
	}
	return r, nil
}

// fetchable returns the names worth requesting again after a first fetch:
// everything except names known to be absent from the namespace.
func fetchable(first *SampleSet, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		unknown := false
		for _, m := range first.Missing {
			if m.Metric == n && m.Reason == ReasonUnknownMetric {
				unknown = true
				break
			}
		}
		if !unknown {
			out = append(out, n)
		}
	}
	return out
}

func mergeMissing(a, b []MetricAnnotation) []MetricAnnotation {
	out := append([]MetricAnnotation(nil), b...)
	for _, m := range a {
		if !annotated(out, m.Metric) {
			out = append(out, m)
		}
	}
	return out
}

func annotated(list []MetricAnnotation, metric string) bool {
	for _, m := range list {
		if m.Metric == metric {
			return true
		}
	}
	return false
}
