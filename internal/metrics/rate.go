package metrics

import (
	"log/slog"
	"time"
)

// Calculator derives values from sample pairs.
type Calculator struct {
	// Strict turns a decreasing counter into a RateCalculationError instead
	// of treating it as a reset.
	Strict bool
	Logger *slog.Logger
}

// Derive computes the result for one (metric, instance) pair. Counters
// become per-second rates; instant and discrete metrics pass the second value
// through unchanged.
func (c Calculator) Derive(s1, s2 Sample, elapsed time.Duration, d Descriptor) (RateResult, error) {
	res := RateResult{
		Metric:   s2.Metric,
		Instance: s2.Instance,
		Unit:     d.Unit,
	}
	if s2.Value.IsText {
		res.Text = s2.Value.Text
		return res, nil
	}
	if d.Kind != KindCounter {
		res.Value = s2.Value.Number
		return res, nil
	}

	if elapsed <= 0 {
		return RateResult{}, &RateCalculationError{Metric: s2.Metric, Reason: "elapsed time " + elapsed.String() + " is not positive"}
	}
	if s1.Value.IsText {
		return RateResult{}, &RateCalculationError{Metric: s2.Metric, Reason: "first sample is not numeric"}
	}

	delta := s2.Value.Number - s1.Value.Number
	if delta < 0 {
		if c.Strict {
			return RateResult{}, &RateCalculationError{Metric: s2.Metric, Reason: "counter decreased"}
		}
		// The counter restarted from zero between the samples.
		delta = s2.Value.Number
		res.Reset = true
		if c.Logger != nil {
			c.Logger.Debug("counter reset", "metric", s2.Metric, "instance", s2.Instance,
				"previous", s1.Value.Number, "current", s2.Value.Number)
		}
	}

	res.Value = delta / elapsed.Seconds()
	res.IsRate = true
	return res, nil
}

// DeriveSet derives every (metric, instance) of second against first.
// Instances present in only one of the sets are omitted. Metrics without a
// descriptor are reported as annotations.
func (c Calculator) DeriveSet(first, second *SampleSet, elapsed time.Duration, descs map[string]Descriptor) ([]RateResult, []MetricAnnotation, error) {
	if first.SessionID != second.SessionID {
		return nil, nil, &RateCalculationError{Reason: "samples were captured with different sessions"}
	}

	var results []RateResult
	var missing []MetricAnnotation
	for _, metric := range second.Order {
		d, ok := descs[metric]
		if !ok {
			missing = append(missing, MetricAnnotation{Metric: metric, Reason: ReasonClassify})
			continue
		}
		for _, s2 := range second.Samples(metric) {
			s1, ok := first.Sample(metric, s2.Instance)
			if !ok {
				continue
			}
			r, err := c.Derive(s1, s2, elapsed, d)
			if err != nil {
				return nil, nil, err
			}
			results = append(results, r)
		}
	}
	return results, missing, nil
}
