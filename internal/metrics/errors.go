package metrics

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below.
var (
	ErrUnknownMetric    = errors.New("metrics: unknown metric")
	ErrInvalidParameter = errors.New("metrics: invalid parameter")
	ErrRateCalculation  = errors.New("metrics: rate calculation")
)

// UnknownMetricError reports a name the gateway namespace does not contain.
type UnknownMetricError struct {
	Name string
	Err  error
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("metrics: unknown metric %q", e.Name)
}

func (e *UnknownMetricError) Unwrap() error { return e.Err }

func (e *UnknownMetricError) Is(target error) bool { return target == ErrUnknownMetric }

// InvalidParameterError reports a caller argument rejected before any gateway
// call was made.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("metrics: invalid %s: %s", e.Param, e.Reason)
}

func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

// InvalidParameter returns an *InvalidParameterError with a formatted reason.
func InvalidParameter(param, format string, args ...any) error {
	return &InvalidParameterError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

// RateCalculationError reports a sample pair that cannot produce a rate.
type RateCalculationError struct {
	Metric string
	Reason string
}

func (e *RateCalculationError) Error() string {
	if e.Metric == "" {
		return "metrics: rate: " + e.Reason
	}
	return fmt.Sprintf("metrics: rate %s: %s", e.Metric, e.Reason)
}

func (e *RateCalculationError) Is(target error) bool { return target == ErrRateCalculation }

func isUnknownMetric(err error) bool {
	return errors.Is(err, ErrUnknownMetric)
}
