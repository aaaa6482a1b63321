// Package recorder implements spec §4.9 (component C9): named metric sets,
// optional nested period aggregation, and the recorder contract
// (setup/save/after_save/finalise) over a handful of output sinks. Grounded
// on the teacher's report-generation style in
// services/report-svc/internal/generator/{csv,json,excel,pdf}.go, adapted
// from "render a finished report" to "accumulate one row per step".
package recorder

import (
	"simcore/internal/engine/metric"
	"simcore/internal/engine/state"
	"simcore/internal/engine/timestep"
	"simcore/pkg/apperror"
)

// Function is the reduction applied within one aggregation period.
type Function int

const (
	FunctionSum Function = iota
	FunctionMax
	FunctionMin
	FunctionMean
)

// Frequency is the calendar period an Aggregator groups by. FrequencyNone
// reduces the entire run to a single value per metric, flushed at the last
// step's AfterSave (or at Finalise when the run stopped before that step).
type Frequency int

const (
	FrequencyNone Frequency = iota
	FrequencyMonthly
	FrequencyAnnual
)

// Aggregator reduces a stream of per-step values into one value per period.
// Inner, when set, names a finer-grained aggregator whose own period
// outputs become this Aggregator's raw input (spec §4.9: "values
// aggregated by the outer aggregator are the outputs of the inner").
type Aggregator struct {
	Frequency Frequency
	Function  Function
	Inner     *Aggregator
}

// MetricSet is an ordered, named list of metric expressions recorded
// together, with an optional Aggregator.
type MetricSet struct {
	Name        string
	MetricNames []string
	Metrics     []metric.Expr
	Aggregator  *Aggregator
}

// Validate checks that MetricNames and Metrics are the same length, the
// one structural invariant a MetricSet must hold.
func (ms MetricSet) Validate() error {
	if len(ms.MetricNames) != len(ms.Metrics) {
		return apperror.NewBuildError(
			apperror.CodeDataLengthMismatch,
			"metric set "+ms.Name+": MetricNames and Metrics must be the same length",
		)
	}
	return nil
}

// evaluate computes every metric in ms against st, in order.
func (ms MetricSet) evaluate(st *state.State, model metric.Model) ([]float64, error) {
	values := make([]float64, len(ms.Metrics))
	for i, e := range ms.Metrics {
		v, err := metric.Evaluate(e, st, model)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// periodKey buckets a date into a comparable group key for freq. Two dates
// share a key iff they fall in the same period.
func periodKey(freq Frequency, d timestep.Timestep) int64 {
	switch freq {
	case FrequencyMonthly:
		return int64(d.Date.Year())*12 + int64(d.Date.Month())
	case FrequencyAnnual:
		return int64(d.Date.Year())
	default: // FrequencyNone: one period for the whole run
		return 0
	}
}

func reduce(fn Function, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch fn {
	case FunctionMax:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case FunctionMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case FunctionMean:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	default: // FunctionSum
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum
	}
}
