// Package timestep generates the calendar axis a run advances over and
// enumerates the Cartesian product of scenario groups (spec §4.10,
// component C10).
package timestep

import (
	"fmt"
	"time"

	"simcore/pkg/apperror"
)

// Timestep is one point on the calendar axis: an ordinal position, the
// date it represents, and the step duration in days (spec §3).
type Timestep struct {
	Ordinal  int
	Date     time.Time
	StepDays float64
}

// Generate builds the eager sequence of Timesteps from start to end
// (inclusive of start, exclusive once the running date would exceed end),
// advancing stepDays each time (spec §4.10: "generated eagerly from
// (start_date, end_date, step_days)").
func Generate(start, end time.Time, stepDays float64) ([]Timestep, error) {
	if stepDays <= 0 {
		return nil, apperror.NewBuildError(
			apperror.CodeInvalidArgument,
			fmt.Sprintf("step_days must be positive, got %g", stepDays),
		)
	}
	if end.Before(start) {
		return nil, apperror.NewBuildError(
			apperror.CodeInvalidArgument,
			"end_date is before start_date",
		)
	}

	var steps []Timestep
	step := time.Duration(stepDays * 24 * float64(time.Hour))
	for i, d := 0, start; !d.After(end); i, d = i+1, d.Add(step) {
		steps = append(steps, Timestep{Ordinal: i, Date: d, StepDays: stepDays})
	}
	return steps, nil
}

// Group is one named axis of a scenario's Cartesian product (e.g.
// "inflow_ensemble" with 10 members).
type Group struct {
	Name string
	Size int
}

// Scenario is one point in the Cartesian product: a flat row-major index
// plus the per-group index that produced it.
type Scenario struct {
	Flat    int
	Indices []int
}

// Enumerate returns every Scenario in the Cartesian product of groups, in
// row-major order with earlier groups varying slowest (spec §4.10).
func Enumerate(groups []Group) ([]Scenario, error) {
	total := 1
	for _, g := range groups {
		if g.Size <= 0 {
			return nil, apperror.NewBuildError(
				apperror.CodeInvalidArgument,
				fmt.Sprintf("scenario group %q must have size > 0, got %d", g.Name, g.Size),
			)
		}
		total *= g.Size
	}
	if len(groups) == 0 {
		return []Scenario{{Flat: 0, Indices: nil}}, nil
	}

	scenarios := make([]Scenario, total)
	for flat := 0; flat < total; flat++ {
		indices := make([]int, len(groups))
		remainder := flat
		for i := len(groups) - 1; i >= 0; i-- {
			indices[i] = remainder % groups[i].Size
			remainder /= groups[i].Size
		}
		scenarios[flat] = Scenario{Flat: flat, Indices: indices}
	}
	return scenarios, nil
}

// NumScenarios returns the total Cartesian product size without
// materialising the enumeration.
func NumScenarios(groups []Group) int {
	total := 1
	for _, g := range groups {
		total *= g.Size
	}
	return total
}
