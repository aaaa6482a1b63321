package recorder

import (
	"fmt"
	"math"
	"strings"

	"simcore/internal/engine/timestep"
	"simcore/pkg/apperror"
)

type rowKey struct {
	step     int
	scenario int
}

// AssertionSink compares every recorded row against an expected value
// table within Tolerance, for use in tests that assert on a scheduler run's
// actual metric output (spec §4.9's "Assertion" sink). It never fails a
// run by itself; call Mismatches (or rely on Close's returned error) after
// the run completes.
type AssertionSink struct {
	Expected  map[rowKey][]float64
	Tolerance float64

	mismatches []string
}

// NewAssertionSink returns an AssertionSink comparing recorded rows against
// expected within tolerance.
func NewAssertionSink(tolerance float64) *AssertionSink {
	return &AssertionSink{Expected: make(map[rowKey][]float64), Tolerance: tolerance}
}

// Expect registers the value vector expected at (step, scenario).
func (a *AssertionSink) Expect(step, scenario int, values []float64) {
	a.Expected[rowKey{step, scenario}] = values
}

func (a *AssertionSink) Setup([]string, []timestep.Timestep, []timestep.Scenario) error { return nil }

func (a *AssertionSink) WriteRow(step, scenario int, values []float64) error {
	exp, ok := a.Expected[rowKey{step, scenario}]
	if !ok {
		return nil
	}
	if len(exp) != len(values) {
		a.mismatches = append(a.mismatches, fmt.Sprintf(
			"step %d scenario %d: got %d values, want %d", step, scenario, len(values), len(exp)))
		return nil
	}
	for i, v := range values {
		if math.Abs(v-exp[i]) > a.Tolerance {
			a.mismatches = append(a.mismatches, fmt.Sprintf(
				"step %d scenario %d metric %d: got %v, want %v (tolerance %v)",
				step, scenario, i, v, exp[i], a.Tolerance))
		}
	}
	return nil
}

func (a *AssertionSink) Flush(int) error { return nil }

// Close returns an error summarising every mismatch observed, or nil if
// every expected row matched.
func (a *AssertionSink) Close() error {
	if len(a.mismatches) == 0 {
		return nil
	}
	return apperror.New(apperror.CodeAssertionFailed, strings.Join(a.mismatches, "; "))
}

// Mismatches returns every mismatch recorded so far, in the order seen.
func (a *AssertionSink) Mismatches() []string { return a.mismatches }
