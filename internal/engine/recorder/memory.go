package recorder

import "simcore/internal/engine/timestep"

// MemorySink keeps every recorded row as a dense step x scenario grid of
// metric vectors in process memory (spec §4.9 "in-memory ndarray"),
// queryable after Finalise.
type MemorySink struct {
	metricNames  []string
	numScenarios int
	rows         [][][]float64 // rows[step][scenario]
}

// NewMemorySink returns an empty MemorySink; Setup allocates its grid.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Setup(metricNames []string, steps []timestep.Timestep, scenarios []timestep.Scenario) error {
	m.metricNames = metricNames
	m.numScenarios = len(scenarios)
	m.rows = make([][][]float64, len(steps))
	for i := range m.rows {
		m.rows[i] = make([][]float64, m.numScenarios)
	}
	return nil
}

func (m *MemorySink) WriteRow(step, scenario int, values []float64) error {
	row := make([]float64, len(values))
	copy(row, values)
	m.rows[step][scenario] = row
	return nil
}

func (m *MemorySink) Flush(int) error { return nil }
func (m *MemorySink) Close() error    { return nil }

// Values returns the recorded metric vector for (step, scenario), or nil
// if nothing was ever written there (e.g. a period-aggregated recorder
// only writes at period ends).
func (m *MemorySink) Values(step, scenario int) []float64 { return m.rows[step][scenario] }

// MetricNames returns the column names this sink was set up with.
func (m *MemorySink) MetricNames() []string { return m.metricNames }

// NumSteps returns the number of rows the grid was allocated for.
func (m *MemorySink) NumSteps() int { return len(m.rows) }

// NumScenarios returns the number of columns the grid was allocated for.
func (m *MemorySink) NumScenarios() int { return m.numScenarios }
