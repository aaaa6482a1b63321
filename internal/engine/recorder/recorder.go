package recorder

import (
	"simcore/internal/engine/metric"
	"simcore/internal/engine/state"
	"simcore/internal/engine/timestep"
)

// Sink is the output backend every recorder implementation targets (spec
// §4.9's "built-in sinks" plus the Postgres/XLSX/PDF sinks this module
// adds). A Sink never sees raw State — only the already-evaluated (and,
// when an Aggregator is configured, already-reduced) metric vector for one
// (step, scenario) row.
type Sink interface {
	Setup(metricNames []string, steps []timestep.Timestep, scenarios []timestep.Scenario) error
	WriteRow(step, scenario int, values []float64) error
	Flush(step int) error
	Close() error
}

// Recorder adapts one MetricSet + Sink pair to the scheduler's dispatch
// contract (scheduler.Recorder, satisfied structurally — this package
// never imports scheduler to avoid a cycle): it evaluates the metric set
// against State on Save, buffers and reduces samples when an Aggregator is
// configured, and flushes completed periods at AfterSave per spec §4.8
// item 5 ("period aggregators flush here").
type Recorder struct {
	Set   MetricSet
	Model metric.Model
	Sink  Sink

	steps   []timestep.Timestep
	pending [][]sample // pending[scenario], only populated when Set.Aggregator != nil
}

// New validates set and builds a Recorder writing its evaluated (and,
// if configured, aggregated) rows to sink.
func New(set MetricSet, model metric.Model, sink Sink) (*Recorder, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &Recorder{Set: set, Model: model, Sink: sink}, nil
}

func (r *Recorder) Setup(steps []timestep.Timestep, scenarios []timestep.Scenario) error {
	r.steps = steps
	if r.Set.Aggregator != nil {
		r.pending = make([][]sample, len(scenarios))
	}
	return r.Sink.Setup(r.Set.MetricNames, steps, scenarios)
}

func (r *Recorder) Save(step, scenario int, st *state.State) error {
	values, err := r.Set.evaluate(st, r.Model)
	if err != nil {
		return err
	}
	if r.Set.Aggregator == nil {
		return r.Sink.WriteRow(step, scenario, values)
	}
	r.pending[scenario] = append(r.pending[scenario], sample{ts: r.steps[step], values: values})
	return nil
}

func (r *Recorder) AfterSave(step int) error {
	if r.Set.Aggregator != nil && r.outermostPeriodEndsAt(step) {
		if err := r.flushPending(step); err != nil {
			return err
		}
	}
	return r.Sink.Flush(step)
}

func (r *Recorder) Finalise() error {
	if r.Set.Aggregator != nil {
		if err := r.flushPending(len(r.steps) - 1); err != nil {
			return err
		}
	}
	return r.Sink.Close()
}

// outermostPeriodEndsAt reports whether step is the last step of the
// outermost aggregator's calendar period, i.e. the next step falls in a
// different period, or there is no next step.
func (r *Recorder) outermostPeriodEndsAt(step int) bool {
	if step == len(r.steps)-1 {
		return true
	}
	freq := r.Set.Aggregator.Frequency
	return periodKey(freq, r.steps[step]) != periodKey(freq, r.steps[step+1])
}

// flushPending reduces and writes every scenario's buffered samples,
// attributing the resulting row(s) to step (the step the flush happened
// at — typically the last step of the period being closed).
func (r *Recorder) flushPending(step int) error {
	for scenario, samples := range r.pending {
		if len(samples) == 0 {
			continue
		}
		for _, out := range aggregate(r.Set.Aggregator, samples) {
			if err := r.Sink.WriteRow(step, scenario, out.values); err != nil {
				return err
			}
		}
		r.pending[scenario] = nil
	}
	return nil
}
