// Package scheduler drives the per-timestep run loop of spec §4.8
// (component C8): apply due virtual-storage resets, evaluate parameters in
// resolve order, assemble and solve the step's LP, advance aggregated and
// virtual storages, dispatch to recorders, then flush. Grounded on the
// teacher's services/simulation-svc/internal/engine/time_simulation.go
// step loop (per-step context cancellation check, running timing buckets).
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"simcore/internal/engine/aggregate"
	"simcore/internal/engine/lp"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/network"
	"simcore/internal/engine/parameter"
	"simcore/internal/engine/state"
	"simcore/internal/engine/timestep"
	"simcore/pkg/apperror"
	"simcore/pkg/logger"
	"simcore/pkg/metrics"
)

// Recorder is the per-scenario output sink contract of spec §4.9. save is
// called once per (step, scenario); after_save once per step, after every
// scenario in that step has been saved; finalise once at the end of the
// run.
type Recorder interface {
	Setup(steps []timestep.Timestep, scenarios []timestep.Scenario) error
	Save(step int, scenario int, st *state.State) error
	AfterSave(step int) error
	Finalise() error
}

// Timings accumulates the scheduler's four wall-clock buckets (spec
// §4.8): parameter evaluation, LP assembly (objective + constraint
// update), solve, and recorder save.
type Timings struct {
	ParameterEval time.Duration
	LPUpdate      time.Duration
	Solve         time.Duration
	RecorderSave  time.Duration
}

// Report summarises one completed or cancelled Run.
type Report struct {
	RunID     uuid.UUID
	StepsRun  int
	Cancelled bool
	Timings   Timings
}

// Scheduler owns the immutable network/aggregate/parameter model plus one
// State per scenario and drives them through the run loop. The model
// itself never mutates during a run; only the States do (spec §5
// "Scheduling model").
type Scheduler struct {
	Graph      *network.Graph
	Aggregates *aggregate.Registry
	Params     *parameter.Registry
	Model      metric.Model

	// States holds one State per scenario, indexed by Scenario.Flat.
	States []*state.State

	// Cache memoises LP solves across steps/scenarios; nil disables
	// caching.
	Cache *lp.SolveCache

	Recorders []Recorder

	// StepDays is the simulation step length passed to lp.Assemble; it
	// must match the step_days used to generate Steps.
	StepDays float64

	metrics *metrics.Metrics
}

// New builds a Scheduler over an already-constructed model and per-scenario
// states. Pass metrics.Get() (or a dedicated Metrics instance) to wire
// Prometheus observability; nil disables it.
func New(g *network.Graph, aggs *aggregate.Registry, params *parameter.Registry, model metric.Model, states []*state.State, stepDays float64, cache *lp.SolveCache, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		Graph:      g,
		Aggregates: aggs,
		Params:     params,
		Model:      model,
		States:     states,
		Cache:      cache,
		StepDays:   stepDays,
		metrics:    m,
	}
}

// Run executes the setup -> per-step loop -> finalise sequence of spec
// §4.8 over steps and scenarios, returning a Report. A run ID is minted
// once and carried into every log line this call emits. Cancellation is
// cooperative: ctx is checked between steps and between scenarios within
// a step (spec §5 "Cancellation"); on cancellation, recorders still
// finalise and the Report reports partial progress.
func (s *Scheduler) Run(ctx context.Context, steps []timestep.Timestep, scenarios []timestep.Scenario) (*Report, error) {
	runID := uuid.New()
	if s.metrics != nil {
		s.metrics.SetRunInfo(runID.String(), "1")
		s.metrics.RecordNetworkSize(s.Graph.NumNodes(), s.Graph.NumEdges())
	}
	log := logger.WithRequestID(runID.String())
	log.Info("run starting", "steps", len(steps), "scenarios", len(scenarios))

	for _, r := range s.Recorders {
		if err := r.Setup(steps, scenarios); err != nil {
			return nil, apperror.NewSetupError(apperror.CodeRecorderSetupFailed, err.Error())
		}
	}
	if err := s.Params.Resolve(); err != nil {
		return nil, err
	}

	report := &Report{RunID: runID}

	for _, ts := range steps {
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			return report, s.finalise(report, log)
		}

		if err := s.runStep(ctx, ts, scenarios, report, log); err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				report.Cancelled = true
				return report, s.finalise(report, log)
			}
			_ = s.finalise(report, log)
			return report, err
		}

		for _, r := range s.Recorders {
			if err := r.AfterSave(ts.Ordinal); err != nil {
				log.Warn("recorder after_save failed", "step", ts.Ordinal, "cause", err)
			}
		}

		report.StepsRun++
	}

	return report, s.finalise(report, log)
}

func (s *Scheduler) runStep(ctx context.Context, ts timestep.Timestep, scenarios []timestep.Scenario, report *Report, log *slog.Logger) error {
	// 1. Virtual-storage resets, once per scenario, before parameters are
	// evaluated against this step's date.
	for _, sc := range scenarios {
		s.Aggregates.ApplyResets(ts.Date, s.States[sc.Flat])
	}

	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := s.States[sc.Flat]

		// 2. Parameter evaluation in resolve order; derived-metric cache
		// is cleared because it is only valid for the step it was
		// computed in.
		start := time.Now()
		st.ClearDerivedMetricCache()
		err := s.Params.EvaluateStep(st, ts, s.Model)
		d := time.Since(start)
		report.Timings.ParameterEval += d
		s.observe(metrics.PhaseParameterEval, d)
		if err != nil {
			return annotateStep(err, ts.Ordinal, sc.Flat)
		}

		// 3. Assemble the LP, solve it, and write flows/volumes back into
		// st; aggregate/virtual storages then integrate this step's
		// result.
		assembleStart := time.Now()
		p, err := lp.Assemble(s.Graph, s.Aggregates, st, s.Model, s.StepDays)
		assembleD := time.Since(assembleStart)
		report.Timings.LPUpdate += assembleD
		s.observe(metrics.PhaseLPUpdate, assembleD)
		if err != nil {
			return annotateStep(err, ts.Ordinal, sc.Flat)
		}

		result, solveD, err := s.solve(ctx, p, sc.Flat)
		report.Timings.Solve += solveD
		s.observe(metrics.PhaseSolve, solveD)
		if err != nil {
			return annotateStep(err, ts.Ordinal, sc.Flat)
		}
		lp.ApplyResult(s.Graph, p, result, st)

		if err := s.Aggregates.Integrate(st, s.StepDays); err != nil {
			return annotateStep(err, ts.Ordinal, sc.Flat)
		}

		// 4. Recorder dispatch, one call per (step, scenario).
		saveStart := time.Now()
		for _, r := range s.Recorders {
			if err := r.Save(ts.Ordinal, sc.Flat, st); err != nil {
				return annotateStep(err, ts.Ordinal, sc.Flat)
			}
		}
		saveD := time.Since(saveStart)
		report.Timings.RecorderSave += saveD
		s.observe(metrics.PhaseRecorderSave, saveD)
	}

	log.Info("step complete", "step", ts.Ordinal, "date", ts.Date)
	return nil
}

// solve runs the cache-or-solve sequence and returns the time spent inside
// it (cache hits still count, since they stand in for an avoided solve).
func (s *Scheduler) solve(ctx context.Context, p *lp.Problem, scenario int) (*lp.Result, time.Duration, error) {
	start := time.Now()
	var key string
	if s.Cache != nil {
		key = s.Cache.Key(p)
		if cached, ok := s.Cache.Lookup(ctx, key); ok {
			return cached, time.Since(start), nil
		}
	}
	result, err := lp.Solve(p)
	d := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordSolveOperation(strconv.Itoa(scenario), err == nil, d)
	}
	if err != nil {
		return nil, d, err
	}
	if s.Cache != nil {
		_ = s.Cache.Store(ctx, key, result)
	}
	return result, d, nil
}

func (s *Scheduler) observe(phase string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObservePhase(phase, d)
	}
}

func (s *Scheduler) finalise(report *Report, log *slog.Logger) error {
	var first error
	for _, r := range s.Recorders {
		if err := r.Finalise(); err != nil {
			log.Warn("recorder finalise failed", "cause", err)
			if first == nil {
				first = apperror.NewFinaliseError(apperror.CodeRecorderFlushFailed, err.Error())
			}
		}
	}
	log.Info("run finished", "steps_run", report.StepsRun, "cancelled", report.Cancelled)
	return first
}

func annotateStep(err error, step, scenario int) error {
	if ae, ok := err.(*apperror.Error); ok {
		return ae.WithStepContext(step, scenario)
	}
	return apperror.NewStepError(apperror.CodeScenarioStateNotFound, err.Error(), step, scenario)
}
