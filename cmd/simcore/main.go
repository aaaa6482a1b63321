// Command simcore wires every engine component into one runnable
// simulation: a small example network (inflow -> reservoir -> river ->
// demand), a monthly demand profile parameter, the scheduler's run loop,
// and whichever recorder sinks pkg/config's run.recorder_sinks names.
// Network topology itself is assembled in code here rather than loaded
// from configuration, since topology is explicitly a separate schema
// layer the run configuration does not carry (spec §6/§10.2).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"simcore/internal/engine/aggregate"
	"simcore/internal/engine/index"
	"simcore/internal/engine/lp"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/network"
	"simcore/internal/engine/parameter"
	"simcore/internal/engine/recorder"
	"simcore/internal/engine/scheduler"
	"simcore/internal/engine/state"
	"simcore/internal/engine/timestep"
	"simcore/migrations"
	"simcore/pkg/apperror"
	"simcore/pkg/audit"
	"simcore/pkg/cache"
	"simcore/pkg/config"
	"simcore/pkg/database"
	"simcore/pkg/logger"
	"simcore/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		logger.Log.Error("run failed", "cause", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	auditLogger, err := audit.New(&audit.Config{
		Enabled:     cfg.Audit.Enabled,
		Backend:     cfg.Audit.Backend,
		FilePath:    cfg.Audit.FilePath,
		BufferSize:  cfg.Audit.BufferSize,
		FlushPeriod: cfg.Audit.FlushPeriod,
	})
	if err != nil {
		return fmt.Errorf("init audit logger: %w", err)
	}
	audit.SetGlobal(auditLogger)
	defer auditLogger.Close()

	if cfg.Metrics.Enabled {
		metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	}

	ctx := context.Background()

	g, aggs, params, model, demand, err := buildNetwork()
	if err != nil {
		return fmt.Errorf("build network: %w", err)
	}
	if err := params.Resolve(); err != nil {
		return fmt.Errorf("resolve parameters: %w", err)
	}

	steps, err := timestep.Generate(
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		1,
	)
	if err != nil {
		return fmt.Errorf("generate timesteps: %w", err)
	}
	scenarios, err := timestep.Enumerate([]timestep.Group{{Name: "baseline", Size: 1}})
	if err != nil {
		return fmt.Errorf("enumerate scenarios: %w", err)
	}

	states := make([]*state.State, len(scenarios))
	dims := state.Dims{
		Nodes:           g.NumNodes(),
		Edges:           g.NumEdges(),
		Parameters:      params.NumParameters(),
		IndexParameters: params.NumIndexParameters(),
		DerivedMetrics:  model.NumDerivedMetrics(),
		VirtualStorages: aggs.InitialVolumes(),
		RollingWindows:  aggs.RollingWindowSizes(),
	}
	for _, sc := range scenarios {
		states[sc.Flat] = state.New(sc.Flat, dims)
	}

	var solveCache *lp.SolveCache
	var cacheBackend cache.Cache
	if cfg.Run.SolveCacheEnabled {
		backend, err := cache.New(cache.FromConfig(&cfg.Cache))
		if err != nil {
			return fmt.Errorf("init solve cache backend: %w", err)
		}
		cacheBackend = backend
		defer cacheBackend.Close()
		solveCache = lp.NewSolveCache(backend, "simplex")
	}

	sched := scheduler.New(g, aggs, params, model, states, 1, solveCache, metrics.Get())

	recorders, closers, err := buildRecorders(ctx, cfg, demand)
	if err != nil {
		return fmt.Errorf("build recorders: %w", err)
	}
	for _, c := range closers {
		defer c()
	}
	sched.Recorders = recorders

	runStart := time.Now()
	report, runErr := sched.Run(ctx, steps, scenarios)

	entry := audit.NewEntry().
		Service("simcore").
		Method("Run").
		Action(audit.ActionSolve).
		Duration(time.Since(runStart))
	if report != nil {
		entry.Run(report.RunID.String(), len(scenarios)).Progress(report.StepsRun, report.Cancelled)
	}
	if runErr != nil {
		entry.Outcome(audit.OutcomeFailure).Error(string(apperror.Code(runErr)), runErr.Error())
	} else {
		entry.Outcome(audit.OutcomeSuccess)
	}
	auditLogger.Log(ctx, entry.Build())

	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}

	logger.Log.Info("run complete",
		"run_id", report.RunID,
		"steps_run", report.StepsRun,
		"cancelled", report.Cancelled,
		"parameter_eval", report.Timings.ParameterEval,
		"lp_update", report.Timings.LPUpdate,
		"solve", report.Timings.Solve,
		"recorder_save", report.Timings.RecorderSave,
	)
	if cacheBackend != nil {
		if stats, err := cacheBackend.Stats(ctx); err == nil {
			logger.Log.Info("solve cache stats",
				"backend", stats.Backend,
				"hit_rate", stats.HitRate,
				"total_keys", stats.TotalKeys,
			)
		}
	}
	return nil
}

// buildNetwork assembles a small reservoir system: an inflow source feeds
// a storage reservoir, which releases through a river link to a demand
// output. demand returns the parameter index driving the output's target
// flow, so recorders can report against it if needed.
func buildNetwork() (*network.Graph, *aggregate.Registry, *parameter.Registry, *network.Model, index.ParameterIndex, error) {
	g := network.NewGraph()
	aggs := aggregate.NewRegistry(false)
	params := parameter.NewRegistry()

	demandIdx, err := params.AddParameter(index.Name{Name: "demand"}, parameter.Param{
		Kind: parameter.KindMonthlyProfile,
		MonthlyValues: [12]float64{
			8, 8, 9, 10, 11, 12, 14, 14, 12, 10, 9, 8,
		},
		Interp: parameter.InterpolationFirst,
	})
	if err != nil {
		return nil, nil, nil, nil, index.ParameterIndex{}, err
	}

	inflow, err := g.AddNode(network.Node{
		Kind:    network.KindInput,
		Name:    index.Name{Name: "inflow"},
		Cost:    metric.Constant(0),
		MinFlow: metric.Constant(0),
		MaxFlow: metric.Constant(10),
	})
	if err != nil {
		return nil, nil, nil, nil, index.ParameterIndex{}, err
	}

	reservoir, err := g.AddNode(network.Node{
		Kind:      network.KindStorage,
		Name:      index.Name{Name: "reservoir"},
		Cost:      metric.Constant(0),
		MinFlow:   metric.Constant(0),
		MaxFlow:   metric.Constant(1e9),
		MinVolume: metric.Constant(0),
		MaxVolume: metric.Constant(100),
		Initial:   network.InitialVolume{Proportional: true, Value: 0.5},
	})
	if err != nil {
		return nil, nil, nil, nil, index.ParameterIndex{}, err
	}

	river, err := g.AddNode(network.Node{
		Kind:    network.KindLink,
		Name:    index.Name{Name: "river"},
		Cost:    metric.Constant(0),
		MinFlow: metric.Constant(0),
		MaxFlow: metric.Constant(1e9),
	})
	if err != nil {
		return nil, nil, nil, nil, index.ParameterIndex{}, err
	}

	demandNode, err := g.AddNode(network.Node{
		Kind:    network.KindOutput,
		Name:    index.Name{Name: "demand"},
		Cost:    metric.Constant(-10),
		MinFlow: metric.Constant(0),
		MaxFlow: metric.ParameterValue(demandIdx),
	})
	if err != nil {
		return nil, nil, nil, nil, index.ParameterIndex{}, err
	}

	if _, err := g.Connect(inflow, reservoir, index.Name{Name: "inflow_to_reservoir"}); err != nil {
		return nil, nil, nil, nil, index.ParameterIndex{}, err
	}
	if _, err := g.Connect(reservoir, river, index.Name{Name: "reservoir_to_river"}); err != nil {
		return nil, nil, nil, nil, index.ParameterIndex{}, err
	}
	if _, err := g.Connect(river, demandNode, index.Name{Name: "river_to_demand"}); err != nil {
		return nil, nil, nil, nil, index.ParameterIndex{}, err
	}

	model := network.NewModel(g, aggs)
	return g, aggs, params, model, demandIdx, nil
}

// buildRecorders constructs one Recorder (over a single "raw" MetricSet
// tracking the demand target) per sink named in cfg.Run.RecorderSinks,
// plus cleanup closures for any files or connections those sinks opened,
// so main can defer them.
func buildRecorders(ctx context.Context, cfg *config.Config, demand index.ParameterIndex) ([]scheduler.Recorder, []func(), error) {
	set := recorder.MetricSet{
		Name:        "raw",
		MetricNames: []string{"demand_target"},
		Metrics:     []metric.Expr{metric.ParameterValue(demand)},
	}

	var recorders []scheduler.Recorder
	var closers []func()

	for _, name := range cfg.Run.RecorderSinks {
		var sink recorder.Sink
		switch name {
		case "memory":
			sink = recorder.NewMemorySink()
		case "csv":
			f, err := os.Create("run.csv")
			if err != nil {
				return nil, nil, fmt.Errorf("create run.csv: %w", err)
			}
			closers = append(closers, func() { f.Close() })
			sink = recorder.NewCSVSink(f)
		case "binary":
			data, err := os.Create("run.bin")
			if err != nil {
				return nil, nil, fmt.Errorf("create run.bin: %w", err)
			}
			side, err := os.Create("run.bin.json")
			if err != nil {
				return nil, nil, fmt.Errorf("create run.bin.json: %w", err)
			}
			closers = append(closers, func() { data.Close(); side.Close() })
			sink = recorder.NewBinarySink(data, side)
		case "xlsx":
			f, err := os.Create("run.xlsx")
			if err != nil {
				return nil, nil, fmt.Errorf("create run.xlsx: %w", err)
			}
			closers = append(closers, func() { f.Close() })
			sink = recorder.NewXLSXSink(f)
		case "pdf":
			f, err := os.Create("run.pdf")
			if err != nil {
				return nil, nil, fmt.Errorf("create run.pdf: %w", err)
			}
			closers = append(closers, func() { f.Close() })
			sink = recorder.NewPDFSink(f)
		case "assertion":
			sink = recorder.NewAssertionSink(1e-6)
		case "postgres":
			pool, err := database.NewPostgresDB(ctx, &cfg.Database)
			if err != nil {
				return nil, nil, fmt.Errorf("connect postgres: %w", err)
			}
			if err := database.RunMigrations(ctx, pool.Pool(), &cfg.Database, migrations.FS, "."); err != nil {
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
			closers = append(closers, func() { pool.Close() })
			sink = recorder.NewPostgresSink(ctx, pool, "demo-run", set.Name)
		default:
			return nil, nil, fmt.Errorf("unknown recorder sink %q", name)
		}

		rec, err := recorder.New(set, nil, sink)
		if err != nil {
			return nil, nil, fmt.Errorf("build recorder for sink %q: %w", name, err)
		}
		recorders = append(recorders, rec)
	}

	return recorders, closers, nil
}
