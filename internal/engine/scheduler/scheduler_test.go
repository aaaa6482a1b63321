package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simcore/internal/engine/aggregate"
	"simcore/internal/engine/index"
	"simcore/internal/engine/lp"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/network"
	"simcore/internal/engine/parameter"
	"simcore/internal/engine/state"
	"simcore/internal/engine/timestep"
	"simcore/pkg/cache"
)

// fakeRecorder records every call it receives, for asserting the run-loop
// dispatch order and counts without a real sink.
type fakeRecorder struct {
	mu          sync.Mutex
	setupCalls  int
	saveCalls   int
	afterSaves  []int
	finalised   bool
	failSave    bool
	failSetup   bool
	failFinal   bool
}

func (f *fakeRecorder) Setup(steps []timestep.Timestep, scenarios []timestep.Scenario) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupCalls++
	if f.failSetup {
		return assert.AnError
	}
	return nil
}

func (f *fakeRecorder) Save(step int, scenario int, st *state.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.failSave {
		return assert.AnError
	}
	return nil
}

func (f *fakeRecorder) AfterSave(step int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterSaves = append(f.afterSaves, step)
	return nil
}

func (f *fakeRecorder) Finalise() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalised = true
	if f.failFinal {
		return assert.AnError
	}
	return nil
}

func name(s string) index.Name { return index.Name{Name: s} }

// buildScheduler returns an Input -> Link -> Output network with demand
// held below capacity, one scenario, and a fresh single-scenario state.
func buildScheduler(t *testing.T, rec *fakeRecorder) *Scheduler {
	t.Helper()
	g := network.NewGraph()
	in, err := g.AddNode(network.Node{Kind: network.KindInput, Name: name("in"), MaxFlow: metric.Constant(10), Cost: metric.Constant(1)})
	require.NoError(t, err)
	link, err := g.AddNode(network.Node{Kind: network.KindLink, Name: name("link"), MaxFlow: metric.Constant(1e9)})
	require.NoError(t, err)
	out, err := g.AddNode(network.Node{Kind: network.KindOutput, Name: name("out"), MinFlow: metric.Constant(4), MaxFlow: metric.Constant(4)})
	require.NoError(t, err)
	_, err = g.Connect(in, link, name("e1"))
	require.NoError(t, err)
	_, err = g.Connect(link, out, name("e2"))
	require.NoError(t, err)

	aggs := aggregate.NewRegistry(false)
	params := parameter.NewRegistry()
	model := network.NewModel(g, aggs)

	st := state.New(0, state.Dims{Nodes: 3, Edges: 2})

	sched := New(g, aggs, params, model, []*state.State{st}, 1, nil, nil)
	sched.Recorders = []Recorder{rec}
	return sched
}

func TestRun_DrivesFullStepLoop(t *testing.T) {
	rec := &fakeRecorder{}
	sched := buildScheduler(t, rec)

	steps, err := timestep.Generate(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	scenarios, err := timestep.Enumerate(nil)
	require.NoError(t, err)

	report, err := sched.Run(context.Background(), steps, scenarios)
	require.NoError(t, err)

	assert.Equal(t, len(steps), report.StepsRun)
	assert.False(t, report.Cancelled)
	assert.Equal(t, 1, rec.setupCalls)
	assert.Equal(t, len(steps), rec.saveCalls)
	assert.Equal(t, len(steps), len(rec.afterSaves))
	assert.True(t, rec.finalised)

	lastState := sched.States[0]
	_, link, _ := sched.Graph.NodeByName(name("link"))
	ls := lastState.NodeState(link)
	assert.InDelta(t, 4.0, ls.InFlow, 1e-6)
	assert.InDelta(t, 4.0, ls.OutFlow, 1e-6)
}

func TestRun_CancelledBeforeFirstStepStillFinalises(t *testing.T) {
	rec := &fakeRecorder{}
	sched := buildScheduler(t, rec)

	steps, err := timestep.Generate(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	scenarios, err := timestep.Enumerate(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := sched.Run(ctx, steps, scenarios)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 0, report.StepsRun)
	assert.True(t, rec.finalised)
}

func TestRun_InfeasibleStepSurfacesStepError(t *testing.T) {
	rec := &fakeRecorder{}
	sched := buildScheduler(t, rec)
	// Demand above the input's max flow: infeasible from the first step.
	_, out, _ := sched.Graph.NodeByName(name("out"))
	n := sched.Graph.Node(out)
	n.MinFlow = metric.Constant(100)
	n.MaxFlow = metric.Constant(100)

	steps, err := timestep.Generate(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	scenarios, err := timestep.Enumerate(nil)
	require.NoError(t, err)

	report, err := sched.Run(context.Background(), steps, scenarios)
	require.Error(t, err)
	assert.True(t, rec.finalised)
	assert.Equal(t, 0, report.StepsRun)
}

func TestRun_UsesSolveCache(t *testing.T) {
	rec := &fakeRecorder{}
	sched := buildScheduler(t, rec)
	backend := cache.NewMemoryCache(nil)
	t.Cleanup(func() { _ = backend.Close() })
	sched.Cache = lp.NewSolveCache(backend, lp.AlgorithmBigMSimplex)

	steps, err := timestep.Generate(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	scenarios, err := timestep.Enumerate(nil)
	require.NoError(t, err)

	report, err := sched.Run(context.Background(), steps, scenarios)
	require.NoError(t, err)
	assert.Equal(t, len(steps), report.StepsRun)
}
