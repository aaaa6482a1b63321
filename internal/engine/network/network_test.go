package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simcore/internal/engine/index"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/state"
	"simcore/pkg/apperror"
)

func addNode(t *testing.T, g *Graph, name string, kind Kind) index.NodeIndex {
	t.Helper()
	idx, err := g.AddNode(Node{
		Kind:    kind,
		Name:    index.Name{Name: name},
		Cost:    metric.Constant(0),
		MinFlow: metric.Constant(0),
		MaxFlow: metric.Constant(1e9),
	})
	require.NoError(t, err)
	return idx
}

func TestGraph_AddNode(t *testing.T) {
	g := NewGraph()
	idx := addNode(t, g, "reservoir", KindStorage)
	assert.Equal(t, 1, g.NumNodes())
	assert.Equal(t, idx, g.Node(idx).Self())
}

func TestGraph_AddNode_DuplicateNameFails(t *testing.T) {
	g := NewGraph()
	addNode(t, g, "a", KindInput)
	_, err := g.AddNode(Node{Kind: KindInput, Name: index.Name{Name: "a"}})
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeNameAlreadyExists, appErr.Code)
}

func TestGraph_Connect_RejectsSelfLoop(t *testing.T) {
	g := NewGraph()
	a := addNode(t, g, "a", KindLink)

	_, err := g.Connect(a, a, index.Name{Name: "loop"})
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInvalidGraph, appErr.Code)
	assert.Equal(t, apperror.KindBuild, appErr.Kind)
}

func TestGraph_Connect_DuplicateNameRejectedRegardlessOfEndpoints(t *testing.T) {
	g := NewGraph()
	a := addNode(t, g, "a", KindInput)
	b := addNode(t, g, "b", KindOutput)
	c := addNode(t, g, "c", KindOutput)

	_, err := g.Connect(a, b, index.Name{Name: "a_to_b"})
	require.NoError(t, err)

	// Same name, different endpoints: still rejected.
	_, err = g.Connect(a, c, index.Name{Name: "a_to_b"})
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeNameAlreadyExists, appErr.Code)
}

func TestGraph_Connect_ParallelEdgesWithDistinctNamesAllowed(t *testing.T) {
	g := NewGraph()
	a := addNode(t, g, "a", KindInput)
	b := addNode(t, g, "b", KindOutput)

	e1, err := g.Connect(a, b, index.Name{Name: "pipe1"})
	require.NoError(t, err)
	e2, err := g.Connect(a, b, index.Name{Name: "pipe2"})
	require.NoError(t, err)

	assert.NotEqual(t, e1, e2)
	assert.Equal(t, 2, g.NumEdges())
	assert.Len(t, g.Node(a).Outgoing, 2)
	assert.Len(t, g.Node(b).Incoming, 2)
}

func TestGraph_EdgeCost_SumsFromAndToNodeCost(t *testing.T) {
	g := NewGraph()
	aIdx, err := g.AddNode(Node{
		Kind: KindInput, Name: index.Name{Name: "a"},
		Cost: metric.Constant(2), MinFlow: metric.Constant(0), MaxFlow: metric.Constant(10),
	})
	require.NoError(t, err)
	bIdx, err := g.AddNode(Node{
		Kind: KindOutput, Name: index.Name{Name: "b"},
		Cost: metric.Constant(3), MinFlow: metric.Constant(0), MaxFlow: metric.Constant(10),
	})
	require.NoError(t, err)
	ei, err := g.Connect(aIdx, bIdx, index.Name{Name: "a_to_b"})
	require.NoError(t, err)

	st := state.New(0, state.Dims{Nodes: 2})
	cost, err := g.EdgeCost(ei, st, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cost)
}

func TestGraph_NodeFlowBounds_MinExceedsMaxIsInfeasible(t *testing.T) {
	g := NewGraph()
	idx, err := g.AddNode(Node{
		Kind: KindLink, Name: index.Name{Name: "l"},
		Cost: metric.Constant(0), MinFlow: metric.Constant(5), MaxFlow: metric.Constant(1),
	})
	require.NoError(t, err)

	st := state.New(0, state.Dims{Nodes: 1})
	_, _, err = g.NodeFlowBounds(idx, st, nil)
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInfeasibleStep, appErr.Code)
	assert.Equal(t, apperror.KindStep, appErr.Kind)
}

func TestGraph_NodeFlowBounds_Valid(t *testing.T) {
	g := NewGraph()
	idx := addNode(t, g, "l", KindLink)
	st := state.New(0, state.Dims{Nodes: 1})

	min, max, err := g.NodeFlowBounds(idx, st, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 1e9, max)
}

func TestGraph_NodeVolumeBounds_RejectsNonStorage(t *testing.T) {
	g := NewGraph()
	idx := addNode(t, g, "l", KindLink)
	st := state.New(0, state.Dims{Nodes: 1})

	_, _, err := g.NodeVolumeBounds(idx, st, nil)
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeMetricLoadError, appErr.Code)
}

func TestGraph_NodeVolumeBounds_Storage(t *testing.T) {
	g := NewGraph()
	idx, err := g.AddNode(Node{
		Kind: KindStorage, Name: index.Name{Name: "res"},
		Cost: metric.Constant(0), MinFlow: metric.Constant(0), MaxFlow: metric.Constant(0),
		MinVolume: metric.Constant(10), MaxVolume: metric.Constant(1000),
	})
	require.NoError(t, err)
	st := state.New(0, state.Dims{Nodes: 1})

	min, max, err := g.NodeVolumeBounds(idx, st, nil)
	require.NoError(t, err)
	assert.Equal(t, 10.0, min)
	assert.Equal(t, 1000.0, max)
}

func TestNode_InitialVolumeValue(t *testing.T) {
	abs := Node{Initial: InitialVolume{Proportional: false, Value: 42}}
	assert.Equal(t, 42.0, abs.InitialVolumeValue(1000))

	prop := Node{Initial: InitialVolume{Proportional: true, Value: 0.5}}
	assert.Equal(t, 500.0, prop.InitialVolumeValue(1000))
}

func TestNode_DefaultMetric(t *testing.T) {
	g := NewGraph()

	input, err := g.AddNode(Node{Kind: KindInput, Name: index.Name{Name: "in"}})
	require.NoError(t, err)
	link, err := g.AddNode(Node{Kind: KindLink, Name: index.Name{Name: "lk"}})
	require.NoError(t, err)
	output, err := g.AddNode(Node{Kind: KindOutput, Name: index.Name{Name: "out"}})
	require.NoError(t, err)
	storage, err := g.AddNode(Node{Kind: KindStorage, Name: index.Name{Name: "st"}})
	require.NoError(t, err)

	assert.Equal(t, metric.NodeOutFlow(input), g.Node(input).DefaultMetric())
	assert.Equal(t, metric.NodeInFlow(link), g.Node(link).DefaultMetric())
	assert.Equal(t, metric.NodeInFlow(output), g.Node(output).DefaultMetric())
	assert.Equal(t, metric.NodeVolume(storage), g.Node(storage).DefaultMetric())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "Input", KindInput.String())
	assert.Equal(t, "Link", KindLink.String())
	assert.Equal(t, "Output", KindOutput.String())
	assert.Equal(t, "Storage", KindStorage.String())
}
