package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simcore/internal/engine/index"
	"simcore/internal/engine/state"
)

// fakeModel is a minimal Model for testing expression evaluation in
// isolation from the network package.
type fakeModel struct {
	maxVolume map[int]Expr
	minVolume map[int]Expr
	aggNode   map[int][]index.NodeIndex
	aggStore  map[int][]index.NodeIndex
	vsMax     map[int]Expr
	derived   func(slot int, st *state.State, model Model) (float64, error)
}

func (m *fakeModel) NodeMaxVolumeExpr(i index.NodeIndex) (Expr, error) {
	return m.maxVolume[i.Pos()], nil
}
func (m *fakeModel) NodeMinVolumeExpr(i index.NodeIndex) (Expr, error) {
	return m.minVolume[i.Pos()], nil
}
func (m *fakeModel) AggregatedNodeConstituents(i index.AggregatedNodeIndex) ([]index.NodeIndex, error) {
	return m.aggNode[i.Pos()], nil
}
func (m *fakeModel) AggregatedStorageConstituents(i index.AggregatedStorageIndex) ([]index.NodeIndex, error) {
	return m.aggStore[i.Pos()], nil
}
func (m *fakeModel) VirtualStorageMaxVolumeExpr(i index.VirtualStorageIndex) (Expr, error) {
	return m.vsMax[i.Pos()], nil
}
func (m *fakeModel) ComputeDerivedMetric(slot int, st *state.State, model Model) (float64, error) {
	return m.derived(slot, st, model)
}

func nodeIdx(n int) index.NodeIndex {
	tbl := index.NewTable[struct{}]("node")
	var last index.Index
	for i := 0; i <= n; i++ {
		last, _ = tbl.PushNew(index.Name{Name: string(rune('a' + i))}, struct{}{})
	}
	return index.NewNodeIndex(last)
}

func TestEvaluate_Constant(t *testing.T) {
	v, err := Evaluate(Constant(42), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestEvaluate_NodeFlowsAndVolume(t *testing.T) {
	st := state.New(0, state.Dims{Nodes: 1})
	n := nodeIdx(0)
	ns := st.NodeState(n)
	ns.InFlow = 3
	ns.OutFlow = 4
	ns.Volume = 50

	v, err := Evaluate(NodeInFlow(n), st, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = Evaluate(NodeOutFlow(n), st, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	v, err = Evaluate(NodeVolume(n), st, nil)
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)
}

func TestEvaluate_NodeProportionalVolume(t *testing.T) {
	st := state.New(0, state.Dims{Nodes: 1})
	n := nodeIdx(0)
	st.NodeState(n).Volume = 25

	model := &fakeModel{maxVolume: map[int]Expr{n.Pos(): Constant(100)}}

	v, err := Evaluate(NodeProportionalVolume(n), st, model)
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)
}

func TestEvaluate_NodeProportionalVolume_ZeroMax(t *testing.T) {
	st := state.New(0, state.Dims{Nodes: 1})
	n := nodeIdx(0)
	st.NodeState(n).Volume = 25

	model := &fakeModel{maxVolume: map[int]Expr{n.Pos(): Constant(0)}}

	v, err := Evaluate(NodeProportionalVolume(n), st, model)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestEvaluate_AggregatedNodeInFlow(t *testing.T) {
	st := state.New(0, state.Dims{Nodes: 2})
	n0, n1 := nodeIdx(0), nodeIdx(1)
	st.NodeState(n0).InFlow = 5
	st.NodeState(n1).InFlow = 7

	aggIdx := index.NewAggregatedNodeIndex(nodeIdx(0).Index)
	model := &fakeModel{aggNode: map[int][]index.NodeIndex{aggIdx.Pos(): {n0, n1}}}

	v, err := Evaluate(AggregatedNodeInFlow(aggIdx), st, model)
	require.NoError(t, err)
	assert.Equal(t, 12.0, v)
}

func TestEvaluate_DerivedMetricMemoisation(t *testing.T) {
	st := state.New(0, state.Dims{Nodes: 1, DerivedMetrics: 1})
	calls := 0
	model := &fakeModel{derived: func(slot int, st *state.State, model Model) (float64, error) {
		calls++
		return 99.0, nil
	}}

	v, err := Evaluate(DerivedMetric(0), st, model)
	require.NoError(t, err)
	assert.Equal(t, 99.0, v)

	v, err = Evaluate(DerivedMetric(0), st, model)
	require.NoError(t, err)
	assert.Equal(t, 99.0, v)
	assert.Equal(t, 1, calls, "derived metric should only be computed once until cache clear")

	st.ClearDerivedMetricCache()
	_, err = Evaluate(DerivedMetric(0), st, model)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestHydropowerPower_BelowMinHead(t *testing.T) {
	p := HydropowerPower(0.9, 1000, 9.81, 100, 99, 10, 1, 1, 5)
	assert.Equal(t, 0.0, p)
}

func TestHydropowerPower_AboveMinHead(t *testing.T) {
	p := HydropowerPower(1, 1, 1, 10, 0, 5, 1, 1, 1)
	assert.Equal(t, 50.0, p)
}
