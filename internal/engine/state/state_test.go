package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"simcore/internal/engine/index"
)

func newDims() Dims {
	return Dims{
		Nodes:           3,
		Edges:           2,
		Parameters:      2,
		IndexParameters: 1,
		DerivedMetrics:  4,
		VirtualStorages: []float64{100, 50},
		RollingWindows:  []int{0, 5},
	}
}

func idxAt(pos int) index.Index {
	tbl := index.NewTable[struct{}]("x")
	var last index.Index
	for i := 0; i <= pos; i++ {
		last, _ = tbl.PushNew(index.Name{Name: string(rune('a' + i))}, struct{}{})
	}
	return last
}

func TestState_NodeAndEdge(t *testing.T) {
	s := New(0, newDims())

	ni := index.NewNodeIndex(idxAt(1))
	ns := s.NodeState(ni)
	ns.InFlow = 10
	ns.Volume = 5

	got := s.NodeState(ni)
	assert.Equal(t, 10.0, got.InFlow)
	assert.Equal(t, 5.0, got.Volume)

	ei := index.NewEdgeIndex(idxAt(0))
	s.SetEdgeFlow(ei, 3.5)
	assert.Equal(t, 3.5, s.EdgeFlow(ei))
}

func TestState_ParameterValues(t *testing.T) {
	s := New(0, newDims())
	pi := index.NewParameterIndex(idxAt(0))
	s.SetParameterValue(pi, 12.0)
	assert.Equal(t, 12.0, s.ParameterValue(pi))

	ipi := index.NewIndexParameterIndex(idxAt(0))
	s.SetParameterIndexValue(ipi, 1)
	assert.Equal(t, 1, s.ParameterIndexValue(ipi))
}

func TestState_ParameterSnapshot(t *testing.T) {
	s := New(0, newDims())
	pi := index.NewParameterIndex(idxAt(0))
	ipi := index.NewIndexParameterIndex(idxAt(0))

	s.SetParameterValue(pi, 1.0)
	s.SetParameterIndexValue(ipi, 1)

	// Before any snapshot, previous values are the zero value.
	assert.Equal(t, 0.0, s.PreviousParameterValue(pi))
	assert.Equal(t, 0, s.PreviousParameterIndexValue(ipi))

	s.SnapshotParameters()
	// Snapshot captured what was current; overwriting afterward doesn't
	// change what the snapshot reports.
	s.SetParameterValue(pi, 99.0)
	s.SetParameterIndexValue(ipi, 0)

	assert.Equal(t, 1.0, s.PreviousParameterValue(pi))
	assert.Equal(t, 1, s.PreviousParameterIndexValue(ipi))
	assert.Equal(t, 99.0, s.ParameterValue(pi))
}

func TestState_DerivedMetricCache(t *testing.T) {
	s := New(0, newDims())

	_, ok := s.DerivedMetric(0)
	assert.False(t, ok)

	s.SetDerivedMetric(0, 42.0)
	v, ok := s.DerivedMetric(0)
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)

	s.ClearDerivedMetricCache()
	_, ok = s.DerivedMetric(0)
	assert.False(t, ok)
}

func TestVirtualStorageState_RollingWindow(t *testing.T) {
	vs := NewVirtualStorageState(90, 3)
	assert.True(t, vs.HasWindow())

	vs.PushUtilisation(1)
	vs.PushUtilisation(2)
	assert.Equal(t, 3.0, vs.WindowSum())

	vs.PushUtilisation(3)
	assert.Equal(t, 6.0, vs.WindowSum())

	// Window full: oldest (1) drops off.
	vs.PushUtilisation(4)
	assert.Equal(t, 9.0, vs.WindowSum())
}

func TestVirtualStorageState_NoWindow(t *testing.T) {
	vs := NewVirtualStorageState(90, 0)
	assert.False(t, vs.HasWindow())
	vs.PushUtilisation(5)
	assert.Equal(t, 0.0, vs.WindowSum())
}
