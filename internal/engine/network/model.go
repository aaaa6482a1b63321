package network

import (
	"fmt"

	"simcore/internal/engine/aggregate"
	"simcore/internal/engine/index"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/state"
	"simcore/pkg/apperror"
)

// DerivedMetricFunc computes a single DerivedMetric slot's value.
type DerivedMetricFunc func(st *state.State, model metric.Model) (float64, error)

// Model composes Graph and aggregate.Registry into the full metric.Model
// surface, plus a slot-indexed table of derived-metric functions (spec
// §3/§4.5's "derived metrics" — computed on demand, cached in State until
// the next step). It is the one place network and aggregate meet: network
// imports aggregate here, and aggregate never imports network, avoiding a
// cycle (among engine packages aggregate depends only on index/metric/state).
type Model struct {
	Graph      *Graph
	Aggregates *aggregate.Registry

	derived []DerivedMetricFunc
}

// NewModel builds a Model over an already-populated Graph and Registry.
func NewModel(g *Graph, a *aggregate.Registry) *Model {
	return &Model{Graph: g, Aggregates: a}
}

// AddDerivedMetric registers fn under a new slot and returns it, for use in
// metric.DerivedMetric(slot) expressions.
func (m *Model) AddDerivedMetric(fn DerivedMetricFunc) int {
	m.derived = append(m.derived, fn)
	return len(m.derived) - 1
}

// NumDerivedMetrics returns the number of registered derived-metric slots,
// for state.Dims construction.
func (m *Model) NumDerivedMetrics() int { return len(m.derived) }

func (m *Model) NodeMaxVolumeExpr(i index.NodeIndex) (metric.Expr, error) {
	n := m.Graph.Node(i)
	if n.Kind != KindStorage {
		return metric.Expr{}, apperror.NewBuildError(
			apperror.CodeMetricLoadError,
			fmt.Sprintf("node %s is not a storage node, has no max volume", n.Name),
		)
	}
	return n.MaxVolume, nil
}

func (m *Model) NodeMinVolumeExpr(i index.NodeIndex) (metric.Expr, error) {
	n := m.Graph.Node(i)
	if n.Kind != KindStorage {
		return metric.Expr{}, apperror.NewBuildError(
			apperror.CodeMetricLoadError,
			fmt.Sprintf("node %s is not a storage node, has no min volume", n.Name),
		)
	}
	return n.MinVolume, nil
}

func (m *Model) AggregatedNodeConstituents(i index.AggregatedNodeIndex) ([]index.NodeIndex, error) {
	return m.Aggregates.AggregatedNodeConstituents(i)
}

func (m *Model) AggregatedStorageConstituents(i index.AggregatedStorageIndex) ([]index.NodeIndex, error) {
	return m.Aggregates.AggregatedStorageConstituents(i)
}

func (m *Model) VirtualStorageMaxVolumeExpr(i index.VirtualStorageIndex) (metric.Expr, error) {
	return m.Aggregates.VirtualStorageMaxVolumeExpr(i)
}

func (m *Model) ComputeDerivedMetric(slot int, st *state.State, model metric.Model) (float64, error) {
	if slot < 0 || slot >= len(m.derived) {
		return 0, apperror.NewStepError(
			apperror.CodeMetricLoadError,
			fmt.Sprintf("derived metric slot %d out of range", slot),
			-1, st.Scenario,
		)
	}
	return m.derived[slot](st, model)
}
