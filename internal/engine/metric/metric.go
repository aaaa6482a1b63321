// Package metric implements the tagged metric-expression algebra of spec
// §3/§4.5: a referentially-transparent, read-only expression evaluated
// against State (and, for a handful of variants that need to know a node's
// own bounds, against the read-only network Model). Metrics never write.
//
// AggregatedNodeVolume/ProportionalVolume from spec §3's variant list are
// split here into separate AggregatedStorage* kinds, since volume only
// makes sense for the AggregatedStorage container (§3 "AggregatedStorage —
// exposes summed volume / proportional-volume"), not the constraint-only
// AggregatedNode. Flow variants (InFlow/OutFlow) stay on AggregatedNode.
package metric

import (
	"fmt"

	"simcore/internal/engine/index"
	"simcore/internal/engine/state"
	"simcore/pkg/apperror"
)

// Kind tags which variant an Expr holds.
type Kind int

const (
	KindConstant Kind = iota
	KindNodeInFlow
	KindNodeOutFlow
	KindNodeVolume
	KindNodeMaxVolume
	KindNodeMinVolume
	KindNodeProportionalVolume
	KindAggregatedNodeInFlow
	KindAggregatedNodeOutFlow
	KindAggregatedStorageVolume
	KindAggregatedStorageProportionalVolume
	KindVirtualStorageVolume
	KindVirtualStorageProportionalVolume
	KindParameterValue
	KindIndexParameterValue
	KindMultiNodeInFlow
	KindMultiNodeOutFlow
	KindDerivedMetric
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "Constant"
	case KindNodeInFlow:
		return "NodeInFlow"
	case KindNodeOutFlow:
		return "NodeOutFlow"
	case KindNodeVolume:
		return "NodeVolume"
	case KindNodeMaxVolume:
		return "NodeMaxVolume"
	case KindNodeMinVolume:
		return "NodeMinVolume"
	case KindNodeProportionalVolume:
		return "NodeProportionalVolume"
	case KindAggregatedNodeInFlow:
		return "AggregatedNodeInFlow"
	case KindAggregatedNodeOutFlow:
		return "AggregatedNodeOutFlow"
	case KindAggregatedStorageVolume:
		return "AggregatedStorageVolume"
	case KindAggregatedStorageProportionalVolume:
		return "AggregatedStorageProportionalVolume"
	case KindVirtualStorageVolume:
		return "VirtualStorageVolume"
	case KindVirtualStorageProportionalVolume:
		return "VirtualStorageProportionalVolume"
	case KindParameterValue:
		return "ParameterValue"
	case KindIndexParameterValue:
		return "IndexParameterValue"
	case KindMultiNodeInFlow:
		return "MultiNodeInFlow"
	case KindMultiNodeOutFlow:
		return "MultiNodeOutFlow"
	case KindDerivedMetric:
		return "DerivedMetric"
	default:
		return "Unknown"
	}
}

// Expr is a tagged metric expression. Only the fields relevant to Kind are
// populated; the rest are zero.
type Expr struct {
	Kind Kind

	Constant float64

	Node            index.NodeIndex
	AggregatedNode  index.AggregatedNodeIndex
	AggregatedStore index.AggregatedStorageIndex
	VirtualStorage  index.VirtualStorageIndex
	Parameter       index.ParameterIndex
	IndexParameter  index.IndexParameterIndex

	MultiNodes []index.NodeIndex
	Name       string // MultiNodeInFlow/OutFlow's display name

	DerivedMetricSlot int
}

// Constant builds a constant-valued expression.
func Constant(v float64) Expr { return Expr{Kind: KindConstant, Constant: v} }

// NodeInFlow builds a reference to node i's in-flow.
func NodeInFlow(i index.NodeIndex) Expr { return Expr{Kind: KindNodeInFlow, Node: i} }

// NodeOutFlow builds a reference to node i's out-flow.
func NodeOutFlow(i index.NodeIndex) Expr { return Expr{Kind: KindNodeOutFlow, Node: i} }

// NodeVolume builds a reference to storage node i's current volume.
func NodeVolume(i index.NodeIndex) Expr { return Expr{Kind: KindNodeVolume, Node: i} }

// NodeMaxVolume builds a reference to storage node i's max-volume bound.
func NodeMaxVolume(i index.NodeIndex) Expr { return Expr{Kind: KindNodeMaxVolume, Node: i} }

// NodeMinVolume builds a reference to storage node i's min-volume bound.
func NodeMinVolume(i index.NodeIndex) Expr { return Expr{Kind: KindNodeMinVolume, Node: i} }

// NodeProportionalVolume builds a reference to storage node i's derived
// proportional volume (volume / max_volume).
func NodeProportionalVolume(i index.NodeIndex) Expr {
	return Expr{Kind: KindNodeProportionalVolume, Node: i}
}

func AggregatedNodeInFlow(i index.AggregatedNodeIndex) Expr {
	return Expr{Kind: KindAggregatedNodeInFlow, AggregatedNode: i}
}

func AggregatedNodeOutFlow(i index.AggregatedNodeIndex) Expr {
	return Expr{Kind: KindAggregatedNodeOutFlow, AggregatedNode: i}
}

func AggregatedStorageVolume(i index.AggregatedStorageIndex) Expr {
	return Expr{Kind: KindAggregatedStorageVolume, AggregatedStore: i}
}

func AggregatedStorageProportionalVolume(i index.AggregatedStorageIndex) Expr {
	return Expr{Kind: KindAggregatedStorageProportionalVolume, AggregatedStore: i}
}

func VirtualStorageVolume(i index.VirtualStorageIndex) Expr {
	return Expr{Kind: KindVirtualStorageVolume, VirtualStorage: i}
}

func VirtualStorageProportionalVolume(i index.VirtualStorageIndex) Expr {
	return Expr{Kind: KindVirtualStorageProportionalVolume, VirtualStorage: i}
}

func ParameterValue(i index.ParameterIndex) Expr {
	return Expr{Kind: KindParameterValue, Parameter: i}
}

func IndexParameterValue(i index.IndexParameterIndex) Expr {
	return Expr{Kind: KindIndexParameterValue, IndexParameter: i}
}

func MultiNodeInFlow(name string, nodes []index.NodeIndex) Expr {
	return Expr{Kind: KindMultiNodeInFlow, Name: name, MultiNodes: nodes}
}

func MultiNodeOutFlow(name string, nodes []index.NodeIndex) Expr {
	return Expr{Kind: KindMultiNodeOutFlow, Name: name, MultiNodes: nodes}
}

func DerivedMetric(slot int) Expr {
	return Expr{Kind: KindDerivedMetric, DerivedMetricSlot: slot}
}

// Model is the read-only network surface Evaluate needs to resolve
// variants that recurse into a node/aggregate's own attribute expressions.
// internal/engine/network implements this interface; metric does not
// import network to avoid a dependency cycle (network.Node fields hold
// Expr values).
type Model interface {
	// NodeMaxVolumeExpr returns storage node i's max-volume expression.
	NodeMaxVolumeExpr(i index.NodeIndex) (Expr, error)

	// NodeMinVolumeExpr returns storage node i's min-volume expression.
	NodeMinVolumeExpr(i index.NodeIndex) (Expr, error)

	// AggregatedNodeConstituents returns the flow nodes belonging to
	// aggregated node i.
	AggregatedNodeConstituents(i index.AggregatedNodeIndex) ([]index.NodeIndex, error)

	// AggregatedStorageConstituents returns the storage nodes belonging to
	// aggregated storage i.
	AggregatedStorageConstituents(i index.AggregatedStorageIndex) ([]index.NodeIndex, error)

	// VirtualStorageMaxVolumeExpr returns virtual storage i's configured
	// max-volume expression (before any rolling-window adjustment).
	VirtualStorageMaxVolumeExpr(i index.VirtualStorageIndex) (Expr, error)

	// ComputeDerivedMetric computes (or recomputes) the value for a
	// DerivedMetric slot not already cached in State.
	ComputeDerivedMetric(slot int, st *state.State, model Model) (float64, error)
}

// Evaluate computes expr's value against st (for state reads) and model
// (for recursive bound/constituent lookups). Pure: never writes to st
// except through State's own derived-metric cache, which is a memoisation
// detail, not an observable side effect (spec §9 "Derived metrics").
func Evaluate(expr Expr, st *state.State, model Model) (float64, error) {
	switch expr.Kind {
	case KindConstant:
		return expr.Constant, nil

	case KindNodeInFlow:
		return st.NodeState(expr.Node).InFlow, nil

	case KindNodeOutFlow:
		return st.NodeState(expr.Node).OutFlow, nil

	case KindNodeVolume:
		return st.NodeState(expr.Node).Volume, nil

	case KindNodeMaxVolume:
		sub, err := model.NodeMaxVolumeExpr(expr.Node)
		if err != nil {
			return 0, err
		}
		return Evaluate(sub, st, model)

	case KindNodeMinVolume:
		sub, err := model.NodeMinVolumeExpr(expr.Node)
		if err != nil {
			return 0, err
		}
		return Evaluate(sub, st, model)

	case KindNodeProportionalVolume:
		return evaluateNodeProportionalVolume(expr, st, model)

	case KindAggregatedNodeInFlow:
		nodes, err := model.AggregatedNodeConstituents(expr.AggregatedNode)
		if err != nil {
			return 0, err
		}
		sum := 0.0
		for _, n := range nodes {
			sum += st.NodeState(n).InFlow
		}
		return sum, nil

	case KindAggregatedNodeOutFlow:
		nodes, err := model.AggregatedNodeConstituents(expr.AggregatedNode)
		if err != nil {
			return 0, err
		}
		sum := 0.0
		for _, n := range nodes {
			sum += st.NodeState(n).OutFlow
		}
		return sum, nil

	case KindAggregatedStorageVolume:
		nodes, err := model.AggregatedStorageConstituents(expr.AggregatedStore)
		if err != nil {
			return 0, err
		}
		sum := 0.0
		for _, n := range nodes {
			sum += st.NodeState(n).Volume
		}
		return sum, nil

	case KindAggregatedStorageProportionalVolume:
		nodes, err := model.AggregatedStorageConstituents(expr.AggregatedStore)
		if err != nil {
			return 0, err
		}
		var vol, maxVol float64
		for _, n := range nodes {
			vol += st.NodeState(n).Volume
			sub, err := model.NodeMaxVolumeExpr(n)
			if err != nil {
				return 0, err
			}
			mv, err := Evaluate(sub, st, model)
			if err != nil {
				return 0, err
			}
			maxVol += mv
		}
		return proportional(vol, maxVol), nil

	case KindVirtualStorageVolume:
		return st.VirtualStorage(expr.VirtualStorage).Volume, nil

	case KindVirtualStorageProportionalVolume:
		vs := st.VirtualStorage(expr.VirtualStorage)
		sub, err := model.VirtualStorageMaxVolumeExpr(expr.VirtualStorage)
		if err != nil {
			return 0, err
		}
		maxVol, err := Evaluate(sub, st, model)
		if err != nil {
			return 0, err
		}
		return proportional(vs.Volume, maxVol), nil

	case KindParameterValue:
		return st.ParameterValue(expr.Parameter), nil

	case KindIndexParameterValue:
		return float64(st.ParameterIndexValue(expr.IndexParameter)), nil

	case KindMultiNodeInFlow:
		sum := 0.0
		for _, n := range expr.MultiNodes {
			sum += st.NodeState(n).InFlow
		}
		return sum, nil

	case KindMultiNodeOutFlow:
		sum := 0.0
		for _, n := range expr.MultiNodes {
			sum += st.NodeState(n).OutFlow
		}
		return sum, nil

	case KindDerivedMetric:
		if v, ok := st.DerivedMetric(expr.DerivedMetricSlot); ok {
			return v, nil
		}
		v, err := model.ComputeDerivedMetric(expr.DerivedMetricSlot, st, model)
		if err != nil {
			return 0, err
		}
		st.SetDerivedMetric(expr.DerivedMetricSlot, v)
		return v, nil

	default:
		return 0, apperror.NewStepError(
			apperror.CodeMetricLoadError,
			fmt.Sprintf("unknown metric kind %v", expr.Kind),
			-1, st.Scenario,
		)
	}
}

func evaluateNodeProportionalVolume(expr Expr, st *state.State, model Model) (float64, error) {
	vol := st.NodeState(expr.Node).Volume
	sub, err := model.NodeMaxVolumeExpr(expr.Node)
	if err != nil {
		return 0, err
	}
	maxVol, err := Evaluate(sub, st, model)
	if err != nil {
		return 0, err
	}
	return proportional(vol, maxVol), nil
}

// proportional implements spec §4.5: volume / max_volume, defined as 0
// when max_volume is 0.
func proportional(volume, maxVolume float64) float64 {
	if maxVolume == 0 {
		return 0
	}
	return volume / maxVolume
}

// HydropowerPower implements spec §4.5's flow-to-power formula:
// P = η·ρ·g·(elev_water − elev_turbine)·q·flow_unit_conv·energy_unit_conv,
// clamped to 0 below min_head.
func HydropowerPower(efficiency, density, gravity, elevWater, elevTurbine, flow, flowUnitConv, energyUnitConv, minHead float64) float64 {
	head := elevWater - elevTurbine
	if head < minHead {
		return 0
	}
	power := efficiency * density * gravity * head * flow * flowUnitConv * energyUnitConv
	if power < 0 {
		return 0
	}
	return power
}
