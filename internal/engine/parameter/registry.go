package parameter

import (
	"fmt"

	"simcore/internal/engine/index"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/state"
	"simcore/internal/engine/timestep"
	"simcore/pkg/apperror"
)

// Registry holds every parameter and index-parameter in the network plus
// the order they must be evaluated in each step, resolved once at build
// time (spec §4.6, §9 "Parameter resolve order").
type Registry struct {
	params      *index.Table[Param]
	indexParams *index.Table[IndexParam]

	paramIndices      []index.Index
	indexParamIndices []index.Index

	order []entry
}

type entryKind int

const (
	entryParam entryKind = iota
	entryIndexParam
)

type entry struct {
	kind entryKind
	pos  int // position within params/indexParams in insertion order
}

// NewRegistry creates an empty parameter registry.
func NewRegistry() *Registry {
	return &Registry{
		params:      index.NewTable[Param]("parameter"),
		indexParams: index.NewTable[IndexParam]("index_parameter"),
	}
}

// AddParameter registers a float-valued parameter under name.
func (r *Registry) AddParameter(name index.Name, p Param) (index.ParameterIndex, error) {
	p.Name = name
	idx, err := r.params.PushNew(name, p)
	if err != nil {
		return index.ParameterIndex{}, err
	}
	return index.NewParameterIndex(idx), nil
}

// AddIndexParameter registers an index-valued parameter under name.
func (r *Registry) AddIndexParameter(name index.Name, p IndexParam) (index.IndexParameterIndex, error) {
	p.Name = name
	idx, err := r.indexParams.PushNew(name, p)
	if err != nil {
		return index.IndexParameterIndex{}, err
	}
	return index.NewIndexParameterIndex(idx), nil
}

// Parameter returns the registered parameter at idx.
func (r *Registry) Parameter(idx index.ParameterIndex) *Param { return r.params.Get(idx.Index) }

// IndexParameter returns the registered index-parameter at idx.
func (r *Registry) IndexParameter(idx index.IndexParameterIndex) *IndexParam {
	return r.indexParams.Get(idx.Index)
}

// NumParameters returns the number of registered float parameters.
func (r *Registry) NumParameters() int { return r.params.Len() }

// NumIndexParameters returns the number of registered index parameters.
func (r *Registry) NumIndexParameters() int { return r.indexParams.Len() }

// dependency is one reference from a parameter/index-parameter to another
// parameter or index-parameter it must be evaluated after.
type dependency struct {
	kind entryKind
	pos  int
}

func exprDependency(e metric.Expr) (dependency, bool) {
	switch e.Kind {
	case metric.KindParameterValue:
		return dependency{kind: entryParam, pos: e.Parameter.Pos()}, true
	case metric.KindIndexParameterValue:
		return dependency{kind: entryIndexParam, pos: e.IndexParameter.Pos()}, true
	default:
		return dependency{}, false
	}
}

// paramDependencies returns every other parameter/index-parameter p reads,
// found by inspecting its own top-level metric.Expr fields. metric.Expr is
// leaf-only (spec §4.5), so no recursive expression walk is needed.
func paramDependencies(p *Param) []dependency {
	var exprs []metric.Expr
	switch p.Kind {
	case KindOffset:
		exprs = append(exprs, p.Base)
	case KindMax, KindMin, KindNegative:
		exprs = append(exprs, p.Operand)
	case KindDivision:
		exprs = append(exprs, p.Numerator, p.Denominator)
	case KindAggregated:
		exprs = append(exprs, p.Operands...)
	case KindInterpolated:
		exprs = append(exprs, p.X)
	case KindIndexedArray:
		exprs = append(exprs, p.Values...)
	case KindThreshold:
		exprs = append(exprs, p.ThresholdMetric)
	case KindDiscountFactor:
		exprs = append(exprs, p.RateMetric)
	case KindHydropowerTarget:
		exprs = append(exprs, p.TargetPower, p.WaterElevation)
		if p.HasMinFlow {
			exprs = append(exprs, p.HPMinFlow)
		}
		if p.HasMaxFlow {
			exprs = append(exprs, p.HPMaxFlow)
		}
	}

	var deps []dependency
	if p.Kind == KindIndexedArray {
		deps = append(deps, dependency{kind: entryIndexParam, pos: p.IndexSource.Pos()})
	}
	for _, e := range exprs {
		if d, ok := exprDependency(e); ok {
			deps = append(deps, d)
		}
	}
	return deps
}

func indexParamDependencies(p *IndexParam) []dependency {
	var deps []dependency
	if d, ok := exprDependency(p.On); ok {
		deps = append(deps, d)
	}
	if d, ok := exprDependency(p.Off); ok {
		deps = append(deps, d)
	}
	return deps
}

// Resolve computes a valid evaluation order for every registered
// parameter/index-parameter via fixed-point, deferred-retry passes: each
// pass adds every entry whose dependencies are already resolved; a pass
// that resolves nothing means the remaining entries form a cycle (spec
// §4.11 CircularParameterReference).
func (r *Registry) Resolve() error {
	r.paramIndices = r.params.Indices()
	r.indexParamIndices = r.indexParams.Indices()

	total := len(r.paramIndices) + len(r.indexParamIndices)
	resolved := make(map[entry]bool, total)
	r.order = make([]entry, 0, total)

	pending := make([]entry, 0, total)
	for i := range r.paramIndices {
		pending = append(pending, entry{kind: entryParam, pos: i})
	}
	for i := range r.indexParamIndices {
		pending = append(pending, entry{kind: entryIndexParam, pos: i})
	}

	for len(pending) > 0 {
		var next []entry
		progressed := false

		for _, e := range pending {
			var deps []dependency
			if e.kind == entryParam {
				deps = paramDependencies(r.params.Get(r.paramIndices[e.pos]))
			} else {
				deps = indexParamDependencies(r.indexParams.Get(r.indexParamIndices[e.pos]))
			}

			ready := true
			for _, d := range deps {
				if !resolved[entry{kind: d.kind, pos: d.pos}] {
					ready = false
					break
				}
			}

			if ready {
				r.order = append(r.order, e)
				resolved[e] = true
				progressed = true
			} else {
				next = append(next, e)
			}
		}

		if !progressed {
			return apperror.NewBuildError(
				apperror.CodeCircularParameterReference,
				fmt.Sprintf("circular parameter reference among %d unresolved parameter(s)", len(next)),
			)
		}
		pending = next
	}

	return nil
}

// EvaluateStep snapshots the previous step's parameter values, then
// evaluates every registered parameter/index-parameter in resolve order,
// writing results into st. Returns a fatal step error naming the offending
// parameter on NaN (spec §4.6 "Numerical policy").
func (r *Registry) EvaluateStep(st *state.State, ts timestep.Timestep, model metric.Model) error {
	st.SnapshotParameters()

	for _, e := range r.order {
		if e.kind == entryParam {
			rawIdx := r.paramIndices[e.pos]
			idx := index.NewParameterIndex(rawIdx)
			p := r.params.Get(rawIdx)
			v, err := computeParam(idx, p, st, ts, model)
			if err != nil {
				return err
			}
			if v != v { // NaN
				return apperror.NewStepError(
					apperror.CodeNaNInParameter,
					fmt.Sprintf("parameter %q produced NaN", p.Name),
					ts.Ordinal, st.Scenario,
				)
			}
			st.SetParameterValue(idx, v)
		} else {
			rawIdx := r.indexParamIndices[e.pos]
			idx := index.NewIndexParameterIndex(rawIdx)
			p := r.indexParams.Get(rawIdx)
			v, err := computeIndexParam(idx, p, st, model)
			if err != nil {
				return err
			}
			st.SetParameterIndexValue(idx, v)
		}
	}
	return nil
}
