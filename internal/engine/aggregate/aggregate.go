// Package aggregate implements aggregated nodes, aggregated storage and
// virtual storage (spec §3/§4.4, component C4): sum-of-flow constraints,
// proportion/ratio/exclusive relationships, and virtual "licence" storage
// with periodic reset and rolling-window bookkeeping.
package aggregate

import (
	"fmt"
	"time"

	"simcore/internal/engine/index"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/state"
	"simcore/pkg/apperror"
	"simcore/pkg/domain"
)

// RelationshipKind tags an AggregatedNode's optional constraint beyond the
// plain sum-of-flows bound.
type RelationshipKind int

const (
	RelationshipNone RelationshipKind = iota
	RelationshipProportion
	RelationshipRatio
	RelationshipExclusive
)

// Relationship is the optional extra constraint on an AggregatedNode's
// constituent flows (spec §3).
type Relationship struct {
	Kind RelationshipKind

	// Proportion/Ratio: one factor per constituent, same order as Node.
	Factors []float64

	// Exclusive: integer bound on how many constituents carry non-zero
	// flow. Requires a MIP-capable solver; the default LP-only solver
	// rejects this at Build (apperror.CodeUnsupportedByBackend).
	MinActive int
	MaxActive int
}

// AggregatedNode is a named group of constituent flow nodes with an
// optional bound on the sum of their flows and an optional Relationship.
type AggregatedNode struct {
	Name         index.Name
	Constituents []index.NodeIndex
	MinFlow      metric.Expr
	MaxFlow      metric.Expr
	Relationship Relationship
}

// AggregatedStorage is a named group of storage nodes exposing summed
// volume / proportional volume as a metric. No independent constraints.
type AggregatedStorage struct {
	Name         index.Name
	Constituents []index.NodeIndex
}

// ResetKind tags a VirtualStorage's reset policy.
type ResetKind int

const (
	ResetNever ResetKind = iota
	ResetDayOfYear
	ResetNumberOfMonths
	ResetRolling
)

// ResetPolicy is one of Never / DayOfYear{day,month} / NumberOfMonths{n} /
// Rolling{N} (spec §3).
type ResetPolicy struct {
	Kind ResetKind

	Day   int // DayOfYear
	Month time.Month

	Months int // NumberOfMonths

	Window int // Rolling: number of prior steps retained
}

// VirtualStorage is a pseudo-reservoir whose "stored" quantity is
// Σ(factor_i · flow_i) of referenced flow nodes, integrated over time
// (spec §3/§4.4).
type VirtualStorage struct {
	Name           index.Name
	Constituents   []index.NodeIndex
	Factors        []float64
	MinVolume      metric.Expr
	MaxVolume      metric.Expr
	InitialVolume  float64
	Cost           metric.Expr
	Reset          ResetPolicy
}

// Registry owns every AggregatedNode, AggregatedStorage and VirtualStorage
// in the network, keyed by the opaque indices of internal/engine/index.
type Registry struct {
	nodes    *index.Table[AggregatedNode]
	storages *index.Table[AggregatedStorage]
	virtuals *index.Table[VirtualStorage]

	hasMIPSolver bool
}

// NewRegistry creates an empty registry. hasMIPSolver controls whether
// Exclusive relationships are accepted at AddAggregatedNode time.
func NewRegistry(hasMIPSolver bool) *Registry {
	return &Registry{
		nodes:        index.NewTable[AggregatedNode]("aggregated node"),
		storages:     index.NewTable[AggregatedStorage]("aggregated storage"),
		virtuals:     index.NewTable[VirtualStorage]("virtual storage"),
		hasMIPSolver: hasMIPSolver,
	}
}

// AddAggregatedNode registers n, rejecting Exclusive relationships when no
// MIP-capable solver is configured (spec §4.7 item 5, §9 "exclusive
// without MIP").
func (r *Registry) AddAggregatedNode(n AggregatedNode) (index.AggregatedNodeIndex, error) {
	if n.Relationship.Kind == RelationshipExclusive && !r.hasMIPSolver {
		return index.AggregatedNodeIndex{}, apperror.NewBuildError(
			apperror.CodeUnsupportedByBackend,
			fmt.Sprintf("aggregated node %q uses Exclusive relationship, which requires a MIP-capable solver", n.Name),
		)
	}
	idx, err := r.nodes.PushNew(n.Name, n)
	return index.NewAggregatedNodeIndex(idx), err
}

func (r *Registry) AddAggregatedStorage(s AggregatedStorage) (index.AggregatedStorageIndex, error) {
	idx, err := r.storages.PushNew(s.Name, s)
	return index.NewAggregatedStorageIndex(idx), err
}

func (r *Registry) AddVirtualStorage(v VirtualStorage) (index.VirtualStorageIndex, error) {
	if len(v.Constituents) != len(v.Factors) {
		return index.VirtualStorageIndex{}, apperror.NewBuildError(
			apperror.CodeDataLengthMismatch,
			fmt.Sprintf("virtual storage %q: %d constituents but %d factors", v.Name, len(v.Constituents), len(v.Factors)),
		)
	}
	idx, err := r.virtuals.PushNew(v.Name, v)
	return index.NewVirtualStorageIndex(idx), err
}

func (r *Registry) AggregatedNode(i index.AggregatedNodeIndex) *AggregatedNode {
	return r.nodes.Get(i.Index)
}

func (r *Registry) AggregatedStorage(i index.AggregatedStorageIndex) *AggregatedStorage {
	return r.storages.Get(i.Index)
}

func (r *Registry) VirtualStorage(i index.VirtualStorageIndex) *VirtualStorage {
	return r.virtuals.Get(i.Index)
}

func (r *Registry) AllVirtualStorages() []VirtualStorage { return r.virtuals.All() }
func (r *Registry) AllAggregatedNodes() []AggregatedNode  { return r.nodes.All() }
func (r *Registry) VirtualStorageIndices() []index.Index  { return r.virtuals.Indices() }

// --- metric.Model partial implementation (delegated to by network.Model) ---

func (r *Registry) AggregatedNodeConstituents(i index.AggregatedNodeIndex) ([]index.NodeIndex, error) {
	return r.AggregatedNode(i).Constituents, nil
}

func (r *Registry) AggregatedStorageConstituents(i index.AggregatedStorageIndex) ([]index.NodeIndex, error) {
	return r.AggregatedStorage(i).Constituents, nil
}

func (r *Registry) VirtualStorageMaxVolumeExpr(i index.VirtualStorageIndex) (metric.Expr, error) {
	return r.VirtualStorage(i).MaxVolume, nil
}

// ApplyResets evaluates every virtual storage's reset policy for the
// timestep about to run, mutating st. Must run BEFORE the LP solve of step
// t (spec §4.4).
func (r *Registry) ApplyResets(now time.Time, st *state.State) {
	for _, idx := range r.virtuals.Indices() {
		vsIdx := index.NewVirtualStorageIndex(idx)
		vs := r.VirtualStorage(vsIdx)
		vsState := st.VirtualStorage(vsIdx)

		switch vs.Reset.Kind {
		case ResetNever, ResetRolling:
			// No calendar reset; rolling storages rely on the window
			// dropping old entries instead.
		case ResetDayOfYear:
			if crossedDayOfYear(vsState.LastResetDate, now, vs.Reset.Day, vs.Reset.Month) {
				vsState.Volume = vs.InitialVolume
				vsState.LastResetDate = now
			}
		case ResetNumberOfMonths:
			if vsState.LastResetDate.IsZero() {
				vsState.LastResetDate = now
			} else if monthsElapsed(vsState.LastResetDate, now) >= vs.Reset.Months {
				vsState.Volume = vs.InitialVolume
				vsState.LastResetDate = now
			}
		}
	}
}

// crossedDayOfYear reports whether `now` is on or after the (day, month)
// anniversary and the last reset predates it.
func crossedDayOfYear(lastReset, now time.Time, day int, month time.Month) bool {
	if lastReset.IsZero() {
		return now.Month() == month && now.Day() == day
	}
	anniversary := time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location())
	return !now.Before(anniversary) && lastReset.Before(anniversary)
}

func monthsElapsed(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	return months
}

// Integrate updates every virtual storage's volume at the END of a step,
// per spec §4.4:
//
//	Δ = - Σ factor_i · flow_i(step) · step_days
//	v_next = clamp(v + Δ, 0, ∞)
//
// Rolling reset policies are the exception: Volume is left untouched and
// this step's weighted draw is instead pushed into the rolling window, since
// the LP's max-volume bound for a rolling storage reads configured_max −
// WindowSum() rather than configured_max − Volume (lp.Assemble item 6).
func (r *Registry) Integrate(st *state.State, stepDays float64) error {
	for _, idx := range r.virtuals.Indices() {
		vsIdx := index.NewVirtualStorageIndex(idx)
		vs := r.VirtualStorage(vsIdx)
		vsState := st.VirtualStorage(vsIdx)

		draw := 0.0
		for i, n := range vs.Constituents {
			flow := st.NodeState(n).OutFlow
			draw += vs.Factors[i] * flow
		}
		weighted := draw * stepDays

		// Rolling storages never deplete Volume: their LP bound is driven
		// entirely by the rolling window (see lp.Assemble item 6), so
		// Volume is left at its initial value and only the window is
		// advanced.
		if vs.Reset.Kind == ResetRolling {
			vsState.PushUtilisation(weighted)
		} else {
			vsState.Volume = domain.Max(vsState.Volume-weighted, 0)
		}
	}
	return nil
}

// RollingWindowSizes returns, in virtual-storage index order, the rolling
// window length to allocate in state.Dims (0 for non-rolling policies).
func (r *Registry) RollingWindowSizes() []int {
	all := r.virtuals.All()
	sizes := make([]int, len(all))
	for i, vs := range all {
		if vs.Reset.Kind == ResetRolling {
			sizes[i] = vs.Reset.Window
		}
	}
	return sizes
}

// InitialVolumes returns, in virtual-storage index order, each one's
// initial volume, for state.Dims construction.
func (r *Registry) InitialVolumes() []float64 {
	all := r.virtuals.All()
	out := make([]float64, len(all))
	for i, vs := range all {
		out[i] = vs.InitialVolume
	}
	return out
}
