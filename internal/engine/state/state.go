// Package state holds the per-scenario mutable state that the engine
// advances one timestep at a time: node in/out flows and storage volumes,
// edge flows, parameter values, and the derived-metric cache. The network
// graph built during setup (internal/engine/network) is read-only during a
// step; State is the only thing that mutates, which is what makes
// per-scenario parallelism trivial (spec §5, §9 "State ownership").
package state

import (
	"time"

	"simcore/internal/engine/index"
)

// NodeState is the per-step record for one node: in/out flow for flow
// nodes, volume (plus its own in/out flow) for storage nodes.
type NodeState struct {
	InFlow  float64
	OutFlow float64
	Volume  float64
}

// VirtualStorageState carries the current volume of one virtual storage
// plus, for rolling-window reset policies, a fixed-length ring buffer of
// the last N prior weighted-flow utilisations (spec §4.4, §6 "Persisted
// state layout for rolling virtual storage").
type VirtualStorageState struct {
	Volume float64

	// LastResetDate is the last time a DayOfYear/NumberOfMonths reset
	// fired. Zero value means "never reset".
	LastResetDate time.Time

	window []float64
	head   int // index the next PushUtilisation will overwrite
	filled int // number of valid entries in window, saturates at len(window)
}

// NewVirtualStorageState creates virtual-storage state with an initial
// volume and a rolling window of the given size (0 disables the window,
// appropriate for Never/DayOfYear/NumberOfMonths reset policies).
func NewVirtualStorageState(initialVolume float64, windowSize int) VirtualStorageState {
	var window []float64
	if windowSize > 0 {
		window = make([]float64, windowSize)
	}
	return VirtualStorageState{Volume: initialVolume, window: window}
}

// PushUtilisation records this step's weighted-flow draw into the rolling
// window, dropping the oldest entry once the window is full. No-op when no
// window was configured.
func (s *VirtualStorageState) PushUtilisation(v float64) {
	if len(s.window) == 0 {
		return
	}
	s.window[s.head] = v
	s.head = (s.head + 1) % len(s.window)
	if s.filled < len(s.window) {
		s.filled++
	}
}

// WindowSum returns the sum of utilisations currently held in the rolling
// window: zero when no window is configured, and the sum of the entries
// pushed so far while the window has not filled yet.
func (s *VirtualStorageState) WindowSum() float64 {
	sum := 0.0
	for i := 0; i < s.filled; i++ {
		sum += s.window[i]
	}
	return sum
}

// HasWindow reports whether this virtual storage uses a rolling window.
func (s *VirtualStorageState) HasWindow() bool { return len(s.window) > 0 }

// State is the full mutable frontier for one scenario. All reads are O(1)
// indexed lookups (spec §4.2 contract); writes happen between LP-solve and
// recorder-save, or inside the virtual-storage integration step.
type State struct {
	Scenario int

	nodeStates      []NodeState
	edgeFlows       []float64
	parameterValues []float64
	parameterIndex  []int
	derivedMetrics  []*float64
	virtualStorages []VirtualStorageState

	// previousParameterValues/previousParameterIndex hold a snapshot taken
	// at the start of the step, before any parameter in this step's resolve
	// order has been (re)computed. Self-referential parameter variants
	// (AsymmetricSwitchIndex, Threshold's ratchet) read their own prior
	// output through this snapshot rather than the in-progress current-step
	// array, since the current array is overwritten in resolve order as the
	// step proceeds and would otherwise already hold this step's value by
	// the time a later parameter tried to read its own "previous" state.
	previousParameterValues []float64
	previousParameterIndex  []int
}

// Dims describes how many entries each per-index array needs; it mirrors
// the sizes of the corresponding index.Table built during setup.
type Dims struct {
	Nodes            int
	Edges            int
	Parameters       int
	IndexParameters  int
	DerivedMetrics   int
	VirtualStorages  []float64 // initial volume per virtual storage
	RollingWindows   []int     // window size per virtual storage, 0 = no window
}

// New allocates a fresh State for one scenario sized per dims.
func New(scenario int, dims Dims) *State {
	vs := make([]VirtualStorageState, len(dims.VirtualStorages))
	for i := range vs {
		window := 0
		if i < len(dims.RollingWindows) {
			window = dims.RollingWindows[i]
		}
		vs[i] = NewVirtualStorageState(dims.VirtualStorages[i], window)
	}

	return &State{
		Scenario:                scenario,
		nodeStates:              make([]NodeState, dims.Nodes),
		edgeFlows:               make([]float64, dims.Edges),
		parameterValues:         make([]float64, dims.Parameters),
		parameterIndex:          make([]int, dims.IndexParameters),
		derivedMetrics:          make([]*float64, dims.DerivedMetrics),
		virtualStorages:         vs,
		previousParameterValues: make([]float64, dims.Parameters),
		previousParameterIndex:  make([]int, dims.IndexParameters),
	}
}

func (s *State) NodeState(idx index.NodeIndex) *NodeState {
	return &s.nodeStates[idx.Pos()]
}

func (s *State) EdgeFlow(idx index.EdgeIndex) float64 {
	return s.edgeFlows[idx.Pos()]
}

func (s *State) SetEdgeFlow(idx index.EdgeIndex, flow float64) {
	s.edgeFlows[idx.Pos()] = flow
}

func (s *State) ParameterValue(idx index.ParameterIndex) float64 {
	return s.parameterValues[idx.Pos()]
}

func (s *State) SetParameterValue(idx index.ParameterIndex, v float64) {
	s.parameterValues[idx.Pos()] = v
}

func (s *State) ParameterIndexValue(idx index.IndexParameterIndex) int {
	return s.parameterIndex[idx.Pos()]
}

func (s *State) SetParameterIndexValue(idx index.IndexParameterIndex, v int) {
	s.parameterIndex[idx.Pos()] = v
}

// SnapshotParameters copies the current parameter arrays into the
// previous-step snapshot. Must run once at the very start of a step, before
// any parameter in the resolve order is (re)computed.
func (s *State) SnapshotParameters() {
	copy(s.previousParameterValues, s.parameterValues)
	copy(s.previousParameterIndex, s.parameterIndex)
}

// PreviousParameterValue returns parameter idx's value as of the end of the
// previous step (or its zero value on the first step).
func (s *State) PreviousParameterValue(idx index.ParameterIndex) float64 {
	return s.previousParameterValues[idx.Pos()]
}

// PreviousParameterIndexValue returns index-parameter idx's value as of the
// end of the previous step (or its zero value on the first step).
func (s *State) PreviousParameterIndexValue(idx index.IndexParameterIndex) int {
	return s.previousParameterIndex[idx.Pos()]
}

// DerivedMetric returns the cached value for slot i, if any was computed
// this step.
func (s *State) DerivedMetric(i int) (float64, bool) {
	if s.derivedMetrics[i] == nil {
		return 0, false
	}
	return *s.derivedMetrics[i], true
}

func (s *State) SetDerivedMetric(i int, v float64) {
	s.derivedMetrics[i] = &v
}

// ClearDerivedMetricCache invalidates every cached derived metric. Called
// at the top of each step (spec §9: "invalidate at the top of each step,
// not lazily, to avoid stale reads after state advance").
func (s *State) ClearDerivedMetricCache() {
	for i := range s.derivedMetrics {
		s.derivedMetrics[i] = nil
	}
}

func (s *State) VirtualStorage(idx index.VirtualStorageIndex) *VirtualStorageState {
	return &s.virtualStorages[idx.Pos()]
}

// NumVirtualStorages returns how many virtual storages this state tracks.
func (s *State) NumVirtualStorages() int { return len(s.virtualStorages) }
