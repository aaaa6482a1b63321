// Package network implements the node graph (spec §3/§4.3, component C3):
// the tagged Node variant (Input/Link/Output/Storage), append-only Edge
// storage, adjacency, and the cost/min_flow/max_flow accessors that resolve
// metric expressions against State.
package network

import (
	"fmt"

	"simcore/internal/engine/index"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/state"
	"simcore/pkg/apperror"
)

// Kind tags which of the four node variants a Node is.
type Kind int

const (
	KindInput Kind = iota
	KindLink
	KindOutput
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "Input"
	case KindLink:
		return "Link"
	case KindOutput:
		return "Output"
	case KindStorage:
		return "Storage"
	default:
		return "Unknown"
	}
}

// InitialVolume is a storage node's starting volume, either an absolute
// value or a proportion of its configured max volume (spec §3).
type InitialVolume struct {
	Proportional bool
	Value        float64
}

// Node is the tagged variant over {Input, Link, Output, Storage} (spec
// §3). Flow-bearing nodes (all four kinds, since Storage both receives and
// emits flow) carry Cost/MinFlow/MaxFlow metric slots; Storage additionally
// carries MinVolume/MaxVolume and an initial volume.
type Node struct {
	Kind Kind
	Name index.Name
	self index.NodeIndex

	Incoming []index.EdgeIndex
	Outgoing []index.EdgeIndex

	Cost    metric.Expr
	MinFlow metric.Expr
	MaxFlow metric.Expr

	MinVolume metric.Expr
	MaxVolume metric.Expr
	Initial   InitialVolume
}

// Self returns the node's own index, set once it is added to a Graph.
func (n *Node) Self() index.NodeIndex { return n.self }

// DefaultMetric returns the metric expression this node exposes when
// referenced without qualification (spec §3: Input→outflow,
// Link/Output→inflow, Storage→volume). Link and Output share inflow as the
// default since, at steady state within a step, node in-flow equals
// out-flow for non-storage nodes (spec §8 property 1): either reads the
// same conserved quantity.
func (n *Node) DefaultMetric() metric.Expr {
	switch n.Kind {
	case KindInput:
		return metric.NodeOutFlow(n.self)
	case KindStorage:
		return metric.NodeVolume(n.self)
	default:
		return metric.NodeInFlow(n.self)
	}
}

// Edge is an ordered (from, to) pair; flow is always >= 0. Edges are
// append-only and their indices stable for the network's lifetime (spec
// §3).
type Edge struct {
	Name index.Name
	From index.NodeIndex
	To   index.NodeIndex
}

// Graph owns every Node and Edge in the network. It is built once during
// setup and is read-only during a step; State is the only mutable frontier
// (spec §9 "State ownership").
type Graph struct {
	nodes *index.Table[Node]
	edges *index.Table[Edge]
}

func NewGraph() *Graph {
	return &Graph{
		nodes: index.NewTable[Node]("node"),
		edges: index.NewTable[Edge]("edge"),
	}
}

// AddNode registers n and returns its new index.
func (g *Graph) AddNode(n Node) (index.NodeIndex, error) {
	idx, err := g.nodes.PushNew(n.Name, n)
	if err != nil {
		return index.NodeIndex{}, err
	}
	ni := index.NewNodeIndex(idx)
	g.nodes.Get(idx).self = ni
	return ni, nil
}

// Connect adds an edge from -> to under name, failing on self-loops (spec
// §4.3). A second edge reusing the same name fails with
// NameAlreadyExists regardless of its endpoints (Table's name uniqueness);
// a second edge between the same (from, to) pair under a *different* name
// is always allowed — this is the resolution of §9's "Open question — edge
// deduplication": distinct-named parallel edges form a normal multigraph
// (needed for S3's piecewise-link decomposition), and a true duplicate
// (same name) is rejected by construction.
func (g *Graph) Connect(from, to index.NodeIndex, name index.Name) (index.EdgeIndex, error) {
	if from.Pos() == to.Pos() {
		return index.EdgeIndex{}, apperror.NewBuildError(
			apperror.CodeInvalidGraph,
			fmt.Sprintf("edge %q: self-loop on node %s is not allowed", name, from),
		)
	}

	idx, err := g.edges.PushNew(name, Edge{Name: name, From: from, To: to})
	if err != nil {
		return index.EdgeIndex{}, err
	}
	ei := index.NewEdgeIndex(idx)

	fromNode := g.nodes.Get(from.Index)
	fromNode.Outgoing = append(fromNode.Outgoing, ei)
	toNode := g.nodes.Get(to.Index)
	toNode.Incoming = append(toNode.Incoming, ei)

	return ei, nil
}

func (g *Graph) Node(i index.NodeIndex) *Node { return g.nodes.Get(i.Index) }
func (g *Graph) Edge(i index.EdgeIndex) *Edge { return g.edges.Get(i.Index) }

func (g *Graph) NodeByName(name index.Name) (*Node, index.NodeIndex, bool) {
	n, idx, ok := g.nodes.GetByName(name)
	if !ok {
		return nil, index.NodeIndex{}, false
	}
	return &n, index.NewNodeIndex(idx), true
}

func (g *Graph) NumNodes() int { return g.nodes.Len() }
func (g *Graph) NumEdges() int { return g.edges.Len() }

func (g *Graph) NodeIndices() []index.NodeIndex {
	raw := g.nodes.Indices()
	out := make([]index.NodeIndex, len(raw))
	for i, r := range raw {
		out[i] = index.NewNodeIndex(r)
	}
	return out
}

func (g *Graph) EdgeIndices() []index.EdgeIndex {
	raw := g.edges.Indices()
	out := make([]index.EdgeIndex, len(raw))
	for i, r := range raw {
		out[i] = index.NewEdgeIndex(r)
	}
	return out
}

// NodeCost evaluates node i's cost metric against st.
func (g *Graph) NodeCost(i index.NodeIndex, st *state.State, model metric.Model) (float64, error) {
	v, err := metric.Evaluate(g.Node(i).Cost, st, model)
	if err != nil {
		return 0, wrapMetricError(err, i, st.Scenario)
	}
	return v, nil
}

// EdgeCost implements spec §4.3: cost(edge) = outgoing_cost(from) +
// incoming_cost(to), where both contributions read the same per-node Cost
// slot (there is only one cost metric per node; "outgoing" and "incoming"
// name which endpoint's cost contributes to an edge crossing it).
func (g *Graph) EdgeCost(ei index.EdgeIndex, st *state.State, model metric.Model) (float64, error) {
	e := g.Edge(ei)
	fromCost, err := g.NodeCost(e.From, st, model)
	if err != nil {
		return 0, err
	}
	toCost, err := g.NodeCost(e.To, st, model)
	if err != nil {
		return 0, err
	}
	return fromCost + toCost, nil
}

// NodeFlowBounds evaluates node i's min_flow/max_flow metrics and
// validates min <= max (spec §3 invariant c); a violation fails the step.
func (g *Graph) NodeFlowBounds(i index.NodeIndex, st *state.State, model metric.Model) (min, max float64, err error) {
	n := g.Node(i)
	min, err = metric.Evaluate(n.MinFlow, st, model)
	if err != nil {
		return 0, 0, wrapMetricError(err, i, st.Scenario)
	}
	max, err = metric.Evaluate(n.MaxFlow, st, model)
	if err != nil {
		return 0, 0, wrapMetricError(err, i, st.Scenario)
	}
	if min > max {
		return 0, 0, apperror.NewStepError(
			apperror.CodeInfeasibleStep,
			fmt.Sprintf("node %s: min_flow %.6g exceeds max_flow %.6g", n.Name, min, max),
			-1, st.Scenario,
		)
	}
	return min, max, nil
}

// NodeVolumeBounds evaluates storage node i's min_volume/max_volume
// metrics.
func (g *Graph) NodeVolumeBounds(i index.NodeIndex, st *state.State, model metric.Model) (min, max float64, err error) {
	n := g.Node(i)
	if n.Kind != KindStorage {
		return 0, 0, apperror.NewStepError(
			apperror.CodeMetricLoadError,
			fmt.Sprintf("node %s is not a storage node", n.Name),
			-1, st.Scenario,
		)
	}
	min, err = metric.Evaluate(n.MinVolume, st, model)
	if err != nil {
		return 0, 0, wrapMetricError(err, i, st.Scenario)
	}
	max, err = metric.Evaluate(n.MaxVolume, st, model)
	if err != nil {
		return 0, 0, wrapMetricError(err, i, st.Scenario)
	}
	return min, max, nil
}

// InitialVolumeValue resolves a storage node's initial volume to an
// absolute quantity, given its (already evaluated) max volume.
func (n *Node) InitialVolumeValue(maxVolume float64) float64 {
	if n.Initial.Proportional {
		return n.Initial.Value * maxVolume
	}
	return n.Initial.Value
}

func wrapMetricError(err error, n index.NodeIndex, scenario int) error {
	if appErr, ok := err.(*apperror.Error); ok {
		return appErr.WithStepContext(-1, scenario)
	}
	return apperror.NewStepError(apperror.CodeMetricLoadError, err.Error(), -1, scenario)
}
