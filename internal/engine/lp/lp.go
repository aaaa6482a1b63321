package lp

import (
	"context"

	"simcore/internal/engine/aggregate"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/network"
	"simcore/internal/engine/state"
)

// AlgorithmBigMSimplex names the only solver this package ships (spec
// §4.7's default, LP-only backend).
const AlgorithmBigMSimplex = "bigm-simplex"

// Step assembles the current step's LP, solves it (via cache, when cache is
// non-nil), and writes the solved edge flows and node in/out flows/volumes
// back into st. Callers must invoke aggregate.Registry.ApplyResets before
// Step and aggregate.Registry.Integrate after it (spec §4.8).
func Step(ctx context.Context, g *network.Graph, aggs *aggregate.Registry, st *state.State, model metric.Model, stepDays float64, c *SolveCache) (*Result, error) {
	p, err := Assemble(g, aggs, st, model, stepDays)
	if err != nil {
		return nil, err
	}

	var key string
	if c != nil {
		key = c.Key(p)
		if cached, ok := c.Lookup(ctx, key); ok {
			applyResult(g, p, cached, st)
			return cached, nil
		}
	}

	result, err := Solve(p)
	if err != nil {
		return nil, err
	}

	if c != nil {
		_ = c.Store(ctx, key, result)
	}

	applyResult(g, p, result, st)
	return result, nil
}

// ApplyResult writes a solved flow/volume vector into state. Exposed
// separately from Step so callers that need the assemble/solve/apply phases
// timed individually (internal/engine/scheduler) can drive them by hand.
func ApplyResult(g *network.Graph, p *Problem, r *Result, st *state.State) {
	applyResult(g, p, r, st)
}

// applyResult writes a solved flow/volume vector into state: each edge's
// flow, each node's resulting in/out flow, and each storage node's new
// volume (from its v_next variable).
func applyResult(g *network.Graph, p *Problem, r *Result, st *state.State) {
	for _, ei := range g.EdgeIndices() {
		st.SetEdgeFlow(ei, r.Values[p.EdgeVar[ei.Pos()]])
	}

	for _, ni := range g.NodeIndices() {
		n := g.Node(ni)
		ns := st.NodeState(ni)
		ns.InFlow = 0
		ns.OutFlow = 0
		for _, e := range n.Incoming {
			ns.InFlow += r.Values[p.EdgeVar[e.Pos()]]
		}
		for _, e := range n.Outgoing {
			ns.OutFlow += r.Values[p.EdgeVar[e.Pos()]]
		}
		if n.Kind == network.KindStorage {
			ns.Volume = r.Values[p.StorageVar[ni.Pos()]]
		}
	}
}
