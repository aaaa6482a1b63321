// Package lp assembles and solves the per-step linear program of spec §4.7
// (component C7): one continuous flow variable per edge plus one v_next
// auxiliary per storage node, node/aggregated-node/virtual-storage bound
// constraints, and a cost-minimising objective. The default solver is a
// dense Big-M simplex (internal/engine/lp/simplex.go); no MIP support, so
// Exclusive aggregated-node relationships fail at Build with
// apperror.CodeUnsupportedByBackend (spec §9).
package lp

import (
	"fmt"

	"simcore/internal/engine/aggregate"
	"simcore/internal/engine/index"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/network"
	"simcore/internal/engine/state"
	"simcore/pkg/apperror"
	"simcore/pkg/domain"
)

// RelOp is the relational operator of one constraint row.
type RelOp int

const (
	OpEqual RelOp = iota
	OpLessEqual
	OpGreaterEqual
)

// Term is one (variable, coefficient) pair in a constraint row or the
// objective.
type Term struct {
	Var   int
	Coeff float64
}

// Row is one linear constraint: Σ Terms.Coeff·x[Terms.Var] Op RHS.
type Row struct {
	Terms []Term
	Op    RelOp
	RHS   float64
	Label string // node/aggregate name, for InfeasibleStep diagnostics
}

// Problem is the assembled LP for one (step, scenario): one variable per
// edge flow, one per storage node's v_next, and every row from spec §4.7
// items 1-6.
type Problem struct {
	NumVars int
	Cost    []float64

	// LowerBound/UpperBound are box bounds per variable. Edge flows are
	// [0, +Inf); storage v_next is [min_volume, max_volume].
	LowerBound []float64
	UpperBound []float64

	Rows []Row

	// EdgeVar[e] is edge e's variable index (identical to e's own position,
	// kept explicit for readability at call sites).
	EdgeVar []int

	// StorageVar maps a storage node's position to its v_next variable
	// index.
	StorageVar map[int]int
}

func newProblem(numEdges, numStorage int) *Problem {
	n := numEdges + numStorage
	p := &Problem{
		NumVars:    n,
		Cost:       make([]float64, n),
		LowerBound: make([]float64, n),
		UpperBound: make([]float64, n),
		EdgeVar:    make([]int, numEdges),
		StorageVar: make(map[int]int, numStorage),
	}
	for i := range p.UpperBound {
		p.UpperBound[i] = domain.Infinity
	}
	for e := 0; e < numEdges; e++ {
		p.EdgeVar[e] = e
	}
	return p
}

// releaseTerms returns the flow terms representing node i's bounded
// direction: outgoing for Input/Link/Storage, incoming for Output (spec
// §4.7 item 3's "same on incoming for Output"). Storage's release rate is
// bounded the same way as Input/Link's discharge, extending item 3 to
// storage nodes (see DESIGN.md).
func releaseTerms(g *network.Graph, i index.NodeIndex, p *Problem) []Term {
	n := g.Node(i)
	var edges []index.EdgeIndex
	sign := 1.0
	if n.Kind == network.KindOutput {
		edges = n.Incoming
	} else {
		edges = n.Outgoing
	}
	terms := make([]Term, len(edges))
	for i, e := range edges {
		terms[i] = Term{Var: p.EdgeVar[e.Pos()], Coeff: sign}
	}
	return terms
}

// Assemble builds the LP for the current step from the network, the
// aggregated/virtual-storage registry, and already-resolved parameter
// values in st (spec §4.7).
func Assemble(g *network.Graph, aggs *aggregate.Registry, st *state.State, model metric.Model, stepDays float64) (*Problem, error) {
	nodeIdxs := g.NodeIndices()
	edgeIdxs := g.EdgeIndices()

	storagePos := make(map[int]int) // node pos -> storage ordinal
	for _, ni := range nodeIdxs {
		if g.Node(ni).Kind == network.KindStorage {
			storagePos[ni.Pos()] = len(storagePos)
		}
	}

	p := newProblem(len(edgeIdxs), len(storagePos))

	storageCurrent := make(map[int]float64, len(storagePos)) // node pos -> v_current

	for _, ni := range nodeIdxs {
		n := g.Node(ni)
		if n.Kind != network.KindStorage {
			continue
		}
		minVol, maxVol, err := g.NodeVolumeBounds(ni, st, model)
		if err != nil {
			return nil, err
		}
		varIdx := p.NumVars - len(storagePos) + storagePos[ni.Pos()]
		p.StorageVar[ni.Pos()] = varIdx
		p.LowerBound[varIdx] = minVol
		p.UpperBound[varIdx] = maxVol

		cost, err := g.NodeCost(ni, st, model)
		if err != nil {
			return nil, err
		}
		p.Cost[varIdx] = cost

		storageCurrent[ni.Pos()] = st.NodeState(ni).Volume
	}

	for _, ei := range edgeIdxs {
		cost, err := g.EdgeCost(ei, st, model)
		if err != nil {
			return nil, err
		}
		p.Cost[p.EdgeVar[ei.Pos()]] = cost
	}

	// Item 1: Link conservation, item 2: storage mass balance.
	for _, ni := range nodeIdxs {
		n := g.Node(ni)
		switch n.Kind {
		case network.KindLink:
			terms := make([]Term, 0, len(n.Incoming)+len(n.Outgoing))
			for _, e := range n.Incoming {
				terms = append(terms, Term{Var: p.EdgeVar[e.Pos()], Coeff: 1})
			}
			for _, e := range n.Outgoing {
				terms = append(terms, Term{Var: p.EdgeVar[e.Pos()], Coeff: -1})
			}
			p.Rows = append(p.Rows, Row{Terms: terms, Op: OpEqual, RHS: 0, Label: n.Name.String()})

		case network.KindStorage:
			terms := make([]Term, 0, len(n.Incoming)+len(n.Outgoing)+1)
			for _, e := range n.Incoming {
				terms = append(terms, Term{Var: p.EdgeVar[e.Pos()], Coeff: 1})
			}
			for _, e := range n.Outgoing {
				terms = append(terms, Term{Var: p.EdgeVar[e.Pos()], Coeff: -1})
			}
			if stepDays <= 0 {
				return nil, apperror.NewStepError(apperror.CodeInvalidArgument, "step_days must be positive", -1, st.Scenario)
			}
			terms = append(terms, Term{Var: p.StorageVar[ni.Pos()], Coeff: -1 / stepDays})
			rhs := -storageCurrent[ni.Pos()] / stepDays
			p.Rows = append(p.Rows, Row{Terms: terms, Op: OpEqual, RHS: rhs, Label: n.Name.String()})
		}
	}

	// Item 3: per-node flow bounds (Input/Link/Output/Storage release).
	for _, ni := range nodeIdxs {
		minFlow, maxFlow, err := g.NodeFlowBounds(ni, st, model)
		if err != nil {
			return nil, err
		}
		terms := releaseTerms(g, ni, p)
		if len(terms) == 0 {
			continue
		}
		name := g.Node(ni).Name.String()
		p.Rows = append(p.Rows, Row{Terms: cloneTerms(terms), Op: OpGreaterEqual, RHS: minFlow, Label: name})
		p.Rows = append(p.Rows, Row{Terms: cloneTerms(terms), Op: OpLessEqual, RHS: maxFlow, Label: name})
	}

	// Item 4/5: aggregated-node bounds and proportion/ratio relationships.
	for _, an := range aggs.AllAggregatedNodes() {
		terms := make([]Term, 0, len(an.Constituents))
		perConstituent := make([][]Term, len(an.Constituents))
		for i, ni := range an.Constituents {
			ct := releaseTerms(g, ni, p)
			perConstituent[i] = ct
			terms = append(terms, ct...)
		}

		minFlow, err := metric.Evaluate(an.MinFlow, st, model)
		if err != nil {
			return nil, err
		}
		maxFlow, err := metric.Evaluate(an.MaxFlow, st, model)
		if err != nil {
			return nil, err
		}
		p.Rows = append(p.Rows, Row{Terms: cloneTerms(terms), Op: OpGreaterEqual, RHS: minFlow, Label: an.Name.String()})
		p.Rows = append(p.Rows, Row{Terms: cloneTerms(terms), Op: OpLessEqual, RHS: maxFlow, Label: an.Name.String()})

		switch an.Relationship.Kind {
		case aggregate.RelationshipProportion:
			// constituent i's flow must equal factor_i times the group's
			// total flow: ct_i - factor_i * Σ_k ct_k = 0.
			for i, ct := range perConstituent {
				f := an.Relationship.Factors[i]
				row := cloneTerms(ct)
				for _, t := range terms {
					row = append(row, Term{Var: t.Var, Coeff: -f * t.Coeff})
				}
				p.Rows = append(p.Rows, Row{Terms: row, Op: OpEqual, RHS: 0, Label: fmt.Sprintf("%s[proportion %d]", an.Name, i)})
			}

		case aggregate.RelationshipRatio:
			for i := 0; i < len(perConstituent)-1; i++ {
				j := i + 1
				fi, fj := an.Relationship.Factors[i], an.Relationship.Factors[j]
				row := make([]Term, 0, len(perConstituent[i])+len(perConstituent[j]))
				for _, t := range perConstituent[i] {
					row = append(row, Term{Var: t.Var, Coeff: t.Coeff * fj})
				}
				for _, t := range perConstituent[j] {
					row = append(row, Term{Var: t.Var, Coeff: -t.Coeff * fi})
				}
				p.Rows = append(p.Rows, Row{Terms: row, Op: OpEqual, RHS: 0, Label: fmt.Sprintf("%s[ratio %d/%d]", an.Name, i, j)})
			}

		case aggregate.RelationshipExclusive:
			return nil, apperror.NewBuildError(
				apperror.CodeUnsupportedByBackend,
				fmt.Sprintf("aggregated node %q: Exclusive relationship requires a MIP-capable solver", an.Name),
			)
		}
	}

	// Item 6: virtual-storage bounds, purely in terms of this step's flows.
	// Non-rolling storages bound v_next = v_current + Δ against [min,max],
	// with v_current a known constant that Integrate() advances afterwards.
	// Rolling storages never deplete v_current (see Integrate); instead the
	// bound limits this step's draw so that, added to the rolling window's
	// existing sum, the total stays within [min,max] — the window itself
	// advances afterwards in Integrate.
	for _, vsi := range aggs.VirtualStorageIndices() {
		vsIdx := index.NewVirtualStorageIndex(vsi)
		vs := aggs.VirtualStorage(vsIdx)

		terms := make([]Term, 0, len(vs.Constituents))
		for i, ni := range vs.Constituents {
			n := g.Node(ni)
			var edges []index.EdgeIndex
			if n.Kind == network.KindOutput {
				edges = n.Incoming
			} else {
				edges = n.Outgoing
			}
			for _, e := range edges {
				terms = append(terms, Term{Var: p.EdgeVar[e.Pos()], Coeff: -vs.Factors[i] * stepDays})
			}
		}

		minVol, err := metric.Evaluate(vs.MinVolume, st, model)
		if err != nil {
			return nil, err
		}
		maxVol, err := metric.Evaluate(vs.MaxVolume, st, model)
		if err != nil {
			return nil, err
		}

		var geRHS, leRHS float64
		if vs.Reset.Kind == aggregate.ResetRolling {
			used := st.VirtualStorage(vsIdx).WindowSum()
			// used + draw·step_days must stay within [min,max], and
			// terms == -draw·step_days: used - max <= terms <= used - min.
			geRHS = used - maxVol
			leRHS = used - minVol
		} else {
			vCurrent := st.VirtualStorage(vsIdx).Volume
			// v_current + Σ terms must stay within [min,max]:
			// min - v_current <= terms <= max - v_current
			geRHS = minVol - vCurrent
			leRHS = maxVol - vCurrent
		}
		p.Rows = append(p.Rows, Row{Terms: cloneTerms(terms), Op: OpGreaterEqual, RHS: geRHS, Label: vs.Name.String()})
		p.Rows = append(p.Rows, Row{Terms: cloneTerms(terms), Op: OpLessEqual, RHS: leRHS, Label: vs.Name.String()})
	}

	return p, nil
}

func cloneTerms(t []Term) []Term {
	out := make([]Term, len(t))
	copy(out, t)
	return out
}
