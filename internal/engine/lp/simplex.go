package lp

import (
	"fmt"
	"math"

	"simcore/pkg/apperror"
	"simcore/pkg/domain"
)

// bigM is the penalty applied to artificial variables. It must dominate any
// realistic objective coefficient; costs in this engine are bounded metric
// values, never anywhere near this magnitude.
const bigM = 1e7

// Result is a solved LP: one value per original problem variable.
type Result struct {
	Values     []float64
	Objective  float64
	Iterations int
}

// Solve runs a dense Big-M simplex over p (spec §4.7's six constraint
// families plus the cost-minimising objective). No example repo in the
// retrieval pack imports an LP/simplex/linear-algebra library (checked
// go.mod across the whole pack), so the method is hand-rolled; see
// DESIGN.md for the justification and for why a general LP — not pure
// min-cost-flow — is required (Proportion/Ratio aggregated-node
// relationships are not representable as edge capacities/costs).
func Solve(p *Problem) (*Result, error) {
	t, err := newTableau(p)
	if err != nil {
		return nil, err
	}
	if err := t.run(); err != nil {
		return nil, err
	}
	return t.extract(p), nil
}

// tableau is a standard-form dense simplex tableau: rows x (n+1) where the
// last column is RHS, plus a one-row objective/cost vector. Every structural
// variable is shifted into [0, ub-lb] via x = lb + x' (box lower bounds are
// folded into the RHS at construction; finite upper bounds become explicit
// <= rows), so the tableau only ever deals with x' >= 0.
type tableau struct {
	rows    [][]float64 // len(rows) x numCols
	cost    []float64   // len numCols, the Big-M objective row
	numCols int
	basis   []int // basis[r] = column index basic in row r

	nStruct int // number of structural (shifted) variables, == p.NumVars
	lb      []float64
}

func newTableau(p *Problem) (*tableau, error) {
	// Count rows: one per Row in p.Rows, plus one per variable with a
	// finite upper bound (box constraint x' <= ub-lb).
	extraRows := 0
	for _, ub := range p.UpperBound {
		if ub < domain.Infinity {
			extraRows++
		}
	}
	rows := make([]Row, 0, len(p.Rows)+extraRows)
	rows = append(rows, p.Rows...)
	for v, ub := range p.UpperBound {
		if ub < domain.Infinity {
			// Stated on x; the lower-bound shift below turns it into
			// x' <= ub-lb.
			rows = append(rows, Row{
				Terms: []Term{{Var: v, Coeff: 1}},
				Op:    OpLessEqual,
				RHS:   ub,
			})
		}
	}

	// Shift each row's RHS for the lower-bound substitution x = lb + x'.
	shifted := make([]Row, len(rows))
	for i, row := range rows {
		rhs := row.RHS
		for _, t := range row.Terms {
			rhs -= t.Coeff * p.LowerBound[t.Var]
		}
		shifted[i] = Row{Terms: row.Terms, Op: row.Op, RHS: rhs, Label: row.Label}
	}

	m := len(shifted)
	n := p.NumVars

	// Column layout: [0,n) structural, [n,n+m) slack/surplus (one per row,
	// unused columns left at zero), [n+m,n+m+numArtificial) artificial.
	slackBase := n
	artBase := n + m

	// Determine, after RHS-sign normalisation, which rows need an
	// artificial variable: every '=' row, and every '>=' row (after
	// normalisation its slack has coefficient -1).
	normalised := make([]Row, m)
	needsArtificial := make([]bool, m)
	numArtificial := 0
	for i, row := range shifted {
		op := row.Op
		rhs := row.RHS
		terms := row.Terms
		if rhs < 0 {
			terms = negateTerms(terms)
			rhs = -rhs
			switch op {
			case OpLessEqual:
				op = OpGreaterEqual
			case OpGreaterEqual:
				op = OpLessEqual
			}
		}
		normalised[i] = Row{Terms: terms, Op: op, RHS: rhs, Label: row.Label}
		if op != OpLessEqual {
			needsArtificial[i] = true
			numArtificial++
		}
	}

	numCols := n + m + numArtificial
	t := &tableau{
		numCols: numCols,
		nStruct: n,
		lb:      p.LowerBound,
		basis:   make([]int, m),
		rows:    make([][]float64, m),
		cost:    make([]float64, numCols+1),
	}

	artCol := artBase
	for i, row := range normalised {
		r := make([]float64, numCols+1)
		for _, term := range row.Terms {
			r[term.Var] += term.Coeff
		}
		r[numCols] = row.RHS

		switch row.Op {
		case OpLessEqual:
			r[slackBase+i] = 1
			t.basis[i] = slackBase + i
		case OpGreaterEqual:
			r[slackBase+i] = -1
			r[artCol] = 1
			t.basis[i] = artCol
			artCol++
		case OpEqual:
			r[artCol] = 1
			t.basis[i] = artCol
			artCol++
		}
		t.rows[i] = r
	}

	for v, c := range p.Cost {
		t.cost[v] = c
	}
	for col := artBase; col < numCols; col++ {
		t.cost[col] = bigM
	}

	// Price out the basic (artificial) variables so the cost row reads
	// reduced costs relative to the current basis.
	for i, b := range t.basis {
		if t.cost[b] == 0 {
			continue
		}
		factor := t.cost[b]
		for c := 0; c <= numCols; c++ {
			t.cost[c] -= factor * t.rows[i][c]
		}
	}

	return t, nil
}

func negateTerms(terms []Term) []Term {
	out := make([]Term, len(terms))
	for i, t := range terms {
		out[i] = Term{Var: t.Var, Coeff: -t.Coeff}
	}
	return out
}

const maxSimplexIterations = 20000

// run executes the simplex method (Bland's rule for pivot selection, to
// guarantee termination without cycling) until optimal, unbounded, or
// infeasible.
func (t *tableau) run() error {
	m := len(t.rows)
	for iter := 0; iter < maxSimplexIterations; iter++ {
		// Bland's rule: pick the lowest-indexed column with a negative
		// reduced cost.
		enter := -1
		for c := 0; c < t.numCols; c++ {
			if t.cost[c] < -domain.Epsilon {
				enter = c
				break
			}
		}
		if enter == -1 {
			return t.checkFeasible()
		}

		leave := -1
		best := math.Inf(1)
		for r := 0; r < m; r++ {
			a := t.rows[r][enter]
			if a <= domain.Epsilon {
				continue
			}
			ratio := t.rows[r][t.numCols] / a
			if ratio < best-domain.Epsilon || (math.Abs(ratio-best) <= domain.Epsilon && (leave == -1 || t.basis[r] < t.basis[leave])) {
				best = ratio
				leave = r
			}
		}
		if leave == -1 {
			return apperror.NewStepError(apperror.CodeInfeasibleStep, "linear program is unbounded", -1, -1)
		}

		t.pivot(leave, enter)
	}
	return apperror.NewStepError(apperror.CodeInfeasibleStep, "linear program did not converge", -1, -1)
}

func (t *tableau) pivot(row, col int) {
	m := len(t.rows)
	pv := t.rows[row][col]
	for c := 0; c <= t.numCols; c++ {
		t.rows[row][c] /= pv
	}
	for r := 0; r < m; r++ {
		if r == row {
			continue
		}
		factor := t.rows[r][col]
		if factor == 0 {
			continue
		}
		for c := 0; c <= t.numCols; c++ {
			t.rows[r][c] -= factor * t.rows[row][c]
		}
	}
	factor := t.cost[col]
	if factor != 0 {
		for c := 0; c <= t.numCols; c++ {
			t.cost[c] -= factor * t.rows[row][c]
		}
	}
	t.basis[row] = col
}

func (t *tableau) checkFeasible() error {
	artBase := t.nStruct + len(t.rows)
	for r, b := range t.basis {
		if b >= artBase && t.rows[r][t.numCols] > domain.Epsilon {
			return apperror.NewStepError(apperror.CodeInfeasibleStep, fmt.Sprintf("linear program is infeasible: no solution satisfies row %d", r), -1, -1)
		}
	}
	return nil
}

func (t *tableau) extract(p *Problem) *Result {
	values := make([]float64, t.nStruct)
	for v := range values {
		values[v] = p.LowerBound[v]
	}
	for r, b := range t.basis {
		if b < t.nStruct {
			values[b] += t.rows[r][t.numCols]
		}
	}
	obj := 0.0
	for v, c := range p.Cost {
		obj += c * values[v]
	}
	return &Result{Values: values, Objective: obj}
}
