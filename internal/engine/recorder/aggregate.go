package recorder

import "simcore/internal/engine/timestep"

// sample is one recorded step's metric vector, tagged with the timestep it
// came from so period boundaries can be computed.
type sample struct {
	ts     timestep.Timestep
	values []float64
}

// aggregate reduces raw through the Aggregator chain from innermost to
// outermost, each level grouping its input by calendar period and
// reducing every group to one vector with its own Function — spec §4.9's
// "values aggregated by the outer aggregator are the outputs of the
// inner". The result is one sample per outermost-period end.
func aggregate(agg *Aggregator, raw []sample) []sample {
	cur := raw
	for _, lvl := range flattenInnermostFirst(agg) {
		cur = reduceLevel(lvl, cur)
	}
	return cur
}

// flattenInnermostFirst walks agg's Inner chain (agg is the outermost) and
// returns it reversed, innermost first, so callers can fold left to right.
func flattenInnermostFirst(agg *Aggregator) []*Aggregator {
	var chain []*Aggregator
	for a := agg; a != nil; a = a.Inner {
		chain = append(chain, a)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// reduceLevel groups in by lvl's calendar period, reducing each group
// metric-by-metric with lvl.Function.
func reduceLevel(lvl *Aggregator, in []sample) []sample {
	if len(in) == 0 {
		return nil
	}
	numMetrics := len(in[0].values)

	var out []sample
	var bucket [][]float64
	var bucketEnd timestep.Timestep
	curKey := periodKey(lvl.Frequency, in[0].ts)

	flush := func() {
		if len(bucket) == 0 {
			return
		}
		reduced := make([]float64, numMetrics)
		col := make([]float64, len(bucket))
		for m := 0; m < numMetrics; m++ {
			for i, row := range bucket {
				col[i] = row[m]
			}
			reduced[m] = reduce(lvl.Function, col)
		}
		out = append(out, sample{ts: bucketEnd, values: reduced})
		bucket = nil
	}

	for _, s := range in {
		k := periodKey(lvl.Frequency, s.ts)
		if k != curKey {
			flush()
			curKey = k
		}
		bucket = append(bucket, s.values)
		bucketEnd = s.ts
	}
	flush()
	return out
}
