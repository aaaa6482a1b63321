package parameter

import "math"

// rbfKernel evaluates one of the seven supported distance functions at
// distance r (spec §4.6 RbfProfile).
func rbfKernel(kind RbfKind, r, epsilon float64) float64 {
	switch kind {
	case RbfLinear:
		return r
	case RbfCubic:
		return r * r * r
	case RbfQuintic:
		return r * r * r * r * r
	case RbfThinPlateSpline:
		if r == 0 {
			return 0
		}
		return r * r * math.Log(r)
	case RbfGaussian:
		return math.Exp(-(epsilon * r) * (epsilon * r))
	case RbfMultiQuadric:
		return math.Sqrt(1 + (epsilon*r)*(epsilon*r))
	case RbfInverseMultiQuadric:
		return 1 / math.Sqrt(1+(epsilon*r)*(epsilon*r))
	default:
		return r
	}
}

// estimateEpsilon estimates a shape parameter from the spread of the
// points, following the source's "(x_range * y_range)^(1/n)" heuristic, used
// when the parameter's configuration omits an explicit epsilon.
func estimateEpsilon(points []RbfPoint) float64 {
	if len(points) == 0 {
		return 1
	}
	xMin, xMax := float64(points[0].DayOfYear), float64(points[0].DayOfYear)
	yMin, yMax := points[0].Value, points[0].Value
	for _, p := range points[1:] {
		x := float64(p.DayOfYear)
		if x < xMin {
			xMin = x
		}
		if x > xMax {
			xMax = x
		}
		if p.Value < yMin {
			yMin = p.Value
		}
		if p.Value > yMax {
			yMax = p.Value
		}
	}
	xRange := xMax - xMin
	if xRange == 0 {
		xRange = 1
	}
	yRange := yMax - yMin
	if yRange == 0 {
		yRange = 1
	}
	return math.Pow(xRange*yRange, 1/float64(len(points)))
}

// rbfWeights solves the interpolation linear system Kw = y, where K_ij =
// kernel(|x_i - x_j|), by Gaussian elimination with partial pivoting. n is
// small (the number of profile anchor points), so this stays well within
// numerically-stable bounds without a dedicated linear-algebra library.
func rbfWeights(points []RbfPoint, kind RbfKind, epsilon float64) []float64 {
	n := len(points)
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n+1)
		for j := 0; j < n; j++ {
			r := math.Abs(float64(points[i].DayOfYear - points[j].DayOfYear))
			a[i][j] = rbfKernel(kind, r, epsilon)
		}
		a[i][n] = points[i].Value
	}

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		a[col], a[pivot] = a[pivot], a[col]

		if a[col][col] == 0 {
			continue // singular in this column; leave weight at 0
		}
		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k <= n; k++ {
				a[row][k] -= factor * a[col][k]
			}
		}
	}

	weights := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := a[row][n]
		for col := row + 1; col < n; col++ {
			sum -= a[row][col] * weights[col]
		}
		if a[row][row] == 0 {
			weights[row] = 0
			continue
		}
		weights[row] = sum / a[row][row]
	}
	return weights
}

// EvaluateRBF builds the full 366-day profile implied by points/kind/epsilon
// (estimating epsilon from the point spread when the caller passes 0 for a
// kernel that needs one), caching nothing — callers that want this
// precomputed should call it once at build time and store the result in a
// DailyProfile-style lookup.
func EvaluateRBF(points []RbfPoint, kind RbfKind, epsilon float64) [366]float64 {
	var profile [366]float64
	if len(points) == 0 {
		return profile
	}
	needsEpsilon := kind == RbfGaussian || kind == RbfMultiQuadric || kind == RbfInverseMultiQuadric
	if needsEpsilon && epsilon == 0 {
		epsilon = estimateEpsilon(points)
	}
	weights := rbfWeights(points, kind, epsilon)

	for doy := 1; doy <= 366; doy++ {
		v := 0.0
		for i, p := range points {
			r := math.Abs(float64(doy - p.DayOfYear))
			v += weights[i] * rbfKernel(kind, r, epsilon)
		}
		profile[doy-1] = v
	}
	return profile
}
