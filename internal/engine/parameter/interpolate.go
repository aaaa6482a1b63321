package parameter

import "simcore/pkg/apperror"

// linearInterpolate evaluates the piecewise-linear function defined by
// (xp[i], fp[i]) pairs (xp strictly increasing) at x. Outside [xp[0],
// xp[len-1]] it either clamps to the nearest endpoint or fails, per
// errorOnBounds (spec §4.6 Interpolated).
func linearInterpolate(x float64, xp, fp []float64, errorOnBounds bool) (float64, error) {
	n := len(xp)
	if x < xp[0] {
		if errorOnBounds {
			return 0, apperror.NewStepError(apperror.CodeInvalidThreshold, "interpolation x below xp range", -1, -1)
		}
		return fp[0], nil
	}
	if x > xp[n-1] {
		if errorOnBounds {
			return 0, apperror.NewStepError(apperror.CodeInvalidThreshold, "interpolation x above xp range", -1, -1)
		}
		return fp[n-1], nil
	}
	for i := 0; i < n-1; i++ {
		if x >= xp[i] && x <= xp[i+1] {
			if xp[i+1] == xp[i] {
				return fp[i], nil
			}
			t := (x - xp[i]) / (xp[i+1] - xp[i])
			return fp[i] + t*(fp[i+1]-fp[i]), nil
		}
	}
	return fp[n-1], nil
}
