package parameter

import "math"

// ActivationKind tags the transform applied to a Constant parameter's
// internal variable x before it reaches the network (spec §4.6: "optionally
// variable for external optimisation via an activation function"). Mirrors
// the four functions named in the spec; ActivationNone means the parameter
// is a plain fixed constant with no variable.
type ActivationKind int

const (
	ActivationNone ActivationKind = iota
	ActivationUnit
	ActivationRectifier
	ActivationBinaryStep
	ActivationLogistic
)

// Activation parameterises one of the four activation functions. Fields are
// read according to Kind; the rest are zero.
type Activation struct {
	Kind ActivationKind

	Min, Max      float64 // Unit, Rectifier
	NegValue      float64 // Rectifier, BinaryStep: value returned off the positive branch
	OnValue       float64 // BinaryStep
	GrowthRate    float64 // Logistic
	LogisticMax   float64 // Logistic
}

// Apply maps x (the externally-optimised variable) to the parameter's
// network-facing value.
func (a Activation) Apply(x float64) float64 {
	switch a.Kind {
	case ActivationUnit:
		return a.Min + x*(a.Max-a.Min)
	case ActivationRectifier:
		if x <= 0 {
			return a.NegValue
		}
		return a.Min + x*(a.Max-a.Min)
	case ActivationBinaryStep:
		if x > 0 {
			return a.OnValue
		}
		return a.NegValue
	case ActivationLogistic:
		return a.LogisticMax / (1 + math.Exp(-a.GrowthRate*x))
	default:
		return x
	}
}
