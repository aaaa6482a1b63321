// Package parameter implements the typed parameter variants and
// resolve-order evaluation of spec §4.6 (component C6): every parameter
// yields a float value per (step, scenario) from already-resolved upstream
// values (read via the metric algebra, internal/engine/metric) and, for a
// handful of self-referential variants (AsymmetricSwitchIndex, Threshold's
// ratchet), its own value from the end of the previous step.
package parameter

import (
	"time"

	"simcore/internal/engine/index"
	"simcore/internal/engine/metric"
)

// Kind tags which parameter variant a Param holds.
type Kind int

const (
	KindConstant Kind = iota
	KindOffset
	KindMax
	KindMin
	KindNegative
	KindDivision
	KindAggregated
	KindDailyProfile
	KindMonthlyProfile
	KindWeeklyProfile
	KindUniformDrawdownProfile
	KindRbfProfile
	KindInterpolated
	KindIndexedArray
	KindThreshold
	KindDiscountFactor
	KindHydropowerTarget
	KindForeign
)

// AggregateFunc is the reduction applied by an Aggregated parameter.
type AggregateFunc int

const (
	AggSum AggregateFunc = iota
	AggProduct
	AggMean
	AggMin
	AggMax
)

// Interpolation selects which day within a Monthly/Weekly profile's period
// anchors linear interpolation toward the adjacent period (spec §4.6).
type Interpolation int

const (
	InterpolationNone Interpolation = iota
	InterpolationFirst
	InterpolationLast
)

// Predicate is the comparison a Threshold parameter applies.
type Predicate int

const (
	PredicateLess Predicate = iota
	PredicateLessOrEqual
	PredicateEqual
	PredicateGreaterOrEqual
	PredicateGreater
)

// RbfKind selects the radial basis function an RbfProfile parameter uses to
// interpolate between its (day_of_year, value) points.
type RbfKind int

const (
	RbfLinear RbfKind = iota
	RbfCubic
	RbfQuintic
	RbfThinPlateSpline
	RbfGaussian
	RbfMultiQuadric
	RbfInverseMultiQuadric
)

// RbfPoint is one (day_of_year, value) anchor of an RbfProfile.
type RbfPoint struct {
	DayOfYear int
	Value     float64
}

// Foreign is the "opaque callable with state" contract for
// foreign/scripted parameters (spec §4.6). Compute returns a map of keyed
// values: one entry keyed by "" for a single-valued foreign parameter, or
// several entries for a multi-valued one. The parameter's value is the
// entry under Param.ForeignKey; a missing key is a step error.
type Foreign interface {
	Compute(step int, scenario int, date time.Time) (map[string]float64, error)
}

// Param is a tagged parameter expression. Only the fields relevant to Kind
// are populated.
type Param struct {
	Kind Kind
	Name index.Name

	// Constant
	ConstantValue float64
	Activation    Activation
	Variable      float64 // x, read back by the scheduler/optimiser

	// Offset
	Base  metric.Expr
	Delta float64

	// Max / Min / Negative
	Operand  metric.Expr
	Threshold float64 // Max/Min's t, default 0

	// Division
	Numerator   metric.Expr
	Denominator metric.Expr

	// Aggregated
	Operands []metric.Expr
	Agg      AggregateFunc

	// DailyProfile
	DailyValues [366]float64

	// MonthlyProfile / WeeklyProfile
	MonthlyValues [12]float64
	WeeklyValues  [53]float64
	Interp        Interpolation

	// UniformDrawdownProfile
	ResetDay     int
	ResetMonth   time.Month
	ResidualDays float64

	// RbfProfile
	RbfPoints  []RbfPoint
	RbfFunc    RbfKind
	RbfEpsilon float64 // 0 => estimate from point spread

	// Interpolated
	X             metric.Expr
	XP, FP        []float64
	ErrorOnBounds bool

	// IndexedArray
	IndexSource index.IndexParameterIndex
	Values      []metric.Expr

	// Threshold
	ThresholdMetric metric.Expr
	ThresholdValue  float64
	Pred            Predicate
	Ratchet         bool

	// DiscountFactor
	RateMetric metric.Expr
	BaseYear   int

	// HydropowerTarget
	TargetPower      metric.Expr
	Efficiency       float64
	WaterDensity     float64
	Gravity          float64
	WaterElevation   metric.Expr
	TurbineElevation float64
	MinHead          float64
	FlowUnitConv     float64
	EnergyUnitConv   float64
	HPMinFlow        metric.Expr
	HPMaxFlow        metric.Expr
	HasMinFlow       bool
	HasMaxFlow       bool

	// Foreign
	ForeignImpl Foreign
	ForeignKey  string // which key to read from Foreign.Compute's result map
}

// IndexParam is a tagged index-valued parameter. AsymmetricSwitchIndex is
// the only variant the spec requires (§4.6); On/Off are read via the
// metric algebra so either can reference any already-resolved parameter or
// state value.
type IndexParam struct {
	Name index.Name
	On   metric.Expr
	Off  metric.Expr
}
