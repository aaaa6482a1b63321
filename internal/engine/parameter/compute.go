package parameter

import (
	"fmt"
	"math"
	"time"

	"simcore/internal/engine/index"
	"simcore/internal/engine/metric"
	"simcore/internal/engine/state"
	"simcore/internal/engine/timestep"
	"simcore/pkg/apperror"
	"simcore/pkg/domain"
)

func evalExpr(e metric.Expr, st *state.State, model metric.Model) (float64, error) {
	return metric.Evaluate(e, st, model)
}

func aggregate(fn AggregateFunc, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch fn {
	case AggSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum
	case AggProduct:
		product := 1.0
		for _, v := range values {
			product *= v
		}
		return product
	case AggMean:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case AggMin:
		m := values[0]
		for _, v := range values[1:] {
			m = domain.Min(m, v)
		}
		return m
	case AggMax:
		m := values[0]
		for _, v := range values[1:] {
			m = domain.Max(m, v)
		}
		return m
	default:
		return 0
	}
}

func monthIndex(t time.Time) int { return int(t.Month()) - 1 }

func weekIndex(t time.Time) int {
	_, week := t.ISOWeek()
	if week > 53 {
		week = 53
	}
	return week - 1
}

// daysSinceAnniversary returns how many days have elapsed since the most
// recent (day, month) anniversary on or before now.
func daysSinceAnniversary(now time.Time, day int, month time.Month) int {
	anniversary := time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location())
	if anniversary.After(now) {
		anniversary = time.Date(now.Year()-1, month, day, 0, 0, 0, 0, now.Location())
	}
	return int(now.Sub(anniversary).Hours() / 24)
}

func profileInterpolated(values []float64, idx int, t time.Time, period int, daysInPeriod func(int) int, interp Interpolation) float64 {
	if interp == InterpolationNone {
		return values[idx]
	}
	next := (idx + 1) % period
	// Fraction through the period, anchored at its first or last day.
	total := float64(daysInPeriod(idx))
	if total <= 0 {
		total = 1
	}
	day := float64(t.Day() - 1) // zero-based day within the period
	if period != 12 {
		day = float64((int(t.Weekday()) + 6) % 7) // ISO week, Monday first
	}
	switch interp {
	case InterpolationFirst:
		// values[idx] holds on the first day, moving toward values[next].
		return values[idx] + day/total*(values[next]-values[idx])
	case InterpolationLast:
		// values[idx] holds on the last day, coming from the previous period's value.
		prev := (idx + period - 1) % period
		return values[prev] + (day+1)/total*(values[idx]-values[prev])
	}
	return values[idx]
}

// computeParam evaluates parameter self's value for the current step.
func computeParam(self index.ParameterIndex, p *Param, st *state.State, ts timestep.Timestep, model metric.Model) (float64, error) {
	switch p.Kind {
	case KindConstant:
		if p.Activation.Kind == ActivationNone {
			return p.ConstantValue, nil
		}
		return p.Activation.Apply(p.Variable), nil

	case KindOffset:
		base, err := evalExpr(p.Base, st, model)
		if err != nil {
			return 0, err
		}
		return base + p.Delta, nil

	case KindMax:
		v, err := evalExpr(p.Operand, st, model)
		if err != nil {
			return 0, err
		}
		return domain.Max(v, p.Threshold), nil

	case KindMin:
		v, err := evalExpr(p.Operand, st, model)
		if err != nil {
			return 0, err
		}
		return domain.Min(v, p.Threshold), nil

	case KindNegative:
		v, err := evalExpr(p.Operand, st, model)
		if err != nil {
			return 0, err
		}
		return -v, nil

	case KindDivision:
		n, err := evalExpr(p.Numerator, st, model)
		if err != nil {
			return 0, err
		}
		d, err := evalExpr(p.Denominator, st, model)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, apperror.NewStepError(
				apperror.CodeNaNInParameter,
				fmt.Sprintf("parameter %q: division by zero", p.Name),
				ts.Ordinal, st.Scenario,
			)
		}
		return n / d, nil

	case KindAggregated:
		values := make([]float64, len(p.Operands))
		for i, e := range p.Operands {
			v, err := evalExpr(e, st, model)
			if err != nil {
				return 0, err
			}
			values[i] = v
		}
		return aggregate(p.Agg, values), nil

	case KindDailyProfile:
		doy := ts.Date.YearDay()
		if doy > 366 {
			doy = 366
		}
		return p.DailyValues[doy-1], nil

	case KindMonthlyProfile:
		idx := monthIndex(ts.Date)
		return profileInterpolated(p.MonthlyValues[:], idx, ts.Date, 12, func(i int) int {
			return daysInMonth(ts.Date.Year(), time.Month(i+1))
		}, p.Interp), nil

	case KindWeeklyProfile:
		idx := weekIndex(ts.Date)
		return profileInterpolated(p.WeeklyValues[:], idx, ts.Date, 53, func(int) int { return 7 }, p.Interp), nil

	case KindUniformDrawdownProfile:
		const yearDays = 365.0
		elapsed := float64(daysSinceAnniversary(ts.Date, p.ResetDay, p.ResetMonth))
		residualFraction := p.ResidualDays / yearDays
		frac := elapsed / yearDays
		v := 1 - frac*(1-residualFraction)
		return domain.Max(v, residualFraction), nil

	case KindRbfProfile:
		doy := ts.Date.YearDay()
		if doy > 366 {
			doy = 366
		}
		profile := EvaluateRBF(p.RbfPoints, p.RbfFunc, p.RbfEpsilon)
		return profile[doy-1], nil

	case KindInterpolated:
		x, err := evalExpr(p.X, st, model)
		if err != nil {
			return 0, err
		}
		return linearInterpolate(x, p.XP, p.FP, p.ErrorOnBounds)

	case KindIndexedArray:
		idx := st.ParameterIndexValue(p.IndexSource)
		if idx < 0 || idx >= len(p.Values) {
			return 0, apperror.NewStepError(
				apperror.CodeInvalidThreshold,
				fmt.Sprintf("parameter %q: index %d out of range for %d values", p.Name, idx, len(p.Values)),
				ts.Ordinal, st.Scenario,
			)
		}
		return evalExpr(p.Values[idx], st, model)

	case KindThreshold:
		if p.Ratchet && st.PreviousParameterValue(self) != 0 {
			return 1, nil
		}
		m, err := evalExpr(p.ThresholdMetric, st, model)
		if err != nil {
			return 0, err
		}
		if compare(m, p.ThresholdValue, p.Pred) {
			return 1, nil
		}
		return 0, nil

	case KindDiscountFactor:
		rate, err := evalExpr(p.RateMetric, st, model)
		if err != nil {
			return 0, err
		}
		years := ts.Date.Year() - p.BaseYear
		return math.Pow(1+rate, -float64(years)), nil

	case KindHydropowerTarget:
		return computeHydropowerTarget(p, st, model)

	case KindForeign:
		values, err := p.ForeignImpl.Compute(ts.Ordinal, st.Scenario, ts.Date)
		if err != nil {
			return 0, err
		}
		v, ok := values[p.ForeignKey]
		if !ok {
			return 0, apperror.NewStepError(
				apperror.CodeMetricLoadError,
				fmt.Sprintf("foreign parameter %q: missing key %q in result", p.Name, p.ForeignKey),
				ts.Ordinal, st.Scenario,
			)
		}
		return v, nil

	default:
		return 0, apperror.NewStepError(
			apperror.CodeMetricLoadError,
			fmt.Sprintf("unknown parameter kind %d", p.Kind),
			ts.Ordinal, st.Scenario,
		)
	}
}

func compare(a, b float64, pred Predicate) bool {
	switch pred {
	case PredicateLess:
		return a < b
	case PredicateLessOrEqual:
		return a <= b
	case PredicateEqual:
		return a == b
	case PredicateGreaterOrEqual:
		return a >= b
	case PredicateGreater:
		return a > b
	default:
		return false
	}
}

func computeHydropowerTarget(p *Param, st *state.State, model metric.Model) (float64, error) {
	target, err := evalExpr(p.TargetPower, st, model)
	if err != nil {
		return 0, err
	}
	elevWater, err := evalExpr(p.WaterElevation, st, model)
	if err != nil {
		return 0, err
	}
	head := elevWater - p.TurbineElevation
	if head < p.MinHead {
		return 0, nil
	}

	denom := p.EnergyUnitConv * p.WaterDensity * p.Gravity * head * p.Efficiency * p.FlowUnitConv
	if denom == 0 {
		return 0, apperror.NewStepError(apperror.CodeNaNInParameter, fmt.Sprintf("parameter %q: hydropower denominator is zero", p.Name), -1, st.Scenario)
	}
	q := target / denom

	if p.HasMinFlow {
		minFlow, err := evalExpr(p.HPMinFlow, st, model)
		if err != nil {
			return 0, err
		}
		q = domain.Max(q, minFlow)
	}
	if p.HasMaxFlow {
		maxFlow, err := evalExpr(p.HPMaxFlow, st, model)
		if err != nil {
			return 0, err
		}
		q = domain.Min(q, maxFlow)
	}
	return q, nil
}

// computeIndexParam evaluates index-parameter self's value: the
// AsymmetricSwitchIndex state machine (spec §4.6), the only required
// IndexParameter variant.
func computeIndexParam(self index.IndexParameterIndex, p *IndexParam, st *state.State, model metric.Model) (int, error) {
	off, err := evalExpr(p.Off, st, model)
	if err != nil {
		return 0, err
	}
	if off != 0 {
		return 0, nil
	}
	on, err := evalExpr(p.On, st, model)
	if err != nil {
		return 0, err
	}
	if on != 0 {
		return 1, nil
	}
	return st.PreviousParameterIndexValue(self), nil
}

func daysInMonth(year int, month time.Month) int {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	lastOfThis := firstOfNext.AddDate(0, 0, -1)
	return lastOfThis.Day()
}
