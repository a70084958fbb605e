package reconcile

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/cascade-rentals/opsdash/internal/model"
)

const zeroBaselineNote = "percentage undefined for zero baseline"

var hundred = decimal.NewFromInt(100)

// Compare classifies the disagreement between two observations of the same
// metric and scope. A metric or scope mismatch is a programmer error and
// fails fast rather than being recovered from.
//
// DeltaAbsolute is b - a. DeltaPercentage is relative to a's value and is
// null when a is zero; callers must not read a null percentage as zero.
// Severity is evaluated symmetrically (the staircase is applied against the
// smaller non-zero magnitude) so Compare(a, b) and Compare(b, a) always
// land in the same tier.
func Compare(a, b model.MetricObservation, pol Policy) (model.VarianceResult, error) {
	if a.MetricType != b.MetricType {
		return model.VarianceResult{}, eris.Errorf(
			"variance: metric type mismatch: %s vs %s", a.MetricType, b.MetricType)
	}
	if !a.Scope.Equal(b.Scope) {
		return model.VarianceResult{}, eris.New("variance: scope mismatch")
	}

	delta := b.Value.Sub(a.Value)

	result := model.VarianceResult{
		SourceA:       a.SourceID,
		SourceB:       b.SourceID,
		MetricType:    a.MetricType,
		DeltaAbsolute: delta,
		Severity:      severityFor(a.Value, b.Value, delta, pol),
	}

	if a.Value.IsZero() {
		result.Note = zeroBaselineNote
	} else {
		result.DeltaPercentage = decimal.NewNullDecimal(delta.Div(a.Value).Mul(hundred))
	}

	return result, nil
}

// severityFor applies the severity staircase to the delta measured against
// the smaller non-zero magnitude of the two values.
func severityFor(a, b, delta decimal.Decimal, pol Policy) model.Severity {
	if delta.IsZero() {
		return model.SeverityExcellent
	}

	// Smaller non-zero magnitude. At least one value is non-zero here, and
	// a zero value against a non-zero one degenerates to a 100% delta.
	denom := a.Abs()
	if bAbs := b.Abs(); denom.IsZero() || (!bAbs.IsZero() && bAbs.LessThan(denom)) {
		denom = bAbs
	}

	pct, _ := delta.Abs().Div(denom).Mul(hundred).Float64()
	switch {
	case pct < pol.Severity.ExcellentPct:
		return model.SeverityExcellent
	case pct < pol.Severity.GoodPct:
		return model.SeverityGood
	case pct < pol.Severity.AcceptablePct:
		return model.SeverityAcceptable
	default:
		return model.SeverityNeedsAttention
	}
}
