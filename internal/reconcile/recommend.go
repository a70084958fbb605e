package reconcile

import (
	"fmt"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// Canonical recommendation texts. All "which number do we believe" policy
// lives in this file so it can be tuned without touching any accessor or
// the fusion math.
const (
	actionNone        = "no action required"
	actionTiming      = "investigate timing alignment between systems"
	actionManual      = "manual reconciliation needed; verify data integrity of both sources"
	rationaleAligned  = "sources closely aligned"
	rationaleModerate = "moderate variance suggests timing or methodology differences"
)

// Recommend maps the variance between the domain's two most authoritative
// observations to a "source to trust" decision and a suggested action.
func Recommend(primary, secondary model.MetricObservation, variance model.VarianceResult, pol Policy) model.Recommendation {
	if !variance.DeltaPercentage.Valid {
		return model.Recommendation{
			TrustedSource: model.TrustedRequiresInvestigation,
			Rationale: fmt.Sprintf("variance between %s and %s has no defined percentage (zero baseline)",
				primary.SourceID, secondary.SourceID),
			Confidence:      model.ConfidenceLow,
			SuggestedAction: actionManual,
		}
	}

	absPct, _ := variance.DeltaPercentage.Decimal.Abs().Float64()
	trusted := higherCoverage(primary, secondary)

	switch {
	case absPct < pol.Recommend.AlignedPct:
		return model.Recommendation{
			TrustedSource:   trusted.SourceID,
			Rationale:       rationaleAligned,
			Confidence:      model.ConfidenceHigh,
			SuggestedAction: actionNone,
		}
	case absPct <= pol.Recommend.ModeratePct:
		return model.Recommendation{
			TrustedSource:   trusted.SourceID,
			Rationale:       rationaleModerate,
			Confidence:      model.ConfidenceMedium,
			SuggestedAction: actionTiming,
		}
	default:
		return model.Recommendation{
			TrustedSource: model.TrustedRequiresInvestigation,
			Rationale: fmt.Sprintf("%s and %s diverge by %.1f%%, beyond the investigation threshold",
				primary.SourceID, secondary.SourceID, absPct),
			Confidence:      model.ConfidenceLow,
			SuggestedAction: actionManual,
		}
	}
}

// higherCoverage picks the better-covered of the two, preferring the
// primary on ties.
func higherCoverage(primary, secondary model.MetricObservation) model.MetricObservation {
	if secondary.Coverage > primary.Coverage {
		return secondary
	}
	return primary
}
