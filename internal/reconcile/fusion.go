package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// Fuse blends N observations of the same metric into one estimate. Each
// observation's weight is coverage x confidence multiplier; the fused value
// is the weighted mean. Fuse is total: when every source is unavailable the
// result is a zero value with low confidence, never an error, so a report
// can always render an explicit "no usable data" state.
func Fuse(observations []model.MetricObservation, pol Policy) model.FusedEstimate {
	weights := make([]float64, len(observations))
	var total float64
	for i, obs := range observations {
		weights[i] = obs.Coverage * pol.multiplier(obs.Confidence)
		total += weights[i]
	}

	est := model.FusedEstimate{
		Value:      decimal.Zero,
		Confidence: model.ConfidenceLow,
	}

	if total <= 0 {
		return est
	}

	var contributing []model.SourceWeight
	lastNonZero := -1
	nonZero := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		contributing = append(contributing, model.SourceWeight{
			SourceID: observations[i].SourceID,
			Weight:   w,
		})
		lastNonZero = i
		nonZero++
	}
	sort.SliceStable(contributing, func(i, j int) bool {
		return contributing[i].Weight > contributing[j].Weight
	})
	est.ContributingSources = contributing

	if nonZero == 1 {
		// Identity law: a single contributing source passes through exactly,
		// with no rounding from the weighted mean.
		est.Value = observations[lastNonZero].Value
	} else {
		sum := decimal.Zero
		for i, w := range weights {
			if w <= 0 {
				continue
			}
			sum = sum.Add(observations[i].Value.Mul(decimal.NewFromFloat(w)))
		}
		est.Value = sum.Div(decimal.NewFromFloat(total))
	}

	est.Confidence = deriveConfidence(observations, weights, total, pol)
	return est
}

// deriveConfidence derives the fused confidence tier; it is never assumed
// from any single input. Low when the combined weight is too small, when no
// source is better than medium, or when fewer than two sources carry enough
// weight to corroborate each other. High only when a high-confidence source
// dominates a corroborated estimate.
func deriveConfidence(observations []model.MetricObservation, weights []float64, total float64, pol Policy) model.Confidence {
	if total < pol.Fusion.LowTotalWeight {
		return model.ConfidenceLow
	}

	anyHigh := false
	corroborating := 0
	topIdx := 0
	for i, w := range weights {
		if w > weights[topIdx] {
			topIdx = i
		}
		if w >= pol.Fusion.CorroborationFloor {
			corroborating++
		}
		if w > 0 && observations[i].Confidence == model.ConfidenceHigh {
			anyHigh = true
		}
	}
	if !anyHigh || corroborating < 2 {
		return model.ConfidenceLow
	}

	if weights[topIdx]/total >= pol.Fusion.DominantShare &&
		observations[topIdx].Confidence == model.ConfidenceHigh {
		return model.ConfidenceHigh
	}
	return model.ConfidenceMedium
}
