// Package reconcile implements the multi-source reconciliation and
// confidence-scored fusion engine: it quantifies disagreement between
// independent reports of the same business metric, blends them into one
// estimate, explains the disagreement, and rolls many reconciliations into
// a single operational health score.
package reconcile

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// Policy holds every tunable business-policy number used by the engine.
// The defaults are working values chosen for legibility to business
// stakeholders, not statistically derived; operators override them through
// a YAML policy file.
type Policy struct {
	Severity    SeverityThresholds    `yaml:"severity"`
	Recommend   RecommendThresholds   `yaml:"recommend"`
	Multipliers ConfidenceMultipliers `yaml:"confidence_multipliers"`
	Fusion      FusionThresholds      `yaml:"fusion"`
}

// SeverityThresholds is the fixed staircase classifying pairwise variance,
// evaluated on the absolute delta percentage. Anything at or above
// AcceptablePct is needs_attention.
type SeverityThresholds struct {
	ExcellentPct  float64 `yaml:"excellent_pct"`
	GoodPct       float64 `yaml:"good_pct"`
	AcceptablePct float64 `yaml:"acceptable_pct"`
}

// RecommendThresholds drives the "which number do we believe" decision
// table. Below AlignedPct the sources agree; above ModeratePct (or when the
// percentage is undefined) the variance requires manual investigation.
type RecommendThresholds struct {
	AlignedPct  float64 `yaml:"aligned_pct"`
	ModeratePct float64 `yaml:"moderate_pct"`
}

// ConfidenceMultipliers scale a source's coverage into its fusion weight.
// The coverage x multiplier product is the compromise that keeps a
// highly-confident-but-partial source from automatically dominating a
// less-confident-but-complete one.
type ConfidenceMultipliers struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
	Low    float64 `yaml:"low"`
}

// FusionThresholds control how a fused estimate's confidence is derived.
type FusionThresholds struct {
	// DominantShare is the weight share above which a single high-confidence
	// source can carry the fused confidence to high.
	DominantShare float64 `yaml:"dominant_share"`
	// LowTotalWeight is the total weight below which the fused confidence
	// is always low.
	LowTotalWeight float64 `yaml:"low_total_weight"`
	// CorroborationFloor is the minimum absolute weight a source needs to
	// count as corroborating. A fused estimate with fewer than two
	// corroborating sources is low confidence regardless of dominance.
	CorroborationFloor float64 `yaml:"corroboration_floor"`
}

// DefaultPolicy returns the documented default policy.
func DefaultPolicy() Policy {
	return Policy{
		Severity: SeverityThresholds{
			ExcellentPct:  2,
			GoodPct:       5,
			AcceptablePct: 10,
		},
		Recommend: RecommendThresholds{
			AlignedPct:  5,
			ModeratePct: 15,
		},
		Multipliers: ConfidenceMultipliers{
			High:   1.0,
			Medium: 0.6,
			Low:    0.25,
		},
		Fusion: FusionThresholds{
			DominantShare:      0.8,
			LowTotalWeight:     0.3,
			CorroborationFloor: 0.1,
		},
	}
}

// LoadPolicy reads policy overrides from a YAML file. Fields left unset in
// the file keep their defaults. The file has a top-level "reconcile" key.
func LoadPolicy(path string) (Policy, error) {
	pol := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return pol, eris.Wrapf(err, "reconcile: read policy %s", path)
	}

	var wrapper struct {
		Reconcile Policy `yaml:"reconcile"`
	}
	wrapper.Reconcile = pol
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return pol, eris.Wrap(err, "reconcile: parse policy")
	}

	return wrapper.Reconcile, nil
}

// multiplier maps a confidence tier to its fusion weight multiplier.
func (p Policy) multiplier(c model.Confidence) float64 {
	switch c {
	case model.ConfidenceHigh:
		return p.Multipliers.High
	case model.ConfidenceMedium:
		return p.Multipliers.Medium
	}
	return p.Multipliers.Low
}
