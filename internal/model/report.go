package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrustedRequiresInvestigation is the trusted_source value emitted when the
// variance between the primary pair is too large to pick a side.
const TrustedRequiresInvestigation = "requires_investigation"

// VarianceResult compares exactly two observations sharing metric and scope.
// DeltaPercentage is null when the baseline value is zero; callers must not
// read a null percentage as zero.
type VarianceResult struct {
	SourceA         string              `json:"source_a"`
	SourceB         string              `json:"source_b"`
	MetricType      MetricType          `json:"metric_type"`
	DeltaAbsolute   decimal.Decimal     `json:"delta_absolute"`
	DeltaPercentage decimal.NullDecimal `json:"delta_percentage"`
	Severity        Severity            `json:"severity"`
	Note            string              `json:"note,omitempty"`
}

// SourceWeight records one source's contribution to a fused estimate.
type SourceWeight struct {
	SourceID string  `json:"source_id"`
	Weight   float64 `json:"weight"`
}

// FusedEstimate is one blended value for a metric/scope, with a derived
// (never assumed) confidence tier.
type FusedEstimate struct {
	Value               decimal.Decimal `json:"value"`
	Confidence          Confidence      `json:"confidence"`
	ContributingSources []SourceWeight  `json:"contributing_sources"`
}

// Recommendation tells an operator which number to believe and what to do.
type Recommendation struct {
	TrustedSource   string     `json:"trusted_source"`
	Rationale       string     `json:"rationale"`
	Confidence      Confidence `json:"confidence"`
	SuggestedAction string     `json:"suggested_action"`
}

// ReconciliationReport is one domain's full analysis for one scope. Reports
// are built fresh per request and never persisted by the engine.
type ReconciliationReport struct {
	Domain           Domain              `json:"domain"`
	Period           Scope               `json:"period"`
	Sources          []MetricObservation `json:"sources"`
	VarianceAnalysis []VarianceResult    `json:"variance_analysis"`
	FusedEstimate    FusedEstimate       `json:"fused_estimate"`
	Recommendation   Recommendation      `json:"recommendation"`
	GeneratedAt      time.Time           `json:"generated_at"`
}

// DomainReport wraps one domain's section of a comprehensive report so a
// computation failure in one domain cannot abort the others.
type DomainReport struct {
	Report      *ReconciliationReport `json:"report,omitempty"`
	Unavailable bool                  `json:"unavailable,omitempty"`
	Note        string                `json:"note,omitempty"`
}

// ComprehensiveReport is "everything we know about this period": one
// reconciliation per domain, keyed by domain.
type ComprehensiveReport struct {
	Period      Scope                   `json:"period"`
	Domains     map[Domain]DomainReport `json:"domains"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// HealthAssessment aggregates one or more reconciliation reports into a
// single operational score with a ranked issue list.
type HealthAssessment struct {
	OverallScore    int      `json:"overall_score"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}
