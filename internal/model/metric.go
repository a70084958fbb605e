// Package model defines the typed entities shared by the reconciliation
// engine, the storage layer, and the HTTP surface.
package model

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// MetricType identifies which business metric an observation reports.
type MetricType string

const (
	MetricRevenue        MetricType = "revenue"
	MetricUtilization    MetricType = "utilization"
	MetricInventoryCount MetricType = "inventory_count"
)

// Domain is a reconciliation domain selectable by callers.
type Domain string

const (
	DomainRevenue       Domain = "revenue"
	DomainUtilization   Domain = "utilization"
	DomainInventory     Domain = "inventory"
	DomainComprehensive Domain = "comprehensive"
)

// ParseDomain validates a caller-supplied domain string.
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainRevenue, DomainUtilization, DomainInventory, DomainComprehensive:
		return Domain(s), nil
	}
	return "", eris.Errorf("model: unknown domain %q", s)
}

// MetricType returns the metric a single-domain reconciliation measures.
// DomainComprehensive has no single metric and returns "".
func (d Domain) MetricType() MetricType {
	switch d {
	case DomainRevenue:
		return MetricRevenue
	case DomainUtilization:
		return MetricUtilization
	case DomainInventory:
		return MetricInventoryCount
	}
	return ""
}

// Confidence is the qualitative trust tier assigned to a source or estimate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidence tiers: low < medium < high.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	}
	return 0
}

// Severity classifies how large a disagreement between two sources is.
type Severity string

const (
	SeverityExcellent      Severity = "excellent"
	SeverityGood           Severity = "good"
	SeverityAcceptable     Severity = "acceptable"
	SeverityNeedsAttention Severity = "needs_attention"
)

// Weight orders severities for ranking and health deductions.
func (s Severity) Weight() int {
	switch s {
	case SeverityNeedsAttention:
		return 3
	case SeverityAcceptable:
		return 2
	case SeverityGood:
		return 1
	}
	return 0
}

// Known reporting systems.
const (
	SourceFinancial = "financial"
	SourcePOS       = "pos"
	SourceRFID      = "rfid"
)

// Scope is the time window plus optional location/category filter that two
// observations must share to be comparable.
type Scope struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	LocationCode string    `json:"location_code,omitempty"`
	Category     string    `json:"category,omitempty"`
}

// Validate rejects missing or contradictory scope parameters. A bad scope is
// a caller programming error and fails fast (spec: InvalidScope).
func (s Scope) Validate() error {
	if s.Start.IsZero() || s.End.IsZero() {
		return eris.New("model: scope requires both start and end")
	}
	if s.End.Before(s.Start) {
		return eris.Errorf("model: scope end %s before start %s",
			s.End.Format(time.RFC3339), s.Start.Format(time.RFC3339))
	}
	return nil
}

// Equal reports whether two scopes describe the same window and filters.
func (s Scope) Equal(o Scope) bool {
	return s.Start.Equal(o.Start) &&
		s.End.Equal(o.End) &&
		s.LocationCode == o.LocationCode &&
		s.Category == o.Category
}

// MetricObservation is one source's report of one metric for one scope.
type MetricObservation struct {
	SourceID   string          `json:"source_id"`
	MetricType MetricType      `json:"metric_type"`
	Scope      Scope           `json:"scope"`
	Value      decimal.Decimal `json:"value"`
	Coverage   float64         `json:"coverage"`
	Confidence Confidence      `json:"confidence"`
	AsOf       time.Time       `json:"as_of"`
	SampleSize int64           `json:"sample_size,omitempty"`
}

// NewObservation builds an observation, clamping coverage to [0,1] and
// enforcing the invariant that zero coverage always means low confidence.
func NewObservation(sourceID string, mt MetricType, scope Scope, value decimal.Decimal, coverage float64, conf Confidence, asOf time.Time, sampleSize int64) MetricObservation {
	if coverage < 0 {
		coverage = 0
	}
	if coverage > 1 {
		coverage = 1
	}
	if coverage == 0 {
		conf = ConfidenceLow
	}
	return MetricObservation{
		SourceID:   sourceID,
		MetricType: mt,
		Scope:      scope,
		Value:      value,
		Coverage:   coverage,
		Confidence: conf,
		AsOf:       asOf,
		SampleSize: sampleSize,
	}
}

// ZeroObservation is the "source unavailable" sentinel: a zero value with
// zero coverage. Downstream code treats it as missing data, not a real zero.
func ZeroObservation(sourceID string, mt MetricType, scope Scope) MetricObservation {
	return MetricObservation{
		SourceID:   sourceID,
		MetricType: mt,
		Scope:      scope,
		Value:      decimal.Zero,
		Coverage:   0,
		Confidence: ConfidenceLow,
	}
}

// Unavailable reports whether the observation carries no usable data.
func (o MetricObservation) Unavailable() bool {
	return o.Coverage == 0
}
