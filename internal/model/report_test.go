package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Serializing a report and reading it back must reproduce every field
// exactly, including fixed-point values and the null percentage marker.
func TestReconciliationReport_JSONRoundTrip(t *testing.T) {
	scope := Scope{
		Start:        time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		LocationCode: "PDX-01",
	}
	asOf := time.Date(2026, 7, 31, 6, 30, 0, 0, time.UTC)

	report := ReconciliationReport{
		Domain: DomainRevenue,
		Period: scope,
		Sources: []MetricObservation{
			NewObservation(SourceFinancial, MetricRevenue, scope, decimal.RequireFromString("100000.00"), 1.0, ConfidenceHigh, asOf, 4),
			NewObservation(SourcePOS, MetricRevenue, scope, decimal.RequireFromString("102000.37"), 1.0, ConfidenceHigh, asOf, 1893),
			ZeroObservation(SourceRFID, MetricRevenue, scope),
		},
		VarianceAnalysis: []VarianceResult{
			{
				SourceA:         SourceFinancial,
				SourceB:         SourcePOS,
				MetricType:      MetricRevenue,
				DeltaAbsolute:   decimal.RequireFromString("2000.37"),
				DeltaPercentage: decimal.NewNullDecimal(decimal.RequireFromString("2.00037")),
				Severity:        SeverityGood,
			},
			{
				SourceA:         SourceFinancial,
				SourceB:         SourceRFID,
				MetricType:      MetricRevenue,
				DeltaAbsolute:   decimal.RequireFromString("-100000.00"),
				DeltaPercentage: decimal.NullDecimal{},
				Severity:        SeverityNeedsAttention,
				Note:            "percentage undefined for zero baseline",
			},
		},
		FusedEstimate: FusedEstimate{
			Value:      decimal.RequireFromString("101000.185"),
			Confidence: ConfidenceMedium,
			ContributingSources: []SourceWeight{
				{SourceID: SourceFinancial, Weight: 1.0},
				{SourceID: SourcePOS, Weight: 1.0},
			},
		},
		Recommendation: Recommendation{
			TrustedSource:   SourcePOS,
			Rationale:       "sources closely aligned",
			Confidence:      ConfidenceHigh,
			SuggestedAction: "no action required",
		},
		GeneratedAt: asOf,
	}

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var got ReconciliationReport
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, report.Domain, got.Domain)
	assert.True(t, report.Period.Equal(got.Period))
	require.Len(t, got.Sources, 3)
	for i := range report.Sources {
		assert.True(t, report.Sources[i].Value.Equal(got.Sources[i].Value), "source %d value", i)
		assert.Equal(t, report.Sources[i].Coverage, got.Sources[i].Coverage)
		assert.Equal(t, report.Sources[i].Confidence, got.Sources[i].Confidence)
	}
	require.Len(t, got.VarianceAnalysis, 2)
	assert.True(t, got.VarianceAnalysis[0].DeltaAbsolute.Equal(report.VarianceAnalysis[0].DeltaAbsolute))
	assert.True(t, got.VarianceAnalysis[0].DeltaPercentage.Valid)
	assert.True(t, got.VarianceAnalysis[0].DeltaPercentage.Decimal.Equal(decimal.RequireFromString("2.00037")))
	assert.False(t, got.VarianceAnalysis[1].DeltaPercentage.Valid, "null percentage must stay null")
	assert.True(t, got.FusedEstimate.Value.Equal(report.FusedEstimate.Value))
	assert.Equal(t, report.Recommendation, got.Recommendation)
}

// The wire shape is consumed by presentation layers directly, so the top
// level keys are part of the contract.
func TestReconciliationReport_StableKeys(t *testing.T) {
	report := ReconciliationReport{Domain: DomainInventory}
	data, err := json.Marshal(report)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"domain", "period", "sources", "variance_analysis", "fused_estimate", "recommendation"} {
		assert.Contains(t, m, key)
	}
}

func TestSuggestionValidate(t *testing.T) {
	assert.Error(t, Suggestion{}.Validate())
	assert.NoError(t, Suggestion{Title: "add CSV export"}.Validate())

	_, err := ParseSuggestionStatus("open")
	assert.NoError(t, err)
	_, err = ParseSuggestionStatus("archived")
	assert.Error(t, err)
}
