// Package store persists the raw source feeds and serves the aggregate
// queries the reconciliation engine reads. Two backends are provided:
// SQLite for single-node deployments and Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// ErrNotFound is the sentinel for lookups of records that do not exist.
// Callers match it with errors.Is to distinguish missing from broken.
var ErrNotFound = eris.New("store: not found")

// AggregateRow is the result of one metric aggregate query. AsOf is the
// newest underlying record in the window; SampleSize is how many records
// the aggregate was computed over. SampleSize zero means the source had
// nothing to say for the scope.
type AggregateRow struct {
	Value      decimal.Decimal
	AsOf       time.Time
	SampleSize int64
}

// SuggestionFilter specifies criteria for listing suggestions.
type SuggestionFilter struct {
	Status model.SuggestionStatus `json:"status,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// MetricsReader is the read surface the source accessors are built on.
// Every method answers for one (source, metric) pair within a scope.
type MetricsReader interface {
	// POS exports
	POSRevenue(ctx context.Context, scope model.Scope) (AggregateRow, error)
	POSUtilization(ctx context.Context, scope model.Scope) (AggregateRow, error)
	POSInventoryCount(ctx context.Context, scope model.Scope) (AggregateRow, error)

	// Manual financial scorecards
	FinancialRevenue(ctx context.Context, scope model.Scope) (AggregateRow, error)
	FinancialUtilization(ctx context.Context, scope model.Scope) (AggregateRow, error)

	// RFID correlation events
	RFIDRevenue(ctx context.Context, scope model.Scope) (AggregateRow, error)
	RFIDUtilization(ctx context.Context, scope model.Scope) (AggregateRow, error)
	RFIDInventoryCount(ctx context.Context, scope model.Scope) (AggregateRow, error)

	// CatalogCount is the denominator for coverage fractions.
	CatalogCount(ctx context.Context, scope model.Scope) (int64, error)
}

// Store is the full persistence interface: the metric read surface plus
// the ingest writers and the suggestion CRUD the dashboard exposes.
type Store interface {
	MetricsReader

	// Ingest. All writers are idempotent on the record's natural key so
	// corrected feed files can be re-imported safely.
	InsertPOSTransactions(ctx context.Context, txns []model.POSTransaction) (int64, error)
	InsertRFIDCorrelations(ctx context.Context, events []model.RFIDCorrelation) (int64, error)
	UpsertScorecards(ctx context.Context, cards []model.FinancialScorecard) (int64, error)
	UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int64, error)

	// Suggestions
	CreateSuggestion(ctx context.Context, s model.Suggestion) (*model.Suggestion, error)
	GetSuggestion(ctx context.Context, id string) (*model.Suggestion, error)
	ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]model.Suggestion, error)
	UpdateSuggestion(ctx context.Context, id string, status model.SuggestionStatus, body string) (*model.Suggestion, error)
	DeleteSuggestion(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// centsFactor converts between stored integer cents and decimal values.
var centsFactor = decimal.New(1, 2)

// toCents converts a decimal amount to integer cents, rounding half up.
// Money is stored as cents so SUM() stays exact in both backends.
func toCents(d decimal.Decimal) int64 {
	return d.Mul(centsFactor).Round(0).IntPart()
}

// fromCents converts stored integer cents back to a decimal amount.
func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// utilizationPct turns summed rented item-days into a fleet utilization
// percentage over the scope window, clamped to 100.
func utilizationPct(rentedDays float64, catalog int64, scope model.Scope) decimal.Decimal {
	windowDays := scope.End.Sub(scope.Start).Hours() / 24
	if catalog <= 0 || windowDays <= 0 || rentedDays <= 0 {
		return decimal.Zero
	}
	pct := rentedDays / (float64(catalog) * windowDays) * 100
	if pct > 100 {
		pct = 100
	}
	return decimal.NewFromFloat(pct).Round(2)
}

// sharePct is the percentage that part makes up of whole.
func sharePct(part, whole int64) decimal.Decimal {
	if whole <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(float64(part) / float64(whole) * 100).Round(2)
}
