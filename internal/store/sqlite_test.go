package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-rentals/opsdash/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

// July 2026, a 31-day window.
func julyScope() model.Scope {
	return model.Scope{
		Start:        time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		LocationCode: "PDX",
	}
}

func july(day int) time.Time {
	return time.Date(2026, 7, day, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedPOS(t *testing.T, s *SQLiteStore) {
	t.Helper()
	_, err := s.InsertPOSTransactions(context.Background(), []model.POSTransaction{
		{ID: "tx-1", LocationCode: "PDX", Category: "excavator", ItemID: "EX-1",
			Amount: dec("100.50"), StartedAt: july(2), EndedAt: july(5), RecordedAt: july(5)},
		{ID: "tx-2", LocationCode: "PDX", Category: "scissor-lift", ItemID: "SL-1",
			Amount: dec("49.50"), StartedAt: july(10), EndedAt: july(12), RecordedAt: july(12)},
		{ID: "tx-3", LocationCode: "SEA", Category: "excavator", ItemID: "EX-9",
			Amount: dec("500.00"), StartedAt: july(3), EndedAt: july(4), RecordedAt: july(4)},
		{ID: "tx-4", LocationCode: "PDX", Category: "excavator", ItemID: "EX-1",
			Amount: dec("75.00"), StartedAt: july(2).AddDate(0, -1, 0), EndedAt: july(3).AddDate(0, -1, 0), RecordedAt: july(3).AddDate(0, -1, 0)},
	})
	require.NoError(t, err)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_POSRevenue(t *testing.T) {
	s := newTestSQLiteStore(t)
	seedPOS(t, s)

	row, err := s.POSRevenue(context.Background(), julyScope())
	require.NoError(t, err)

	assert.True(t, row.Value.Equal(dec("150.00")), "value = %s", row.Value)
	assert.Equal(t, int64(2), row.SampleSize)
	assert.Equal(t, july(12), row.AsOf)
}

func TestSQLite_POSRevenue_CategoryFilter(t *testing.T) {
	s := newTestSQLiteStore(t)
	seedPOS(t, s)

	scope := julyScope()
	scope.Category = "excavator"
	row, err := s.POSRevenue(context.Background(), scope)
	require.NoError(t, err)

	assert.True(t, row.Value.Equal(dec("100.50")), "value = %s", row.Value)
	assert.Equal(t, int64(1), row.SampleSize)
}

func TestSQLite_POSRevenue_AllLocations(t *testing.T) {
	s := newTestSQLiteStore(t)
	seedPOS(t, s)

	scope := julyScope()
	scope.LocationCode = ""
	row, err := s.POSRevenue(context.Background(), scope)
	require.NoError(t, err)

	assert.True(t, row.Value.Equal(dec("650.00")), "value = %s", row.Value)
	assert.Equal(t, int64(3), row.SampleSize)
}

func TestSQLite_POSRevenue_Empty(t *testing.T) {
	s := newTestSQLiteStore(t)

	row, err := s.POSRevenue(context.Background(), julyScope())
	require.NoError(t, err)

	assert.True(t, row.Value.IsZero())
	assert.Equal(t, int64(0), row.SampleSize)
	assert.True(t, row.AsOf.IsZero())
}

func TestSQLite_POSUtilization(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.UpsertCatalogItems(context.Background(), []model.CatalogItem{
		{ItemID: "EX-1", LocationCode: "PDX", Category: "excavator", UpdatedAt: july(1)},
		{ItemID: "SL-1", LocationCode: "PDX", Category: "scissor-lift", UpdatedAt: july(1)},
	})
	require.NoError(t, err)

	// EX-1 rented for 15 of the 62 available item-days.
	_, err = s.InsertPOSTransactions(context.Background(), []model.POSTransaction{
		{ID: "tx-1", LocationCode: "PDX", Category: "excavator", ItemID: "EX-1",
			Amount: dec("300.00"), StartedAt: july(1), EndedAt: july(16), RecordedAt: july(16)},
	})
	require.NoError(t, err)

	row, err := s.POSUtilization(context.Background(), julyScope())
	require.NoError(t, err)

	assert.Equal(t, "24.19", row.Value.String())
	assert.Equal(t, int64(1), row.SampleSize)
}

func TestSQLite_POSUtilization_ClampsAt100(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.UpsertCatalogItems(context.Background(), []model.CatalogItem{
		{ItemID: "EX-1", LocationCode: "PDX", UpdatedAt: july(1)},
	})
	require.NoError(t, err)

	// Rental spills over both window edges.
	_, err = s.InsertPOSTransactions(context.Background(), []model.POSTransaction{
		{ID: "tx-1", LocationCode: "PDX", ItemID: "EX-1", Amount: dec("900.00"),
			StartedAt: july(1).AddDate(0, -1, 0), EndedAt: july(31).AddDate(0, 1, 0), RecordedAt: july(31)},
	})
	require.NoError(t, err)

	row, err := s.POSUtilization(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, row.Value.Equal(decimal.NewFromInt(100)), "value = %s", row.Value)
}

func TestSQLite_POSUtilization_NoCatalog(t *testing.T) {
	s := newTestSQLiteStore(t)
	row, err := s.POSUtilization(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, row.Value.IsZero())
}

func TestSQLite_POSInventoryCountAndCatalogCount(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.UpsertCatalogItems(context.Background(), []model.CatalogItem{
		{ItemID: "EX-1", LocationCode: "PDX", Category: "excavator", RFIDTagged: true, UpdatedAt: july(2)},
		{ItemID: "SL-1", LocationCode: "PDX", Category: "scissor-lift", UpdatedAt: july(3)},
		{ItemID: "EX-9", LocationCode: "SEA", Category: "excavator", UpdatedAt: july(4)},
	})
	require.NoError(t, err)

	row, err := s.POSInventoryCount(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, row.Value.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, july(3), row.AsOf)

	n, err := s.CatalogCount(context.Background(), julyScope())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	scope := julyScope()
	scope.LocationCode = ""
	scope.Category = "excavator"
	n, err = s.CatalogCount(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLite_FinancialAggregates(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.UpsertScorecards(context.Background(), []model.FinancialScorecard{
		{LocationCode: "PDX", WeekStart: july(6), Revenue: dec("1000.25"),
			UtilizationPct: dec("60"), EnteredBy: "gm-pdx", EnteredAt: july(13)},
		{LocationCode: "PDX", WeekStart: july(13), Revenue: dec("2000.75"),
			UtilizationPct: dec("70"), EnteredBy: "gm-pdx", EnteredAt: july(20)},
		{LocationCode: "SEA", WeekStart: july(6), Revenue: dec("99.00"),
			UtilizationPct: dec("40"), EnteredBy: "gm-sea", EnteredAt: july(13)},
	})
	require.NoError(t, err)

	rev, err := s.FinancialRevenue(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, rev.Value.Equal(dec("3001.00")), "value = %s", rev.Value)
	assert.Equal(t, int64(2), rev.SampleSize)
	assert.Equal(t, july(20), rev.AsOf)

	util, err := s.FinancialUtilization(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, util.Value.Equal(decimal.NewFromInt(65)), "value = %s", util.Value)
}

func TestSQLite_FinancialAggregates_CategoryScopeUnanswerable(t *testing.T) {
	s := newTestSQLiteStore(t)

	scope := julyScope()
	scope.Category = "excavator"

	rev, err := s.FinancialRevenue(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev.SampleSize)

	util, err := s.FinancialUtilization(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), util.SampleSize)
}

func TestSQLite_ScorecardUpsertReplaces(t *testing.T) {
	s := newTestSQLiteStore(t)

	card := model.FinancialScorecard{
		LocationCode: "PDX", WeekStart: july(6), Revenue: dec("1000.00"),
		UtilizationPct: dec("60"), EnteredAt: july(13),
	}
	_, err := s.UpsertScorecards(context.Background(), []model.FinancialScorecard{card})
	require.NoError(t, err)

	card.Revenue = dec("1100.00")
	_, err = s.UpsertScorecards(context.Background(), []model.FinancialScorecard{card})
	require.NoError(t, err)

	rev, err := s.FinancialRevenue(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, rev.Value.Equal(dec("1100.00")), "value = %s", rev.Value)
	assert.Equal(t, int64(1), rev.SampleSize)
}

func seedRFID(t *testing.T, s *SQLiteStore) {
	t.Helper()
	_, err := s.InsertRFIDCorrelations(context.Background(), []model.RFIDCorrelation{
		{TagID: "tag-1", ItemID: "EX-1", LocationCode: "PDX", Category: "excavator",
			EventType: model.RFIDEventOnRent, RevenueAttributed: dec("75.25"), ObservedAt: july(3)},
		{TagID: "tag-2", ItemID: "SL-1", LocationCode: "PDX", Category: "scissor-lift",
			EventType: model.RFIDEventReturned, ObservedAt: july(4)},
		{TagID: "tag-1", ItemID: "EX-1", LocationCode: "PDX", Category: "excavator",
			EventType: model.RFIDEventOnRent, RevenueAttributed: dec("24.75"), ObservedAt: july(10)},
	})
	require.NoError(t, err)
}

func TestSQLite_RFIDAggregates(t *testing.T) {
	s := newTestSQLiteStore(t)
	seedRFID(t, s)

	rev, err := s.RFIDRevenue(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, rev.Value.Equal(dec("100.00")), "value = %s", rev.Value)
	assert.Equal(t, int64(2), rev.SampleSize, "sample size counts distinct items")
	assert.Equal(t, july(10), rev.AsOf)

	util, err := s.RFIDUtilization(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, util.Value.Equal(decimal.NewFromInt(50)), "value = %s", util.Value)
	assert.Equal(t, int64(2), util.SampleSize)

	inv, err := s.RFIDInventoryCount(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, inv.Value.Equal(decimal.NewFromInt(2)))
}

func TestSQLite_RFIDReplayedFileIsDropped(t *testing.T) {
	s := newTestSQLiteStore(t)
	seedRFID(t, s)

	n, err := s.InsertRFIDCorrelations(context.Background(), []model.RFIDCorrelation{
		{TagID: "tag-1", ItemID: "EX-1", LocationCode: "PDX", Category: "excavator",
			EventType: model.RFIDEventOnRent, RevenueAttributed: dec("75.25"), ObservedAt: july(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	rev, err := s.RFIDRevenue(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, rev.Value.Equal(dec("100.00")), "replay must not double-count")
}

func TestSQLite_POSReimportIsIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	seedPOS(t, s)
	seedPOS(t, s)

	row, err := s.POSRevenue(context.Background(), julyScope())
	require.NoError(t, err)
	assert.True(t, row.Value.Equal(dec("150.00")), "value = %s", row.Value)
	assert.Equal(t, int64(2), row.SampleSize)
}

func TestSQLite_InsertEmptyBatches(t *testing.T) {
	s := newTestSQLiteStore(t)

	n, err := s.InsertPOSTransactions(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.InsertRFIDCorrelations(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLite_SuggestionLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := s.CreateSuggestion(ctx, model.Suggestion{
		Title: "Break out utilization by yard", Author: "ops-lead",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.SuggestionOpen, created.Status)

	got, err := s.GetSuggestion(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)

	updated, err := s.UpdateSuggestion(ctx, created.ID, model.SuggestionPlanned, "scheduled for Q4")
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionPlanned, updated.Status)
	assert.Equal(t, "scheduled for Q4", updated.Body)

	list, err := s.ListSuggestions(ctx, SuggestionFilter{Status: model.SuggestionPlanned})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	list, err = s.ListSuggestions(ctx, SuggestionFilter{Status: model.SuggestionOpen})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.DeleteSuggestion(ctx, created.ID))

	_, err = s.GetSuggestion(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CreateSuggestion_RequiresTitle(t *testing.T) {
	s := newTestSQLiteStore(t)
	_, err := s.CreateSuggestion(context.Background(), model.Suggestion{})
	require.Error(t, err)
}

func TestSQLite_UpdateSuggestion_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	_, err := s.UpdateSuggestion(context.Background(), "missing", model.SuggestionDone, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}
