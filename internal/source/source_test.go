package source

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/model"
	"github.com/cascade-rentals/opsdash/internal/store"
)

// fakeReader answers every aggregate from canned rows.
type fakeReader struct {
	posRevenue  store.AggregateRow
	posUtil     store.AggregateRow
	posInv      store.AggregateRow
	finRevenue  store.AggregateRow
	finUtil     store.AggregateRow
	rfidRevenue store.AggregateRow
	rfidUtil    store.AggregateRow
	rfidInv     store.AggregateRow
	catalog     int64

	err        error // returned by every aggregate when set
	catalogErr error
}

func (f *fakeReader) row(r store.AggregateRow) (store.AggregateRow, error) {
	if f.err != nil {
		return store.AggregateRow{}, f.err
	}
	return r, nil
}

func (f *fakeReader) POSRevenue(ctx context.Context, s model.Scope) (store.AggregateRow, error) {
	return f.row(f.posRevenue)
}
func (f *fakeReader) POSUtilization(ctx context.Context, s model.Scope) (store.AggregateRow, error) {
	return f.row(f.posUtil)
}
func (f *fakeReader) POSInventoryCount(ctx context.Context, s model.Scope) (store.AggregateRow, error) {
	return f.row(f.posInv)
}
func (f *fakeReader) FinancialRevenue(ctx context.Context, s model.Scope) (store.AggregateRow, error) {
	return f.row(f.finRevenue)
}
func (f *fakeReader) FinancialUtilization(ctx context.Context, s model.Scope) (store.AggregateRow, error) {
	return f.row(f.finUtil)
}
func (f *fakeReader) RFIDRevenue(ctx context.Context, s model.Scope) (store.AggregateRow, error) {
	return f.row(f.rfidRevenue)
}
func (f *fakeReader) RFIDUtilization(ctx context.Context, s model.Scope) (store.AggregateRow, error) {
	return f.row(f.rfidUtil)
}
func (f *fakeReader) RFIDInventoryCount(ctx context.Context, s model.Scope) (store.AggregateRow, error) {
	return f.row(f.rfidInv)
}
func (f *fakeReader) CatalogCount(ctx context.Context, s model.Scope) (int64, error) {
	return f.catalog, f.catalogErr
}

func fourWeekScope() model.Scope {
	return model.Scope{
		Start:        time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC),
		LocationCode: "PDX",
	}
}

func agg(value string, asOf time.Time, samples int64) store.AggregateRow {
	return store.AggregateRow{Value: decimal.RequireFromString(value), AsOf: asOf, SampleSize: samples}
}

func TestFinancial_Revenue(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{finRevenue: agg("100000.00", scope.End.Add(-24*time.Hour), 4)}
	f := NewFinancial(reader, zap.NewNop())

	obs := f.Fetch(context.Background(), model.MetricRevenue, scope)

	assert.Equal(t, model.SourceFinancial, obs.SourceID)
	assert.True(t, obs.Value.Equal(decimal.RequireFromString("100000.00")))
	assert.Equal(t, 1.0, obs.Coverage, "4 scorecards cover a 4-week window")
	assert.Equal(t, model.ConfidenceHigh, obs.Confidence)
}

func TestFinancial_PartialWeekCoverage(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{finRevenue: agg("50000.00", scope.End, 2)}
	f := NewFinancial(reader, zap.NewNop())

	obs := f.Fetch(context.Background(), model.MetricRevenue, scope)
	assert.Equal(t, 0.5, obs.Coverage)
}

func TestFinancial_UtilizationIsMediumConfidence(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{finUtil: agg("61.5", scope.End, 4)}
	f := NewFinancial(reader, zap.NewNop())

	obs := f.Fetch(context.Background(), model.MetricUtilization, scope)
	assert.Equal(t, model.ConfidenceMedium, obs.Confidence, "manual estimates never report high")
}

func TestFinancial_UnansweredScopes(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{finRevenue: agg("100000.00", scope.End, 4)}
	f := NewFinancial(reader, zap.NewNop())

	// No per-unit ledger.
	obs := f.Fetch(context.Background(), model.MetricInventoryCount, scope)
	assert.True(t, obs.Unavailable())

	// No category dimension.
	scoped := scope
	scoped.Category = "excavator"
	obs = f.Fetch(context.Background(), model.MetricRevenue, scoped)
	assert.True(t, obs.Unavailable())
}

func TestFinancial_QueryErrorDowngrades(t *testing.T) {
	f := NewFinancial(&fakeReader{err: eris.New("disk gone")}, zap.NewNop())

	obs := f.Fetch(context.Background(), model.MetricRevenue, fourWeekScope())
	assert.True(t, obs.Unavailable())
	assert.Equal(t, model.ConfidenceLow, obs.Confidence)
}

func TestPOS_FreshExport(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{posRevenue: agg("102000.00", scope.End.Add(-12*time.Hour), 840)}
	p := NewPOS(reader, 48*time.Hour, zap.NewNop())
	p.now = func() time.Time { return scope.End.Add(72 * time.Hour) }

	obs := p.Fetch(context.Background(), model.MetricRevenue, scope)

	assert.Equal(t, 1.0, obs.Coverage)
	assert.Equal(t, model.ConfidenceHigh, obs.Confidence)
	assert.Equal(t, int64(840), obs.SampleSize)
}

func TestPOS_StaleExportDowngradesConfidence(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{posRevenue: agg("102000.00", scope.End.Add(-80*time.Hour), 840)}
	p := NewPOS(reader, 48*time.Hour, zap.NewNop())
	p.now = func() time.Time { return scope.End.Add(72 * time.Hour) }

	obs := p.Fetch(context.Background(), model.MetricRevenue, scope)

	assert.Equal(t, 1.0, obs.Coverage, "staleness dents confidence, not coverage")
	assert.Equal(t, model.ConfidenceMedium, obs.Confidence)
}

func TestPOS_OpenWindowMeasuresLagFromNow(t *testing.T) {
	// A window ending tomorrow is not stale just because tomorrow's
	// transactions have not happened yet.
	now := time.Date(2026, 7, 28, 12, 0, 0, 0, time.UTC)
	scope := fourWeekScope()
	reader := &fakeReader{posRevenue: agg("102000.00", now.Add(-6*time.Hour), 800)}

	p := NewPOS(reader, 48*time.Hour, zap.NewNop())
	p.now = func() time.Time { return now }

	obs := p.Fetch(context.Background(), model.MetricRevenue, scope)
	assert.Equal(t, model.ConfidenceHigh, obs.Confidence)
}

func TestPOS_InventoryFromItemMaster(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{posInv: agg("16259", scope.Start, 16259)}
	p := NewPOS(reader, 48*time.Hour, zap.NewNop())

	obs := p.Fetch(context.Background(), model.MetricInventoryCount, scope)

	assert.True(t, obs.Value.Equal(decimal.NewFromInt(16259)))
	assert.Equal(t, model.ConfidenceHigh, obs.Confidence, "item master age is not an export lag")
}

func TestPOS_EmptyWindow(t *testing.T) {
	p := NewPOS(&fakeReader{}, 48*time.Hour, zap.NewNop())
	obs := p.Fetch(context.Background(), model.MetricRevenue, fourWeekScope())
	assert.True(t, obs.Unavailable())
}

func TestRFID_PilotCoverage(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{
		rfidInv: agg("290", scope.End, 290),
		catalog: 16259,
	}
	r := NewRFID(reader, 0.25, zap.NewNop())

	obs := r.Fetch(context.Background(), model.MetricInventoryCount, scope)

	assert.InDelta(t, 0.0178, obs.Coverage, 0.0001)
	assert.Equal(t, model.ConfidenceLow, obs.Confidence)
	assert.True(t, obs.Value.Equal(decimal.NewFromInt(290)))
}

func TestRFID_CoverageAboveFloorIsMedium(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{
		rfidRevenue: agg("43000.00", scope.End, 5000),
		catalog:     16259,
	}
	r := NewRFID(reader, 0.25, zap.NewNop())

	obs := r.Fetch(context.Background(), model.MetricRevenue, scope)

	assert.InDelta(t, 0.3075, obs.Coverage, 0.0001)
	assert.Equal(t, model.ConfidenceMedium, obs.Confidence)
}

func TestRFID_EmptyCatalog(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{rfidUtil: agg("58.9", scope.End, 12)}
	r := NewRFID(reader, 0.25, zap.NewNop())

	obs := r.Fetch(context.Background(), model.MetricUtilization, scope)
	assert.True(t, obs.Unavailable())
}

func TestRFID_NoReadsInWindow(t *testing.T) {
	r := NewRFID(&fakeReader{catalog: 16259}, 0.25, zap.NewNop())
	obs := r.Fetch(context.Background(), model.MetricRevenue, fourWeekScope())
	assert.True(t, obs.Unavailable())
}

func TestRFID_CatalogErrorDowngrades(t *testing.T) {
	scope := fourWeekScope()
	reader := &fakeReader{
		rfidRevenue: agg("43000.00", scope.End, 5000),
		catalogErr:  eris.New("catalog table locked"),
	}
	r := NewRFID(reader, 0.25, zap.NewNop())

	obs := r.Fetch(context.Background(), model.MetricRevenue, scope)
	assert.True(t, obs.Unavailable())
}
