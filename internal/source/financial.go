package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/model"
	"github.com/cascade-rentals/opsdash/internal/store"
)

// Financial serves the manually-entered weekly scorecards. Revenue
// figures are the books of record and report high confidence; the
// utilization column is a manager's estimate and only ever reports
// medium. Scorecards have no per-unit ledger, so inventory questions
// and category-filtered scopes come back unavailable.
type Financial struct {
	reader store.MetricsReader
	log    *zap.Logger
}

func NewFinancial(reader store.MetricsReader, log *zap.Logger) *Financial {
	return &Financial{reader: reader, log: log}
}

func (f *Financial) SourceID() string { return model.SourceFinancial }

func (f *Financial) Fetch(ctx context.Context, mt model.MetricType, scope model.Scope) model.MetricObservation {
	if scope.Category != "" {
		return unavailable(f.log, model.SourceFinancial, mt, scope, "scorecards have no category dimension", nil)
	}

	var (
		row  store.AggregateRow
		err  error
		conf model.Confidence
	)
	switch mt {
	case model.MetricRevenue:
		row, err = f.reader.FinancialRevenue(ctx, scope)
		conf = model.ConfidenceHigh
	case model.MetricUtilization:
		row, err = f.reader.FinancialUtilization(ctx, scope)
		conf = model.ConfidenceMedium
	default:
		return unavailable(f.log, model.SourceFinancial, mt, scope, "scorecards do not track this metric", nil)
	}

	if err != nil {
		return unavailable(f.log, model.SourceFinancial, mt, scope, "query failed", err)
	}
	if row.SampleSize == 0 {
		return unavailable(f.log, model.SourceFinancial, mt, scope, "no scorecards in window", nil)
	}

	return model.NewObservation(model.SourceFinancial, mt, scope,
		row.Value, weekCoverage(scope, row.SampleSize), conf, row.AsOf, row.SampleSize)
}
