package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/model"
	"github.com/cascade-rentals/opsdash/internal/store"
)

// POS serves the point-of-sale transaction export. The POS sees every
// rental contract, so its coverage is full whenever it has rows; its
// confidence drops to medium when the newest export lags the window by
// more than the freshness budget, since recent days may be missing.
type POS struct {
	reader    store.MetricsReader
	log       *zap.Logger
	freshness time.Duration
	now       func() time.Time
}

func NewPOS(reader store.MetricsReader, freshness time.Duration, log *zap.Logger) *POS {
	return &POS{reader: reader, log: log, freshness: freshness, now: time.Now}
}

func (p *POS) SourceID() string { return model.SourcePOS }

func (p *POS) Fetch(ctx context.Context, mt model.MetricType, scope model.Scope) model.MetricObservation {
	var (
		row       store.AggregateRow
		err       error
		ageChecks bool
	)
	switch mt {
	case model.MetricRevenue:
		row, err = p.reader.POSRevenue(ctx, scope)
		ageChecks = true
	case model.MetricUtilization:
		row, err = p.reader.POSUtilization(ctx, scope)
		ageChecks = true
	case model.MetricInventoryCount:
		// The POS item master is the operational inventory ledger.
		row, err = p.reader.POSInventoryCount(ctx, scope)
	default:
		return unavailable(p.log, model.SourcePOS, mt, scope, "unknown metric", nil)
	}

	if err != nil {
		return unavailable(p.log, model.SourcePOS, mt, scope, "query failed", err)
	}
	if row.SampleSize == 0 {
		return unavailable(p.log, model.SourcePOS, mt, scope, "no transactions in window", nil)
	}

	conf := model.ConfidenceHigh
	if ageChecks && p.freshness > 0 && staleness(row.AsOf, scope.End, p.now()) > p.freshness {
		conf = model.ConfidenceMedium
		p.log.Info("pos export lags the window, downgrading confidence",
			zap.Time("as_of", row.AsOf),
			zap.Time("scope_end", scope.End),
			zap.Duration("freshness_budget", p.freshness))
	}

	return model.NewObservation(model.SourcePOS, mt, scope,
		row.Value, 1.0, conf, row.AsOf, row.SampleSize)
}
