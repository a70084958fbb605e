package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/model"
	"github.com/cascade-rentals/opsdash/internal/store"
)

// RFID serves the tag-correlation pilot. Coverage is computed per call
// as the share of the catalog the readers actually saw in the window,
// so a pilot that tags 2% of the fleet reports 0.02 — never more.
// Confidence starts low and reaches medium only once coverage clears
// the configured floor.
type RFID struct {
	reader store.MetricsReader
	log    *zap.Logger
	floor  float64
}

func NewRFID(reader store.MetricsReader, confidenceFloor float64, log *zap.Logger) *RFID {
	return &RFID{reader: reader, log: log, floor: confidenceFloor}
}

func (r *RFID) SourceID() string { return model.SourceRFID }

func (r *RFID) Fetch(ctx context.Context, mt model.MetricType, scope model.Scope) model.MetricObservation {
	var (
		row store.AggregateRow
		err error
	)
	switch mt {
	case model.MetricRevenue:
		row, err = r.reader.RFIDRevenue(ctx, scope)
	case model.MetricUtilization:
		row, err = r.reader.RFIDUtilization(ctx, scope)
	case model.MetricInventoryCount:
		row, err = r.reader.RFIDInventoryCount(ctx, scope)
	default:
		return unavailable(r.log, model.SourceRFID, mt, scope, "unknown metric", nil)
	}

	if err != nil {
		return unavailable(r.log, model.SourceRFID, mt, scope, "query failed", err)
	}
	if row.SampleSize == 0 {
		return unavailable(r.log, model.SourceRFID, mt, scope, "no correlated reads in window", nil)
	}

	catalog, err := r.reader.CatalogCount(ctx, scope)
	if err != nil {
		return unavailable(r.log, model.SourceRFID, mt, scope, "catalog count failed", err)
	}
	if catalog == 0 {
		return unavailable(r.log, model.SourceRFID, mt, scope, "empty catalog for scope", nil)
	}

	// SampleSize is the distinct correlated items behind the aggregate.
	coverage := float64(row.SampleSize) / float64(catalog)
	conf := model.ConfidenceLow
	if coverage > r.floor {
		conf = model.ConfidenceMedium
	}

	return model.NewObservation(model.SourceRFID, mt, scope,
		row.Value, coverage, conf, row.AsOf, row.SampleSize)
}
