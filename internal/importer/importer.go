package importer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/model"
	"github.com/cascade-rentals/opsdash/internal/store"
)

// Result summarizes one import run.
type Result struct {
	Parsed  int   `json:"parsed"`
	Skipped int   `json:"skipped"`
	Written int64 `json:"written"`
}

// Importer loads parsed feed records into the store in batches.
type Importer struct {
	store     store.Store
	batchSize int
	log       *zap.Logger
}

func New(st store.Store, batchSize int, log *zap.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Importer{store: st, batchSize: batchSize, log: log}
}

// ImportPOS parses a POS export and writes it to the store.
func (im *Importer) ImportPOS(ctx context.Context, path string) (*Result, error) {
	txns, err := ParsePOSCSV(path)
	if err != nil {
		return nil, err
	}
	return load(ctx, im, "pos", path, txns,
		func(t model.POSTransaction) error { return t.Validate() },
		im.store.InsertPOSTransactions)
}

// ImportRFID parses a correlation export and writes it to the store.
func (im *Importer) ImportRFID(ctx context.Context, path string) (*Result, error) {
	events, err := ParseRFIDCSV(path)
	if err != nil {
		return nil, err
	}
	return load(ctx, im, "rfid", path, events,
		func(e model.RFIDCorrelation) error { return e.Validate() },
		im.store.InsertRFIDCorrelations)
}

// ImportScorecards parses a scorecard workbook and writes it to the store.
func (im *Importer) ImportScorecards(ctx context.Context, path string) (*Result, error) {
	cards, err := ParseScorecardXLSX(path)
	if err != nil {
		return nil, err
	}
	return load(ctx, im, "scorecard", path, cards,
		func(c model.FinancialScorecard) error { return c.Validate() },
		im.store.UpsertScorecards)
}

// ImportCatalog parses an item master snapshot and writes it to the store.
func (im *Importer) ImportCatalog(ctx context.Context, path string) (*Result, error) {
	items, err := ParseCatalogCSV(path)
	if err != nil {
		return nil, err
	}
	return load(ctx, im, "catalog", path, items,
		func(i model.CatalogItem) error { return i.Validate() },
		im.store.UpsertCatalogItems)
}

// load validates records, drops the broken ones with a warning, and
// writes the rest in batches.
func load[T any](ctx context.Context, im *Importer, feed, path string, records []T,
	validate func(T) error,
	write func(context.Context, []T) (int64, error),
) (*Result, error) {
	start := time.Now()
	res := &Result{Parsed: len(records)}

	valid := records[:0:0]
	for _, rec := range records {
		if err := validate(rec); err != nil {
			res.Skipped++
			im.log.Warn("skipping invalid record",
				zap.String("feed", feed), zap.Error(err))
			continue
		}
		valid = append(valid, rec)
	}

	for i := 0; i < len(valid); i += im.batchSize {
		end := i + im.batchSize
		if end > len(valid) {
			end = len(valid)
		}
		n, err := write(ctx, valid[i:end])
		if err != nil {
			return nil, err
		}
		res.Written += n
	}

	im.log.Info("import complete",
		zap.String("feed", feed),
		zap.String("path", path),
		zap.Int("parsed", res.Parsed),
		zap.Int("skipped", res.Skipped),
		zap.Int64("written", res.Written),
		zap.Duration("took", time.Since(start)))
	return res, nil
}
