// Package source adapts the persisted feeds into the metric
// observations the reconciliation engine consumes. Each accessor wraps
// one reporting system and degrades to a zero-coverage observation when
// that system has nothing usable for the requested scope — missing data
// is reported, never fatal.
package source

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// unavailable logs why a source could not answer and returns the
// zero-coverage sentinel.
func unavailable(log *zap.Logger, source string, mt model.MetricType, scope model.Scope, reason string, err error) model.MetricObservation {
	fields := []zap.Field{
		zap.String("source", source),
		zap.String("metric", string(mt)),
		zap.Time("scope_start", scope.Start),
		zap.Time("scope_end", scope.End),
		zap.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	log.Warn("source unavailable", fields...)
	return model.ZeroObservation(source, mt, scope)
}

// weekCoverage estimates what fraction of the scope's weeks the given
// number of weekly records covers. Overcounts (several locations in an
// unfiltered scope) are clamped to full coverage by the observation
// constructor.
func weekCoverage(scope model.Scope, samples int64) float64 {
	weeks := math.Ceil(scope.End.Sub(scope.Start).Hours() / (24 * 7))
	if weeks < 1 {
		weeks = 1
	}
	return float64(samples) / weeks
}

// staleness is how far the newest record lags the end of the window.
// Windows that end in the future lag from now instead.
func staleness(asOf, end, now time.Time) time.Duration {
	ref := end
	if end.After(now) {
		ref = now
	}
	return ref.Sub(asOf)
}
