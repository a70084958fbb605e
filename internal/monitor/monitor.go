// Package monitor runs the reconciliation engine on a schedule and raises
// log alerts when the operational health score drops below the configured
// floor.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/config"
	"github.com/cascade-rentals/opsdash/internal/model"
	"github.com/cascade-rentals/opsdash/internal/reconcile"
)

// Reconciler is the engine surface the checker depends on.
type Reconciler interface {
	Comprehensive(ctx context.Context, scope model.Scope) (*model.ComprehensiveReport, error)
}

// Checker runs periodic health checks in the background.
type Checker struct {
	engine Reconciler
	cfg    config.MonitorConfig
	now    func() time.Time
}

// NewChecker creates a background health checker.
func NewChecker(engine Reconciler, cfg config.MonitorConfig) *Checker {
	return &Checker{
		engine: engine,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitor.checker"))
	log.Info("starting health checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Int("min_health_score", c.cfg.MinHealthScore),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	composite, err := c.engine.Comprehensive(ctx, c.scope())
	if err != nil {
		log.Error("monitor: reconciliation failed", zap.Error(err))
		return
	}

	var reports []*model.ReconciliationReport
	unavailable := 0
	for _, domain := range []model.Domain{model.DomainRevenue, model.DomainUtilization, model.DomainInventory} {
		section, ok := composite.Domains[domain]
		if !ok || section.Report == nil {
			unavailable++
			continue
		}
		reports = append(reports, section.Report)
	}

	assessment := reconcile.Assess(reports)
	if assessment.OverallScore < c.cfg.MinHealthScore {
		log.Warn("monitor: health score below floor",
			zap.Int("score", assessment.OverallScore),
			zap.Int("floor", c.cfg.MinHealthScore),
			zap.Int("domains_unavailable", unavailable),
			zap.Strings("issues", assessment.Issues),
		)
		return
	}

	log.Debug("monitor: health check complete",
		zap.Int("score", assessment.OverallScore),
		zap.Int("domains_unavailable", unavailable),
	)
}

// scope builds the trailing lookback window ending now.
func (c *Checker) scope() model.Scope {
	lookback := time.Duration(c.cfg.LookbackWindowHours) * time.Hour
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	end := c.now().UTC()
	return model.Scope{
		Start:        end.Add(-lookback),
		End:          end,
		LocationCode: c.cfg.Location,
	}
}
