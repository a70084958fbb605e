package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// Accessor translates a scope into a normalized observation of one metric
// from one backing source. Fetch is total: a source that cannot answer
// (no data, storage error, timeout) yields a zero-coverage observation
// rather than an error.
type Accessor interface {
	SourceID() string
	Fetch(ctx context.Context, metricType model.MetricType, scope model.Scope) model.MetricObservation
}

// domainSources lists, per domain, the applicable accessors in order and
// the primary/secondary pair the recommendation is built on.
var domainSources = map[model.Domain]struct {
	sources            []string
	primary, secondary string
}{
	model.DomainRevenue:     {[]string{model.SourceFinancial, model.SourcePOS, model.SourceRFID}, model.SourceFinancial, model.SourcePOS},
	model.DomainUtilization: {[]string{model.SourcePOS, model.SourceRFID, model.SourceFinancial}, model.SourcePOS, model.SourceRFID},
	model.DomainInventory:   {[]string{model.SourcePOS, model.SourceRFID}, model.SourcePOS, model.SourceRFID},
}

// Engine orchestrates accessors, variance analysis, fusion, and
// recommendations into reconciliation reports. It holds no mutable state
// across requests; concurrent calls are safe.
type Engine struct {
	accessors map[string]Accessor
	policy    Policy
	timeout   time.Duration
	now       func() time.Time
}

// NewEngine wires the engine from its accessors and resolved policy.
// timeout bounds each individual accessor call.
func NewEngine(accessors []Accessor, pol Policy, timeout time.Duration) *Engine {
	byID := make(map[string]Accessor, len(accessors))
	for _, a := range accessors {
		byID[a.SourceID()] = a
	}
	return &Engine{
		accessors: byID,
		policy:    pol,
		timeout:   timeout,
		now:       time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Reconcile produces one domain's full analysis for one scope. The report
// is built fresh per call and never persisted here.
func (e *Engine) Reconcile(ctx context.Context, domain model.Domain, scope model.Scope) (*model.ReconciliationReport, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	spec, ok := domainSources[domain]
	if !ok {
		return nil, eris.Errorf("reconcile: domain %q has no source set", domain)
	}

	metricType := domain.MetricType()
	observations := make([]model.MetricObservation, 0, len(spec.sources))
	for _, sourceID := range spec.sources {
		observations = append(observations, e.fetch(ctx, sourceID, metricType, scope))
	}

	variances, err := pairwiseVariances(observations, e.policy)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: %s", domain)
	}

	fused := Fuse(observations, e.policy)
	recommendation, err := e.recommendFor(spec.primary, spec.secondary, observations, e.policy)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: %s", domain)
	}

	report := &model.ReconciliationReport{
		Domain:           domain,
		Period:           scope,
		Sources:          observations,
		VarianceAnalysis: variances,
		FusedEstimate:    fused,
		Recommendation:   recommendation,
		GeneratedAt:      e.now().UTC(),
	}

	zap.L().Info("reconcile: report generated",
		zap.String("domain", string(domain)),
		zap.String("fused_value", fused.Value.String()),
		zap.String("fused_confidence", string(fused.Confidence)),
		zap.String("trusted_source", recommendation.TrustedSource),
	)
	return report, nil
}

// Comprehensive runs every domain for the same scope and returns one
// composite keyed by domain. A computation failure in one domain marks only
// that domain's section unavailable; the others still complete.
func (e *Engine) Comprehensive(ctx context.Context, scope model.Scope) (*model.ComprehensiveReport, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	domains := []model.Domain{model.DomainRevenue, model.DomainUtilization, model.DomainInventory}
	sections := make(map[model.Domain]model.DomainReport, len(domains))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, domain := range domains {
		g.Go(func() error {
			section := e.runDomain(gctx, domain, scope)
			mu.Lock()
			sections[domain] = section
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return errors; failures become unavailable sections.
	_ = g.Wait()

	return &model.ComprehensiveReport{
		Period:      scope,
		Domains:     sections,
		GeneratedAt: e.now().UTC(),
	}, nil
}

// runDomain isolates one domain's reconciliation, converting errors and
// panics into an unavailable section with an explanatory note.
func (e *Engine) runDomain(ctx context.Context, domain model.Domain, scope model.Scope) (section model.DomainReport) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("reconcile: domain panicked",
				zap.String("domain", string(domain)),
				zap.Any("panic", r),
			)
			section = model.DomainReport{
				Unavailable: true,
				Note:        fmt.Sprintf("%s reconciliation failed: internal computation error", domain),
			}
		}
	}()

	report, err := e.Reconcile(ctx, domain, scope)
	if err != nil {
		zap.L().Error("reconcile: domain failed",
			zap.String("domain", string(domain)),
			zap.Error(err),
		)
		return model.DomainReport{
			Unavailable: true,
			Note:        fmt.Sprintf("%s reconciliation failed: %s", domain, eris.Cause(err).Error()),
		}
	}
	return model.DomainReport{Report: report}
}

// fetch runs one accessor under the configured bounded timeout. A missing
// accessor or an expired context is the same as "source unavailable".
func (e *Engine) fetch(ctx context.Context, sourceID string, metricType model.MetricType, scope model.Scope) model.MetricObservation {
	accessor, ok := e.accessors[sourceID]
	if !ok {
		zap.L().Warn("reconcile: no accessor registered", zap.String("source", sourceID))
		return model.ZeroObservation(sourceID, metricType, scope)
	}

	fctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	obs := accessor.Fetch(fctx, metricType, scope)
	if fctx.Err() != nil && !obs.Unavailable() {
		// The accessor answered after its deadline; treat it as unavailable
		// so a slow source cannot hold up the whole reconciliation.
		zap.L().Warn("reconcile: accessor exceeded timeout",
			zap.String("source", sourceID),
			zap.Duration("timeout", e.timeout),
		)
		return model.ZeroObservation(sourceID, metricType, scope)
	}
	return obs
}

// pairwiseVariances compares every pair of observations, not only the
// primary/secondary pair.
func pairwiseVariances(observations []model.MetricObservation, pol Policy) ([]model.VarianceResult, error) {
	var results []model.VarianceResult
	for i := 0; i < len(observations); i++ {
		for j := i + 1; j < len(observations); j++ {
			v, err := Compare(observations[i], observations[j], pol)
			if err != nil {
				return nil, err
			}
			results = append(results, v)
		}
	}
	return results, nil
}

// recommendFor applies the recommendation decision table to the domain's
// designated pair, forcing low confidence when fewer than two sources
// returned usable data.
func (e *Engine) recommendFor(primaryID, secondaryID string, observations []model.MetricObservation, pol Policy) (model.Recommendation, error) {
	var primary, secondary *model.MetricObservation
	available := 0
	availableID := ""
	for i := range observations {
		switch observations[i].SourceID {
		case primaryID:
			primary = &observations[i]
		case secondaryID:
			secondary = &observations[i]
		}
		if !observations[i].Unavailable() {
			available++
			availableID = observations[i].SourceID
		}
	}
	if primary == nil || secondary == nil {
		return model.Recommendation{}, eris.Errorf(
			"reconcile: missing designated pair %s/%s", primaryID, secondaryID)
	}

	if available < 2 {
		trusted := model.TrustedRequiresInvestigation
		if available == 1 {
			trusted = availableID
		}
		return model.Recommendation{
			TrustedSource:   trusted,
			Rationale:       "comparison was not possible: fewer than two sources returned data for this scope",
			Confidence:      model.ConfidenceLow,
			SuggestedAction: "verify availability of the backing data sources",
		}, nil
	}

	variance, err := Compare(*primary, *secondary, pol)
	if err != nil {
		return model.Recommendation{}, err
	}
	return Recommend(*primary, *secondary, variance, pol), nil
}
