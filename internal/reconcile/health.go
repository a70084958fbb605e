package reconcile

import (
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// Score deductions per variance occurrence, counted independently and never
// capped per report.
const (
	deductAcceptable     = 10
	deductNeedsAttention = 20
)

// Assess rolls one or more reconciliation reports into a single operational
// health score with a ranked issue list. It is a pure function of its
// inputs: no I/O, no clock reads beyond what the reports already carry.
func Assess(reports []*model.ReconciliationReport) model.HealthAssessment {
	p := message.NewPrinter(language.English)

	score := 100
	type rankedIssue struct {
		weight int
		text   string
	}
	var issues []rankedIssue
	var recommendations []string
	seenActions := make(map[string]bool)

	for _, report := range reports {
		if report == nil {
			continue
		}

		for _, v := range report.VarianceAnalysis {
			switch v.Severity {
			case model.SeverityAcceptable:
				score -= deductAcceptable
			case model.SeverityNeedsAttention:
				score -= deductNeedsAttention
			default:
				continue
			}
			issues = append(issues, rankedIssue{
				weight: v.Severity.Weight(),
				text:   varianceIssue(p, report.Domain, v),
			})
		}

		// Low fused confidence is informational: the numeric disagreement is
		// already captured by severity, so no extra score penalty.
		if report.FusedEstimate.Confidence == model.ConfidenceLow {
			issues = append(issues, rankedIssue{
				weight: 0,
				text:   confidenceIssue(p, report),
			})
		}

		if action := report.Recommendation.SuggestedAction; action != "" && !seenActions[action] {
			seenActions[action] = true
			recommendations = append(recommendations, action)
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].weight > issues[j].weight
	})
	ranked := make([]string, len(issues))
	for i, issue := range issues {
		ranked[i] = issue.text
	}

	return model.HealthAssessment{
		OverallScore:    score,
		Issues:          ranked,
		Recommendations: recommendations,
	}
}

// varianceIssue renders one disagreement as an operator-readable line.
func varianceIssue(p *message.Printer, domain model.Domain, v model.VarianceResult) string {
	delta, _ := v.DeltaAbsolute.Abs().Float64()
	gap := ""
	switch v.MetricType {
	case model.MetricRevenue:
		gap = p.Sprintf("$%.2f", delta)
	case model.MetricUtilization:
		gap = p.Sprintf("%.1f percentage points", delta)
	default:
		gap = p.Sprintf("%.0f units", delta)
	}
	return p.Sprintf("%s: %s and %s disagree by %s (%s)",
		domain, v.SourceA, v.SourceB, gap, v.Severity)
}

// confidenceIssue names the domain and the dominant cause of its low fused
// confidence, usually the low coverage of one source.
func confidenceIssue(p *message.Printer, report *model.ReconciliationReport) string {
	worst := ""
	worstCoverage := 2.0
	allUnavailable := true
	for _, obs := range report.Sources {
		if !obs.Unavailable() {
			allUnavailable = false
		}
		if obs.Coverage < worstCoverage {
			worstCoverage = obs.Coverage
			worst = obs.SourceID
		}
	}
	if allUnavailable {
		return p.Sprintf("%s: fused estimate has low confidence: no source returned usable data", report.Domain)
	}
	return p.Sprintf("%s: fused estimate has low confidence: %s covers only %.1f%% of the population",
		report.Domain, worst, worstCoverage*100)
}
