// Package diversity measures how varied and confident a run's citation
// sources are, and decides whether synthesis may proceed.
package diversity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// Check names.
const (
	CheckDiversityScore  = "diversity_score"
	CheckUniqueDomains   = "unique_domains"
	CheckConcentration   = "max_concentration"
	CheckConfidenceRatio = "confidence_ratio"
)

const epsilon = 1e-9

// ComputeMetrics aggregates citations by registrable domain. The diversity
// score is the Gini-Simpson index 1-sum(p^2) over domain shares.
func ComputeMetrics(cites []domain.Citation, highConfidence float64) domain.DiversityMetrics {
	m := domain.DiversityMetrics{
		DomainCounts:         make(map[string]int),
		CategoryDistribution: make(map[string]int),
	}
	high := 0
	for _, c := range cites {
		d := c.Domain
		if d == "" {
			d = "unknown"
		}
		m.DomainCounts[d]++
		if c.Category != "" {
			m.CategoryDistribution[c.Category]++
		}
		if c.Confidence >= highConfidence {
			high++
		}
	}
	m.TotalCitations = len(cites)
	m.UniqueDomains = len(m.DomainCounts)
	if m.TotalCitations == 0 {
		return m
	}

	total := float64(m.TotalCitations)
	sumSq := 0.0
	for _, d := range sortedDomains(m.DomainCounts) {
		share := float64(m.DomainCounts[d]) / total
		sumSq += share * share
		if share > m.MaxConcentration+epsilon {
			m.MaxConcentration = share
			m.TopDomain = d
		}
	}
	m.DiversityScore = round4(1 - sumSq)
	m.MaxConcentration = round4(m.MaxConcentration)
	m.ConfidenceRatio = round4(float64(high) / total)
	return m
}

// Evaluate compares metrics against the thresholds. Clearance is filled with
// DefaultClearance; callers with a policy engine may override it.
func Evaluate(runID string, m domain.DiversityMetrics, cfg config.DiversityConfig, strict bool) *domain.DiversityReport {
	checks := []domain.DiversityCheck{
		{
			Name:      CheckDiversityScore,
			Value:     m.DiversityScore,
			Threshold: cfg.MinDiversityScore,
			Passed:    m.DiversityScore+epsilon >= cfg.MinDiversityScore,
			Critical:  m.DiversityScore < cfg.CriticalDiversityScore-epsilon,
		},
		{
			Name:      CheckUniqueDomains,
			Value:     float64(m.UniqueDomains),
			Threshold: float64(cfg.MinUniqueDomains),
			Passed:    m.UniqueDomains >= cfg.MinUniqueDomains,
			Critical:  m.UniqueDomains < cfg.CriticalUniqueDomains,
		},
		{
			Name:      CheckConcentration,
			Value:     m.MaxConcentration,
			Threshold: cfg.MaxConcentration,
			Passed:    m.MaxConcentration <= cfg.MaxConcentration+epsilon,
			Critical:  m.MaxConcentration > cfg.CriticalConcentration+epsilon,
		},
		{
			Name:      CheckConfidenceRatio,
			Value:     m.ConfidenceRatio,
			Threshold: cfg.MinConfidenceRatio,
			Passed:    m.ConfidenceRatio+epsilon >= cfg.MinConfidenceRatio,
			Critical:  m.ConfidenceRatio < cfg.CriticalConfidenceRatio-epsilon,
		},
	}

	report := &domain.DiversityReport{
		RunID:            runID,
		Metrics:          m,
		Checks:           checks,
		CriticalFailures: []string{},
	}
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
		if c.Critical {
			report.CriticalFailures = append(report.CriticalFailures,
				fmt.Sprintf("%s %.4g breaches critical floor", c.Name, c.Value))
		}
	}

	switch {
	case len(report.CriticalFailures) > 0:
		report.Status = domain.DiversityCritical
	case float64(passed)/float64(len(checks))+epsilon >= cfg.PassRatio:
		report.Status = domain.DiversityPass
	default:
		report.Status = domain.DiversityNeedsRebalance
	}
	report.SynthesisClearance, report.ClearanceReason = DefaultClearance(report.Status, strict)
	report.CreatedAt = time.Now().UTC()
	return report
}

// DefaultClearance maps a verdict to a synthesis clearance.
func DefaultClearance(status domain.DiversityStatus, strict bool) (domain.Clearance, string) {
	switch status {
	case domain.DiversityCritical:
		return domain.ClearanceBlocked, "critical diversity failure"
	case domain.DiversityNeedsRebalance:
		if strict {
			return domain.ClearanceBlocked, "strict mode requires PASS"
		}
		return domain.ClearanceConditional, "evidence needs rebalancing"
	}
	return domain.ClearanceCleared, "diversity thresholds met"
}

// CompareTrend reports how current moved relative to the previous run.
func CompareTrend(previousRunID string, previous, current domain.DiversityMetrics) *domain.DiversityTrend {
	t := &domain.DiversityTrend{
		PreviousRunID:      previousRunID,
		ScoreDelta:         round4(current.DiversityScore - previous.DiversityScore),
		DomainDelta:        current.UniqueDomains - previous.UniqueDomains,
		ConcentrationDelta: round4(current.MaxConcentration - previous.MaxConcentration),
		ConfidenceDelta:    round4(current.ConfidenceRatio - previous.ConfidenceRatio),
	}
	better, worse := 0, 0
	tally := func(delta float64, higherIsBetter bool) {
		if !higherIsBetter {
			delta = -delta
		}
		switch {
		case delta > epsilon:
			better++
		case delta < -epsilon:
			worse++
		}
	}
	tally(t.ScoreDelta, true)
	tally(float64(t.DomainDelta), true)
	tally(t.ConcentrationDelta, false)
	tally(t.ConfidenceDelta, true)

	switch {
	case better > 0 && worse == 0:
		t.Direction = domain.TrendImproving
	case worse > 0 && better == 0:
		t.Direction = domain.TrendDeclining
	default:
		t.Direction = domain.TrendMixed
	}
	return t
}

// Rebalance drops the lowest-confidence citations of over-represented
// domains until no domain exceeds maxConcentration or every remaining domain
// is down to one citation. The input slice is not modified.
func Rebalance(cites []domain.Citation, maxConcentration, highConfidence float64) ([]domain.Citation, domain.RebalanceResult) {
	out := make([]domain.Citation, len(cites))
	copy(out, cites)
	before := ComputeMetrics(cites, highConfidence).DiversityScore

	moved := 0
	for len(out) > 0 {
		counts := make(map[string]int)
		for _, c := range out {
			counts[c.Domain]++
		}
		top, topCount := "", 0
		for _, d := range sortedDomains(counts) {
			if counts[d] > topCount {
				top, topCount = d, counts[d]
			}
		}
		if float64(topCount)/float64(len(out)) <= maxConcentration+epsilon || topCount <= 1 {
			break
		}
		drop := -1
		for i, c := range out {
			if c.Domain != top {
				continue
			}
			if drop < 0 || c.Confidence <= out[drop].Confidence {
				drop = i
			}
		}
		out = append(out[:drop], out[drop+1:]...)
		moved++
	}

	after := ComputeMetrics(out, highConfidence).DiversityScore
	return out, domain.RebalanceResult{
		Applied:        moved > 0,
		CitationsMoved: moved,
		ScoreBefore:    before,
		ScoreAfter:     after,
		ScoreDelta:     round4(after - before),
	}
}

func sortedDomains(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for d := range counts {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
