package diversity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

func cites(perDomain map[string]int, confidence float64) []domain.Citation {
	var out []domain.Citation
	for d, n := range perDomain {
		for i := 0; i < n; i++ {
			out = append(out, domain.Citation{
				URL:        fmt.Sprintf("https://%s/%d", d, i),
				Domain:     d,
				Type:       "web",
				Confidence: confidence,
			})
		}
	}
	return out
}

func evenCites(domains, each int, confidence float64) []domain.Citation {
	m := make(map[string]int, domains)
	for i := 0; i < domains; i++ {
		m[fmt.Sprintf("d%02d.com", i)] = each
	}
	return cites(m, confidence)
}

func TestComputeMetrics(t *testing.T) {
	cs := cites(map[string]int{"a.com": 2, "b.org": 1, "c.net": 1}, 0.9)
	cs[3].Confidence = 0.2
	cs[0].Category = domain.CategoryNews

	m := ComputeMetrics(cs, 0.7)
	assert.Equal(t, 4, m.TotalCitations)
	assert.Equal(t, 3, m.UniqueDomains)
	assert.Equal(t, "a.com", m.TopDomain)
	assert.InDelta(t, 0.5, m.MaxConcentration, 1e-9)
	// 1 - (0.25 + 0.0625 + 0.0625)
	assert.InDelta(t, 0.625, m.DiversityScore, 1e-9)
	assert.InDelta(t, 0.75, m.ConfidenceRatio, 1e-9)
	assert.Equal(t, 1, m.CategoryDistribution[domain.CategoryNews])
}

func TestEvaluateCriticalScenario(t *testing.T) {
	m := domain.DiversityMetrics{DiversityScore: 0.45, UniqueDomains: 4, MaxConcentration: 0.5, ConfidenceRatio: 0.8}

	report := Evaluate("r1", m, config.DefaultDiversity(), false)
	assert.Equal(t, domain.DiversityCritical, report.Status)
	assert.NotEmpty(t, report.CriticalFailures)
	assert.Len(t, report.CriticalFailures, 3)
	assert.Equal(t, domain.ClearanceBlocked, report.SynthesisClearance)
}

func TestEvaluatePassAndRebalance(t *testing.T) {
	cfg := config.DefaultDiversity()

	pass := Evaluate("r1", ComputeMetrics(evenCites(12, 2, 0.9), cfg.HighConfidence), cfg, false)
	assert.Equal(t, domain.DiversityPass, pass.Status)
	assert.Equal(t, domain.ClearanceCleared, pass.SynthesisClearance)
	assert.Empty(t, pass.CriticalFailures)

	// 8 domains and half the citations confident: two checks fail, none critically
	half := evenCites(8, 2, 0.9)
	for i := range half {
		if i%2 == 1 {
			half[i].Confidence = 0.5
		}
	}
	m := ComputeMetrics(half, cfg.HighConfidence)
	needs := Evaluate("r1", m, cfg, false)
	assert.Equal(t, domain.DiversityNeedsRebalance, needs.Status)
	assert.Equal(t, domain.ClearanceConditional, needs.SynthesisClearance)

	strict := Evaluate("r1", m, cfg, true)
	assert.Equal(t, domain.ClearanceBlocked, strict.SynthesisClearance)
}

func TestVerdictMonotonicInConcentration(t *testing.T) {
	cfg := config.DefaultDiversity()
	for _, conc := range []float64{0.41, 0.5, 0.75, 1.0} {
		m := domain.DiversityMetrics{DiversityScore: 0.9, UniqueDomains: 12, MaxConcentration: conc, ConfidenceRatio: 0.9}
		report := Evaluate("r1", m, cfg, false)
		assert.Equal(t, domain.DiversityCritical, report.Status, "concentration %v", conc)
	}
}

func TestEmptyCitationsAreCritical(t *testing.T) {
	report := Evaluate("r1", ComputeMetrics(nil, 0.7), config.DefaultDiversity(), false)
	assert.Equal(t, domain.DiversityCritical, report.Status)
}

func TestRebalanceCapsConcentration(t *testing.T) {
	cs := cites(map[string]int{"big.com": 6, "a.com": 2, "b.com": 2, "c.com": 2, "d.com": 2, "e.com": 2}, 0.9)
	for i := range cs {
		if cs[i].Domain == "big.com" {
			cs[i].Confidence = 0.1 * float64(i%5+1)
		}
	}

	out, res := Rebalance(cs, 0.25, 0.7)
	require.True(t, res.Applied)
	assert.Equal(t, 3, res.CitationsMoved)
	assert.Len(t, out, 13)
	assert.Len(t, cs, 16)
	assert.Greater(t, res.ScoreAfter, res.ScoreBefore)
	assert.InDelta(t, res.ScoreAfter-res.ScoreBefore, res.ScoreDelta, 1e-4)

	m := ComputeMetrics(out, 0.7)
	assert.LessOrEqual(t, m.MaxConcentration, 0.25)
}

func TestCompareTrend(t *testing.T) {
	prev := domain.DiversityMetrics{DiversityScore: 0.7, UniqueDomains: 8, MaxConcentration: 0.3, ConfidenceRatio: 0.6}

	better := CompareTrend("p", prev, domain.DiversityMetrics{DiversityScore: 0.8, UniqueDomains: 10, MaxConcentration: 0.2, ConfidenceRatio: 0.6})
	assert.Equal(t, domain.TrendImproving, better.Direction)
	assert.Equal(t, 2, better.DomainDelta)

	worse := CompareTrend("p", prev, domain.DiversityMetrics{DiversityScore: 0.6, UniqueDomains: 8, MaxConcentration: 0.3, ConfidenceRatio: 0.6})
	assert.Equal(t, domain.TrendDeclining, worse.Direction)

	mixed := CompareTrend("p", prev, domain.DiversityMetrics{DiversityScore: 0.8, UniqueDomains: 6, MaxConcentration: 0.3, ConfidenceRatio: 0.6})
	assert.Equal(t, domain.TrendMixed, mixed.Direction)
}

func TestGateAssessRebalancesAndTrends(t *testing.T) {
	cfg := config.DefaultDiversity()
	// 11 domains, one of them dominant and low-confidence: concentration and
	// confidence ratio fail until the dominant domain is trimmed
	var cs []domain.Citation
	for i := 0; i < 8; i++ {
		cs = append(cs, domain.Citation{URL: fmt.Sprintf("https://big.com/%d", i), Domain: "big.com", Type: "web", Confidence: 0.5})
	}
	for i := 0; i < 10; i++ {
		for j := 0; j < 2; j++ {
			conf := 0.9
			if i < 4 && j == 0 {
				conf = 0.5
			}
			d := fmt.Sprintf("d%02d.com", i)
			cs = append(cs, domain.Citation{URL: fmt.Sprintf("https://%s/%d", d, j), Domain: d, Type: "web", Confidence: conf})
		}
	}

	previous := &domain.DiversityReport{RunID: "prev", Metrics: domain.DiversityMetrics{DiversityScore: 0.5, UniqueDomains: 6, MaxConcentration: 0.4, ConfidenceRatio: 0.5}}
	g := NewGate(cfg, true, false)
	a := g.Assess("r1", cs, previous)

	require.NotNil(t, a.Report.Rebalance)
	assert.True(t, a.Report.Rebalance.Applied)
	assert.Equal(t, 2, a.Report.Rebalance.CitationsMoved)
	assert.Less(t, len(a.Citations), len(cs))
	assert.Equal(t, domain.DiversityPass, a.Report.Status)
	require.NotNil(t, a.Report.Trend)
	assert.Equal(t, "prev", a.Report.Trend.PreviousRunID)
	assert.Equal(t, domain.TrendImproving, a.Report.Trend.Direction)

	noRebalance := NewGate(cfg, false, false).Assess("r1", cs, nil)
	assert.Nil(t, noRebalance.Report.Rebalance)
	assert.Len(t, noRebalance.Citations, len(cs))
}
