package diversity

import (
	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// Gate runs the full diversity assessment for a run.
type Gate struct {
	cfg           config.DiversityConfig
	autoRebalance bool
	strict        bool
}

// NewGate creates a gate with the given thresholds.
func NewGate(cfg config.DiversityConfig, autoRebalance, strict bool) *Gate {
	return &Gate{cfg: cfg, autoRebalance: autoRebalance, strict: strict}
}

// Assessment is the outcome of Assess: the report and the citation set it
// was computed over (after any rebalancing).
type Assessment struct {
	Report    *domain.DiversityReport
	Citations []domain.Citation
}

// Assess evaluates cites. A NEEDS_REBALANCE verdict triggers one rebalancing
// pass when enabled; the report then describes the rebalanced set. previous,
// when non-nil, is the cached report of the preceding completed run.
func (g *Gate) Assess(runID string, cites []domain.Citation, previous *domain.DiversityReport) Assessment {
	metrics := ComputeMetrics(cites, g.cfg.HighConfidence)
	report := Evaluate(runID, metrics, g.cfg, g.strict)
	kept := cites

	if report.Status == domain.DiversityNeedsRebalance && g.autoRebalance {
		rebalanced, result := Rebalance(cites, g.cfg.MaxConcentration, g.cfg.HighConfidence)
		if result.Applied {
			kept = rebalanced
			report = Evaluate(runID, ComputeMetrics(rebalanced, g.cfg.HighConfidence), g.cfg, g.strict)
		}
		report.Rebalance = &result
	}

	if previous != nil {
		report.Trend = CompareTrend(previous.RunID, previous.Metrics, report.Metrics)
	}
	return Assessment{Report: report, Citations: kept}
}

// Strict reports whether strict mode is enabled.
func (g *Gate) Strict() bool { return g.strict }
