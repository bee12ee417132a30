package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/artifact"
	"github.com/Nitesh802/customerintel-sub008/internal/diversity"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// diversityGate evaluates the run's evidence, caches the report and returns
// DiversityGateBlocked when synthesis must not proceed.
func (o *Orchestrator) diversityGate(ctx context.Context, run *domain.Run) (diversity.Assessment, error) {
	results, err := o.store.ListPhaseResults(ctx, run.RunID)
	if err != nil {
		return diversity.Assessment{}, fmt.Errorf("list phase results: %w", err)
	}
	var cites []domain.Citation
	for _, r := range results {
		if _, ok := artifact.PhaseByCode(r.Phase); !ok {
			continue
		}
		cites = append(cites, r.Citations...)
	}

	var previous *domain.DiversityReport
	prevRun, err := o.store.GetPreviousCompletedRun(ctx, run.SourceCompany, run.RunID)
	if err != nil {
		o.logger.Warn("failed to look up previous run", zap.String("run_id", run.RunID), zap.Error(err))
	} else if prevRun != nil {
		previous, err = o.store.GetDiversityReport(ctx, prevRun.RunID)
		if err != nil {
			o.logger.Warn("failed to load previous diversity report", zap.String("run_id", prevRun.RunID), zap.Error(err))
		}
	}

	assessment := o.gate.Assess(run.RunID, cites, previous)
	report := assessment.Report

	if o.policy != nil {
		decision, reason, err := o.policy.SynthesisClearance(ctx, string(report.Status), len(report.CriticalFailures), o.gate.Strict())
		if err != nil {
			o.logger.Warn("policy evaluation failed, using built-in clearance", zap.Error(err))
		} else {
			report.SynthesisClearance = domain.Clearance(decision)
			report.ClearanceReason = reason
		}
		o.recordEvent(ctx, run.RunID, domain.EventTypePolicyDecision, map[string]interface{}{
			"policy":   "synthesis_clearance",
			"status":   report.Status,
			"decision": report.SynthesisClearance,
			"reason":   report.ClearanceReason,
		})
	}

	if err := o.store.SaveDiversityReport(ctx, report); err != nil {
		return assessment, fmt.Errorf("save diversity report: %w", err)
	}

	payload := map[string]interface{}{
		"status":            report.Status,
		"clearance":         report.SynthesisClearance,
		"diversity_score":   report.Metrics.DiversityScore,
		"unique_domains":    report.Metrics.UniqueDomains,
		"max_concentration": report.Metrics.MaxConcentration,
		"confidence_ratio":  report.Metrics.ConfidenceRatio,
		"critical_failures": report.CriticalFailures,
	}
	if report.Rebalance != nil {
		payload["citations_moved"] = report.Rebalance.CitationsMoved
	}
	if report.Trend != nil {
		payload["trend"] = report.Trend.Direction
	}
	o.recordEvent(ctx, run.RunID, domain.EventTypeDiversityResult, payload)
	o.logger.Info("diversity evaluated",
		zap.String("run_id", run.RunID),
		zap.String("status", string(report.Status)),
		zap.String("clearance", string(report.SynthesisClearance)),
		zap.Float64("score", report.Metrics.DiversityScore),
		zap.Int("domains", report.Metrics.UniqueDomains))

	if report.SynthesisClearance == domain.ClearanceBlocked {
		return assessment, &domain.DiversityGateBlocked{
			RunID:            run.RunID,
			Status:           report.Status,
			CriticalFailures: report.CriticalFailures,
		}
	}
	return assessment, nil
}
