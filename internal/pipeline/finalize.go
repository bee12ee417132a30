package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/artifact"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// finalize builds the synthesis bundle and replaces the run's stored one.
func (o *Orchestrator) finalize(ctx context.Context, runID string) (*domain.SynthesisBundle, error) {
	results, err := o.store.ListPhaseResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list phase results: %w", err)
	}
	report, err := o.store.GetDiversityReport(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get diversity report: %w", err)
	}

	bundle, err := o.artifacts.BuildFinalBundle(ctx, artifact.BundleInput{
		RunID:        runID,
		PhaseResults: results,
		Diversity:    report,
	})
	if err != nil {
		return nil, fmt.Errorf("build bundle: %w", err)
	}
	if err := o.store.SaveBundle(ctx, bundle); err != nil {
		return nil, fmt.Errorf("save bundle: %w", err)
	}

	o.recordEvent(ctx, runID, domain.EventTypeBundleBuilt, map[string]interface{}{
		"citations": len(bundle.Citations),
	})
	o.logger.Info("bundle built", zap.String("run_id", runID), zap.Int("citations", len(bundle.Citations)))
	return bundle, nil
}
