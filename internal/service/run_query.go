package service

import (
	"context"
	"fmt"
	"io"

	"github.com/Nitesh802/customerintel-sub008/internal/artifact"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/export"
)

func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	events, err := s.store.GetEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}

func (s *Service) ListPhaseResults(ctx context.Context, runID string) ([]domain.PhaseResult, error) {
	if _, err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	results, err := s.store.ListPhaseResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phase results: %w", err)
	}
	return results, nil
}

// ListArtifacts returns every logical artifact of the run, upgraded and
// transformed, keyed by logical name.
func (s *Service) ListArtifacts(ctx context.Context, runID string) (map[string]map[string]any, error) {
	if _, err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	arts, err := s.orch.Artifacts().LoadAll(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return arts, nil
}

// GetArtifact returns one artifact by logical name, or nil if the run has none.
func (s *Service) GetArtifact(ctx context.Context, runID, logical string) (map[string]any, error) {
	if _, ok := artifact.PhysicalName(logical); !ok {
		return nil, fmt.Errorf("%w: unknown artifact %q", ErrInvalidRequest, logical)
	}
	if _, err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	data, ok, err := s.orch.Artifacts().LoadOptional(ctx, runID, logical)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (s *Service) GetDiversityReport(ctx context.Context, runID string) (*domain.DiversityReport, error) {
	report, err := s.store.GetDiversityReport(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get diversity report: %w", err)
	}
	return report, nil
}

func (s *Service) GetBundle(ctx context.Context, runID string) (*domain.SynthesisBundle, error) {
	bundle, err := s.store.GetBundle(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bundle: %w", err)
	}
	return bundle, nil
}

// RebuildBundle re-assembles the bundle of a finished run from its stored
// artifacts.
func (s *Service) RebuildBundle(ctx context.Context, runID string) (*domain.SynthesisBundle, error) {
	run, err := s.requireRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusCompleted {
		return nil, fmt.Errorf("%w: bundle can only be rebuilt for completed runs", ErrInvalidState)
	}
	bundle, err := s.orch.RebuildBundle(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild bundle: %w", err)
	}
	return bundle, nil
}

// Export streams the diagnostic archive of a run to w.
func (s *Service) Export(ctx context.Context, runID string, w io.Writer) (*export.Manifest, error) {
	if _, err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	manifest, err := s.exporter.Write(ctx, runID, w)
	if err != nil {
		return nil, fmt.Errorf("failed to export run: %w", err)
	}
	return manifest, nil
}

// ExportFile writes the diagnostic archive into the configured export
// directory, or dir when set.
func (s *Service) ExportFile(ctx context.Context, runID, dir string) (string, error) {
	if _, err := s.requireRun(ctx, runID); err != nil {
		return "", err
	}
	if dir == "" {
		dir = s.config.Pipeline.ExportDir
	}
	path, err := s.exporter.WriteFile(ctx, runID, dir)
	if err != nil {
		return "", fmt.Errorf("failed to export run: %w", err)
	}
	return path, nil
}
