// Package repository persists runs, phase results, artifacts and telemetry.
package repository

import (
	"context"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// Store defines the interface for pipeline data storage.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, status domain.RunStatus, limit int) ([]domain.Run, error)
	ClaimRun(ctx context.Context, runID string) (bool, error)
	ClaimBlockedRun(ctx context.Context, runID string) (bool, error)
	UpdateRunState(ctx context.Context, runID string, status domain.RunStatus, state domain.PipelineState) error
	AddRunTotals(ctx context.Context, runID string, tokens int, cost float64) error
	RequestCancel(ctx context.Context, runID string) error
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, state domain.PipelineState, errMsg string) error
	GetPreviousCompletedRun(ctx context.Context, sourceCompany, beforeRunID string) (*domain.Run, error)

	// Chunk operations
	SaveChunks(ctx context.Context, runID string, chunks []domain.Chunk) error
	ListChunks(ctx context.Context, runID string) ([]domain.Chunk, error)

	// Phase result operations
	SavePhaseResult(ctx context.Context, result *domain.PhaseResult) error
	ListPhaseResults(ctx context.Context, runID string) ([]domain.PhaseResult, error)

	// Artifact operations
	SaveArtifact(ctx context.Context, artifact *domain.Artifact) error
	LoadArtifact(ctx context.Context, runID, phase, artifactType string) (*domain.Artifact, error)
	ListArtifacts(ctx context.Context, runID string) ([]domain.Artifact, error)
	ArtifactHistory(ctx context.Context, runID, phase, artifactType string) ([]domain.Artifact, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Diversity and synthesis operations
	SaveDiversityReport(ctx context.Context, report *domain.DiversityReport) error
	GetDiversityReport(ctx context.Context, runID string) (*domain.DiversityReport, error)
	SaveBundle(ctx context.Context, bundle *domain.SynthesisBundle) error
	GetBundle(ctx context.Context, runID string) (*domain.SynthesisBundle, error)

	Close() error
}

var _ Store = (*SQLiteStore)(nil)
