package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/pipeline"
)

// CreateRun validates the request and enqueues a new run with its chunks.
func (s *Service) CreateRun(ctx context.Context, req domain.CreateRunRequest) (*domain.Run, error) {
	req.SourceCompany = strings.TrimSpace(req.SourceCompany)
	req.TargetCompany = strings.TrimSpace(req.TargetCompany)
	if req.SourceCompany == "" {
		return nil, fmt.Errorf("%w: source_company is required", ErrInvalidRequest)
	}
	if err := validateChunks(req.Chunks); err != nil {
		return nil, err
	}

	run := &domain.Run{
		RunID:         "run_" + uuid.New().String()[:8],
		SourceCompany: req.SourceCompany,
		TargetCompany: req.TargetCompany,
		Status:        domain.RunStatusQueued,
		State:         domain.StatePending,
		CreatedAt:     time.Now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	if len(req.Chunks) > 0 {
		if err := s.store.SaveChunks(ctx, run.RunID, req.Chunks); err != nil {
			return nil, fmt.Errorf("failed to save chunks: %w", err)
		}
	}

	s.logger.Info("run enqueued", zap.String("run_id", run.RunID), zap.Int("chunks", len(req.Chunks)))
	return run, nil
}

func validateChunks(chunks []domain.Chunk) error {
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("%w: chunks[%d].text is required", ErrInvalidRequest, i)
		}
		if c.EndOffset < c.StartOffset {
			return fmt.Errorf("%w: chunks[%d] endOffset before startOffset", ErrInvalidRequest, i)
		}
	}
	return nil
}

// AddChunks appends source material to a run that has not started yet.
func (s *Service) AddChunks(ctx context.Context, runID string, chunks []domain.Chunk) (int, error) {
	run, err := s.requireRun(ctx, runID)
	if err != nil {
		return 0, err
	}
	if run.Status != domain.RunStatusQueued {
		return 0, fmt.Errorf("%w: chunks can only be added to queued runs", ErrInvalidState)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: chunks array is required", ErrInvalidRequest)
	}
	if err := validateChunks(chunks); err != nil {
		return 0, err
	}
	if err := s.store.SaveChunks(ctx, runID, chunks); err != nil {
		return 0, fmt.Errorf("failed to save chunks: %w", err)
	}
	return len(chunks), nil
}

func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, status domain.RunStatus, limit int) ([]domain.Run, error) {
	runs, err := s.store.ListRuns(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func (s *Service) requireRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// CancelRun flags a run for cancellation. The orchestrator honours the flag
// at the next phase boundary; an in-flight model call completes first.
func (s *Service) CancelRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.requireRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil // Already terminal
	}

	if run.Status == domain.RunStatusBlocked {
		// nothing is executing; close it out directly
		if err := s.store.FinishRun(ctx, runID, domain.RunStatusFailed, domain.StateFailed, "run cancelled"); err != nil {
			return nil, fmt.Errorf("failed to cancel run: %w", err)
		}
	} else if err := s.store.RequestCancel(ctx, runID); err != nil {
		return nil, fmt.Errorf("failed to cancel run: %w", err)
	}
	s.logger.Info("run cancellation requested", zap.String("run_id", runID))
	return s.GetRun(ctx, runID)
}

// ExecuteRun runs the pipeline for a queued run in the caller's goroutine.
func (s *Service) ExecuteRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.requireRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusQueued {
		return nil, fmt.Errorf("%w: run is %s", ErrInvalidState, run.Status)
	}
	if err := s.orch.Run(ctx, runID); err != nil {
		// the failure is recorded on the run
		s.logger.Warn("run failed", zap.String("run_id", runID), zap.Error(err))
	}
	return s.GetRun(ctx, runID)
}

// ResumeRun re-enters the synthesis tail of a blocked run. With wait false
// the work continues in the background after ResumeRun returns.
func (s *Service) ResumeRun(ctx context.Context, runID string, wait bool) (*domain.Run, error) {
	run, err := s.requireRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusBlocked {
		return nil, fmt.Errorf("%w: only blocked runs can be resumed", ErrInvalidState)
	}

	if err := s.orch.ClaimResume(ctx, runID); err != nil {
		if errors.Is(err, pipeline.ErrNotResumable) {
			return nil, fmt.Errorf("%w: run is already being resumed", ErrInvalidState)
		}
		return nil, err
	}

	if wait {
		if err := s.orch.ResumeClaimed(ctx, runID); err != nil {
			s.logger.Warn("resume failed", zap.String("run_id", runID), zap.Error(err))
		}
		return s.GetRun(ctx, runID)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.orch.ResumeClaimed(context.WithoutCancel(ctx), runID); err != nil {
			s.logger.Warn("resume failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return s.GetRun(ctx, runID)
}
