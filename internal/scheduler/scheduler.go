// Package scheduler picks up queued runs and executes them with bounded
// concurrency. Each run is executed start to finish by one goroutine.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// Runner executes one claimed run.
type Runner interface {
	Run(ctx context.Context, runID string) error
}

// Store is the run queue the scheduler polls.
type Store interface {
	ListRuns(ctx context.Context, status domain.RunStatus, limit int) ([]domain.Run, error)
	ClaimRun(ctx context.Context, runID string) (bool, error)
}

// Scheduler polls for queued runs.
type Scheduler struct {
	store    Store
	runner   Runner
	workers  int
	interval time.Duration
	logger   *zap.Logger
}

// New creates a scheduler running at most workers runs at a time.
func New(store Store, runner Runner, workers int, interval time.Duration, logger *zap.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:    store,
		runner:   runner,
		workers:  workers,
		interval: interval,
		logger:   logger.Named("scheduler"),
	}
}

// Run polls until ctx is done, then waits for in-flight runs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(s.workers)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx, &g)
	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case <-ticker.C:
			s.sweep(ctx, &g)
		}
	}
}

// sweep starts as many queued runs as there are free workers.
func (s *Scheduler) sweep(ctx context.Context, g *errgroup.Group) {
	listCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	queued, err := s.store.ListRuns(listCtx, domain.RunStatusQueued, s.workers*2)
	if err != nil {
		s.logger.Warn("queue sweep failed", zap.Error(err))
		return
	}

	for _, run := range queued {
		runID := run.RunID
		started := g.TryGo(func() error {
			s.execute(ctx, runID)
			return nil
		})
		if !started {
			return
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, runID string) {
	claimed, err := s.store.ClaimRun(ctx, runID)
	if err != nil {
		s.logger.Warn("failed to claim run", zap.String("run_id", runID), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	s.logger.Info("run claimed", zap.String("run_id", runID))
	if err := s.runner.Run(ctx, runID); err != nil {
		// the run row already carries the failure
		s.logger.Warn("run ended with error", zap.String("run_id", runID), zap.Error(err))
	}
}
