// Package pipeline drives a run through the protocol phases and the
// synthesis tail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/adapter/llm"
	"github.com/Nitesh802/customerintel-sub008/internal/artifact"
	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/diversity"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/repository"
	"github.com/Nitesh802/customerintel-sub008/internal/schema"
	"github.com/Nitesh802/customerintel-sub008/policy"
)

// Orchestrator runs the protocol state machine. One instance serves many
// runs; each run is executed sequentially by the goroutine that calls Run.
type Orchestrator struct {
	store     repository.Store
	llm       llm.Client
	schemas   *schema.Registry
	artifacts *artifact.Adapter
	gate      *diversity.Gate
	policy    *policy.Engine
	notifier  Notifier
	cfg       *config.Config
	logger    *zap.Logger
	markdown  goldmark.Markdown
}

// New creates an orchestrator. policyEngine may be nil, in which case the
// built-in clearance and failure rules apply.
func New(store repository.Store, client llm.Client, schemas *schema.Registry, policyEngine *policy.Engine, cfg *config.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		llm:       client,
		schemas:   schemas,
		artifacts: artifact.NewAdapter(store, logger),
		gate:      diversity.NewGate(cfg.Diversity, cfg.Pipeline.AutoRebalance, cfg.Pipeline.StrictMode),
		policy:    policyEngine,
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		markdown:  goldmark.New(),
	}
}

// SetNotifier attaches a live event sink.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.notifier = n
}

// Artifacts exposes the compatibility adapter used by the orchestrator.
func (o *Orchestrator) Artifacts() *artifact.Adapter {
	return o.artifacts
}

// Run executes a queued (or already claimed) run to completion. A diversity
// block is not an error: the run is left in status blocked and Run returns
// nil. Any other failure marks the run failed and is returned.
func (o *Orchestrator) Run(ctx context.Context, runID string) error {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	switch run.Status {
	case domain.RunStatusQueued:
		claimed, err := o.store.ClaimRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("claim run: %w", err)
		}
		if !claimed {
			return fmt.Errorf("run %s was claimed elsewhere", runID)
		}
	case domain.RunStatusRunning:
		// claimed by the scheduler
	default:
		return fmt.Errorf("run %s is %s, not runnable", runID, run.Status)
	}

	o.logger.Info("run started", zap.String("run_id", runID), zap.String("source", run.SourceCompany))
	o.recordEvent(ctx, runID, domain.EventTypeRunStarted, map[string]interface{}{
		"source_company": run.SourceCompany,
		"target_company": run.TargetCompany,
	})

	err = o.runPhases(ctx, run)
	if err == nil {
		err = o.runTail(ctx, run)
	}
	return o.finish(ctx, run, err)
}

// ErrNotResumable is returned when a resume finds the run no longer blocked,
// typically because another resume claimed it first.
var ErrNotResumable = errors.New("run is not blocked")

// Resume claims a blocked run and re-enters its tail at the diversity gate
// without re-running any phase.
func (o *Orchestrator) Resume(ctx context.Context, runID string) error {
	if err := o.ClaimResume(ctx, runID); err != nil {
		return err
	}
	return o.ResumeClaimed(ctx, runID)
}

// ClaimResume moves a blocked run to running. Exactly one concurrent caller
// succeeds; the others get ErrNotResumable.
func (o *Orchestrator) ClaimResume(ctx context.Context, runID string) error {
	claimed, err := o.store.ClaimBlockedRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("claim blocked run: %w", err)
	}
	if !claimed {
		return fmt.Errorf("run %s: %w", runID, ErrNotResumable)
	}
	return nil
}

// ResumeClaimed runs the tail of a run already claimed by ClaimResume.
func (o *Orchestrator) ResumeClaimed(ctx context.Context, runID string) error {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	o.logger.Info("run resumed", zap.String("run_id", runID))
	o.recordEvent(ctx, runID, domain.EventTypeRunResumed, map[string]interface{}{})
	return o.finish(ctx, run, o.runTail(ctx, run))
}

// RebuildBundle re-assembles and replaces the run's synthesis bundle from
// its current artifacts.
func (o *Orchestrator) RebuildBundle(ctx context.Context, runID string) (*domain.SynthesisBundle, error) {
	return o.finalize(ctx, runID)
}

func (o *Orchestrator) runPhases(ctx context.Context, run *domain.Run) error {
	failed := 0
	for i, p := range artifact.Phases() {
		if err := o.checkCancel(ctx, run.RunID); err != nil {
			return err
		}
		if err := o.setState(ctx, run.RunID, domain.PhaseState(i+1)); err != nil {
			return err
		}

		if err := o.runPhase(ctx, run, p); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			action, reason := o.phaseFailureAction(ctx, run.RunID, p.Code, failed)
			if action == policy.ActionStop {
				return &domain.PhaseError{
					Phase:   p.Code,
					RunID:   run.RunID,
					Message: reason,
					Context: map[string]any{"failed_phases": failed},
					Err:     err,
				}
			}
		}
	}
	return nil
}

// runTail executes diversity_gate → synthesis_draft → qa_score → finalize.
func (o *Orchestrator) runTail(ctx context.Context, run *domain.Run) error {
	if err := o.checkCancel(ctx, run.RunID); err != nil {
		return err
	}
	if err := o.setState(ctx, run.RunID, domain.StateDiversityGate); err != nil {
		return err
	}
	assessment, err := o.diversityGate(ctx, run)
	if err != nil {
		return err
	}

	if err := o.checkCancel(ctx, run.RunID); err != nil {
		return err
	}
	if err := o.setState(ctx, run.RunID, domain.StateSynthesisDraft); err != nil {
		return err
	}
	if err := o.synthesize(ctx, run, assessment.Citations); err != nil {
		return err
	}

	if err := o.setState(ctx, run.RunID, domain.StateQAScore); err != nil {
		return err
	}
	if err := o.score(ctx, run, assessment.Report); err != nil {
		return err
	}

	if err := o.setState(ctx, run.RunID, domain.StateFinalize); err != nil {
		return err
	}
	_, err = o.finalize(ctx, run.RunID)
	return err
}

func (o *Orchestrator) checkCancel(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run != nil && run.CancelRequested {
		return &domain.RunCancelledError{RunID: runID}
	}
	return nil
}

// finish records the terminal (or blocked) outcome of err on the run row.
func (o *Orchestrator) finish(ctx context.Context, run *domain.Run, err error) error {
	// outcome must be persisted even when ctx was cancelled
	ctx = context.WithoutCancel(ctx)
	runID := run.RunID

	var (
		blocked   *domain.DiversityGateBlocked
		cancelled *domain.RunCancelledError
	)
	switch {
	case err == nil:
		if ferr := o.store.FinishRun(ctx, runID, domain.RunStatusCompleted, domain.StateCompleted, ""); ferr != nil {
			return fmt.Errorf("finish run: %w", ferr)
		}
		o.recordEvent(ctx, runID, domain.EventTypeRunCompleted, map[string]interface{}{})
		o.logger.Info("run completed", zap.String("run_id", runID))
		return nil

	case errors.As(err, &blocked):
		if ferr := o.store.FinishRun(ctx, runID, domain.RunStatusBlocked, domain.StateBlocked, ""); ferr != nil {
			return fmt.Errorf("finish run: %w", ferr)
		}
		o.recordEvent(ctx, runID, domain.EventTypeRunBlocked, map[string]interface{}{
			"status":            blocked.Status,
			"critical_failures": blocked.CriticalFailures,
		})
		o.logger.Warn("run blocked by diversity gate",
			zap.String("run_id", runID),
			zap.Strings("critical_failures", blocked.CriticalFailures))
		return nil

	case errors.As(err, &cancelled):
		if ferr := o.store.FinishRun(ctx, runID, domain.RunStatusFailed, domain.StateFailed, cancelled.Error()); ferr != nil {
			o.logger.Error("failed to finish run", zap.String("run_id", runID), zap.Error(ferr))
		}
		o.recordEvent(ctx, runID, domain.EventTypeRunCancelled, map[string]interface{}{})
		o.logger.Info("run cancelled", zap.String("run_id", runID))
		return err
	}

	msg := domain.TruncateMessage(err.Error(), domain.MaxErrorMessageLen)
	if ferr := o.store.FinishRun(ctx, runID, domain.RunStatusFailed, domain.StateFailed, msg); ferr != nil {
		o.logger.Error("failed to finish run", zap.String("run_id", runID), zap.Error(ferr))
	}
	o.recordEvent(ctx, runID, domain.EventTypeRunFailed, map[string]interface{}{
		"kind":    domain.KindOf(err).String(),
		"message": msg,
	})
	o.logger.Error("run failed", zap.String("run_id", runID), zap.Error(err))
	return err
}

// phaseFailureAction asks the policy whether a run continues after a failed
// phase. Without a policy engine, strict mode stops and the failed-phase
// limit applies.
func (o *Orchestrator) phaseFailureAction(ctx context.Context, runID, phase string, failed int) (string, string) {
	strict := o.cfg.Pipeline.StrictMode
	maxFailed := o.cfg.Pipeline.MaxFailedPhases

	action, reason := policy.ActionContinue, "best-effort completeness"
	switch {
	case strict:
		action, reason = policy.ActionStop, "strict mode"
	case maxFailed > 0 && failed >= maxFailed:
		action, reason = policy.ActionStop, "failed phase limit reached"
	}

	if o.policy != nil {
		decision, why, err := o.policy.PhaseFailureAction(ctx, phase, failed, maxFailed, strict)
		if err != nil {
			o.logger.Warn("policy evaluation failed, using built-in rule", zap.Error(err))
		} else {
			action, reason = decision, why
		}
	}

	o.recordEvent(ctx, runID, domain.EventTypePolicyDecision, map[string]interface{}{
		"policy":        "phase_failure_action",
		"phase":         phase,
		"failed_phases": failed,
		"decision":      action,
		"reason":        reason,
	})
	return action, reason
}

func (o *Orchestrator) retryPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{Attempts: o.cfg.LLM.RetryAttempts, BaseDelay: o.cfg.LLM.RetryBaseDelay}
}

func (o *Orchestrator) cost(tokens int) float64 {
	return float64(tokens) / 1000 * o.cfg.LLM.PricePer1K
}

func (o *Orchestrator) addTotals(ctx context.Context, runID string, tokens int) {
	if tokens == 0 {
		return
	}
	if err := o.store.AddRunTotals(ctx, runID, tokens, o.cost(tokens)); err != nil {
		o.logger.Error("failed to add run totals", zap.String("run_id", runID), zap.Error(err))
	}
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
