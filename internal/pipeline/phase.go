package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/adapter/llm"
	"github.com/Nitesh802/customerintel-sub008/internal/artifact"
	"github.com/Nitesh802/customerintel-sub008/internal/citation"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/schema"
)

// callResult is the conformed outcome of one model-backed step.
type callResult struct {
	payload  map[string]any
	warnings []schema.Warning
	repaired bool
	attempts int
	tokens   int
	resp     *llm.Response
}

// callConforming sends the request with retry; each attempt must produce a
// payload valid against s (after at most one repair) to count as success.
func (o *Orchestrator) callConforming(ctx context.Context, runID, name string, s *schema.Schema, system, user string) (*callResult, error) {
	cc := &conformingClient{inner: o.llm, name: name, schema: s}
	req := &llm.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		Schema:       s,
		JSONMode:     true,
	}
	resp, attempts, err := llm.CallWithRetry(ctx, cc, req, o.retryPolicy())
	o.addTotals(ctx, runID, cc.tokens)
	out := &callResult{attempts: attempts, tokens: cc.tokens}
	if err != nil {
		return out, err
	}

	out.payload, out.warnings, out.repaired, out.resp = cc.payload, cc.warnings, cc.repaired, resp
	o.recordEvent(ctx, runID, domain.EventTypeLLMCallDone, map[string]interface{}{
		"step":        name,
		"model":       resp.Model,
		"duration_ms": resp.DurationMs,
		"tokens":      cc.tokens,
		"attempts":    attempts,
		"temperature": resp.Temperature,
	})
	if out.repaired {
		o.recordEvent(ctx, runID, domain.EventTypeSchemaRepaired, map[string]interface{}{
			"step":     name,
			"warnings": warningStrings(out.warnings),
			"partial":  partialCount(out.warnings),
		})
	}
	return out, nil
}

// runPhase executes one protocol step and always persists its result. The
// returned error is the step failure, if any.
func (o *Orchestrator) runPhase(ctx context.Context, run *domain.Run, p artifact.Phase) error {
	start := time.Now()
	logger := o.logger.With(zap.String("run_id", run.RunID), zap.String("phase", p.Code))
	o.recordEvent(ctx, run.RunID, domain.EventTypePhaseStarted, map[string]interface{}{
		"phase": p.Code,
		"title": p.Title,
	})

	result := &domain.PhaseResult{
		RunID:     run.RunID,
		Phase:     p.Code,
		Citations: []domain.Citation{},
	}

	cites, err := o.executePhase(ctx, run, p, result)
	result.DurationMs = elapsedMs(start)
	if err != nil {
		result.Status = domain.PhaseStatusFailed
		result.Error = domain.TruncateMessage(err.Error(), domain.MaxErrorMessageLen)
	} else {
		result.Citations = cites
	}

	if serr := o.store.SavePhaseResult(context.WithoutCancel(ctx), result); serr != nil {
		logger.Error("failed to save phase result", zap.Error(serr))
		if err == nil {
			err = fmt.Errorf("save phase result: %w", serr)
		}
	}

	if err != nil {
		logger.Warn("phase failed",
			zap.String("kind", domain.KindOf(err).String()),
			zap.Int("attempts", result.Attempts),
			zap.Error(err))
		o.recordEvent(ctx, run.RunID, domain.EventTypePhaseFailed, map[string]interface{}{
			"phase":    p.Code,
			"kind":     domain.KindOf(err).String(),
			"error":    result.Error,
			"attempts": result.Attempts,
		})
		return &domain.PhaseError{
			Phase:   p.Code,
			RunID:   run.RunID,
			Message: "phase did not produce a valid artifact",
			Context: map[string]any{"attempts": result.Attempts, "duration_ms": result.DurationMs},
			Err:     err,
		}
	}

	logger.Info("phase completed",
		zap.String("status", string(result.Status)),
		zap.Int("attempts", result.Attempts),
		zap.Int("tokens", result.TokensUsed),
		zap.Int("citations", len(result.Citations)),
		zap.Int64("duration_ms", result.DurationMs))
	o.recordEvent(ctx, run.RunID, domain.EventTypePhaseCompleted, map[string]interface{}{
		"phase":       p.Code,
		"status":      result.Status,
		"attempts":    result.Attempts,
		"tokens":      result.TokensUsed,
		"citations":   len(result.Citations),
		"duration_ms": result.DurationMs,
	})
	return nil
}

// executePhase fills result and returns the phase citations.
func (o *Orchestrator) executePhase(ctx context.Context, run *domain.Run, p artifact.Phase, result *domain.PhaseResult) ([]domain.Citation, error) {
	s, err := o.schemas.Get(p.SchemaName())
	if err != nil {
		return nil, err
	}
	user, err := o.phaseUserPrompt(ctx, run, p, s)
	if err != nil {
		return nil, err
	}

	out, err := o.callConforming(ctx, run.RunID, p.Code, s, phaseSystemPrompt(run, p), user)
	result.Attempts = out.attempts
	result.TokensUsed = out.tokens
	if err != nil {
		return nil, err
	}

	result.Status = domain.PhaseStatusSucceeded
	if out.repaired {
		result.Status = domain.PhaseStatusRepaired
	}
	result.Warnings = warningStrings(out.warnings)
	result.Payload = mustJSON(out.payload)

	if _, err := o.artifacts.Save(ctx, run.RunID, p.Logical, out.payload); err != nil {
		return nil, fmt.Errorf("save artifact %s: %w", p.Logical, err)
	}
	o.recordEvent(ctx, run.RunID, domain.EventTypeArtifactSaved, map[string]interface{}{
		"phase":   p.Code,
		"logical": p.Logical,
		"type":    p.Type,
	})
	return citation.Extract(out.payload), nil
}
