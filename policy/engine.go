package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Phase failure actions.
const (
	ActionContinue = "continue"
	ActionStop     = "stop"
)

// Engine is the OPA policy engine for run-level pipeline decisions.
type Engine struct {
	clearance rego.PreparedEvalQuery
	failure   rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content. The
// module must define data.pipeline.synthesis_clearance and
// data.pipeline.phase_failure_action.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	clearance, err := prepare(ctx, "data.pipeline.synthesis_clearance", policyContent)
	if err != nil {
		return nil, err
	}
	failure, err := prepare(ctx, "data.pipeline.phase_failure_action", policyContent)
	if err != nil {
		return nil, err
	}
	return &Engine{clearance: clearance, failure: failure}, nil
}

// NewDefaultEngine creates an engine from DefaultPolicy.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	return NewEngine(ctx, DefaultPolicy)
}

func prepare(ctx context.Context, query, module string) (rego.PreparedEvalQuery, error) {
	q, err := rego.New(
		rego.Query(query),
		rego.Module("pipeline.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return q, nil
}

// SynthesisClearance decides CLEARED, CONDITIONAL or BLOCKED for a diversity
// verdict. Returns the decision and the reason the policy gave.
func (e *Engine) SynthesisClearance(ctx context.Context, status string, criticalFailures int, strict bool) (string, string, error) {
	input := map[string]interface{}{
		"status":            status,
		"critical_failures": criticalFailures,
		"strict":            strict,
	}
	return e.evalDecision(ctx, e.clearance, input, "BLOCKED")
}

// PhaseFailureAction decides whether a run continues after a failed phase.
func (e *Engine) PhaseFailureAction(ctx context.Context, phase string, failedPhases, maxFailed int, strict bool) (string, string, error) {
	input := map[string]interface{}{
		"phase":             phase,
		"failed_phases":     failedPhases,
		"max_failed_phases": maxFailed,
		"strict":            strict,
	}
	return e.evalDecision(ctx, e.failure, input, ActionContinue)
}

// evalDecision expects the rule to produce {decision, reason}. A bare string
// is accepted as the decision.
func (e *Engine) evalDecision(ctx context.Context, q rego.PreparedEvalQuery, input interface{}, fallback string) (string, string, error) {
	results, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return fallback, "no matching rule", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]interface{}:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			return fallback, "policy returned no decision", nil
		}
		return decision, reason, nil
	}
	return fallback, "unexpected return type", nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package pipeline

default synthesis_clearance = {"decision": "CLEARED", "reason": "diversity thresholds met"}

synthesis_clearance = {"decision": "BLOCKED", "reason": "critical diversity failure"} {
	input.status == "CRITICAL"
}

synthesis_clearance = {"decision": "BLOCKED", "reason": "strict mode requires PASS"} {
	input.status == "NEEDS_REBALANCE"
	input.strict
}

synthesis_clearance = {"decision": "CONDITIONAL", "reason": "evidence needs rebalancing"} {
	input.status == "NEEDS_REBALANCE"
	not input.strict
}

default phase_failure_action = {"decision": "continue", "reason": "best-effort completeness"}

phase_failure_action = {"decision": "stop", "reason": "strict mode"} {
	input.strict
}

phase_failure_action = {"decision": "stop", "reason": "failed phase limit reached"} {
	not input.strict
	input.max_failed_phases > 0
	input.failed_phases >= input.max_failed_phases
}
`
