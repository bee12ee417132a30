// Package domain defines the core domain models for the intelligence pipeline.
package domain

import "fmt"

// RunStatus represents the externally observable status of a run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	// RunStatusBlocked means the diversity gate refused synthesis. The run can be resumed.
	RunStatusBlocked RunStatus = "blocked"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// PipelineState is the orchestrator state machine position.
type PipelineState string

const (
	StatePending        PipelineState = "pending"
	StateDiversityGate  PipelineState = "diversity_gate"
	StateSynthesisDraft PipelineState = "synthesis_draft"
	StateQAScore        PipelineState = "qa_score"
	StateFinalize       PipelineState = "finalize"
	StateCompleted      PipelineState = "completed"
	StateFailed         PipelineState = "failed"
	StateBlocked        PipelineState = "blocked"
)

// PhaseState returns the state for protocol step k (1-based).
func PhaseState(k int) PipelineState {
	return PipelineState(fmt.Sprintf("phase_%d", k))
}

// PhaseStatus is the outcome of a single protocol step.
type PhaseStatus string

const (
	PhaseStatusSucceeded PhaseStatus = "succeeded"
	PhaseStatusRepaired  PhaseStatus = "repaired"
	PhaseStatusFailed    PhaseStatus = "failed"
)

// EventType represents the type of a run telemetry event.
type EventType string

const (
	EventTypeRunStarted      EventType = "run_started"
	EventTypeRunCompleted    EventType = "run_completed"
	EventTypeRunFailed       EventType = "run_failed"
	EventTypeRunCancelled    EventType = "run_cancelled"
	EventTypeRunBlocked      EventType = "run_blocked"
	EventTypeRunResumed      EventType = "run_resumed"
	EventTypeStateChanged    EventType = "state_changed"
	EventTypePhaseStarted    EventType = "phase_started"
	EventTypePhaseCompleted  EventType = "phase_completed"
	EventTypePhaseFailed     EventType = "phase_failed"
	EventTypeSchemaRepaired  EventType = "schema_repaired"
	EventTypeLLMCallDone     EventType = "llm_call_done"
	EventTypeArtifactSaved   EventType = "artifact_saved"
	EventTypeDiversityResult EventType = "diversity_evaluated"
	EventTypePolicyDecision  EventType = "policy_decision"
	EventTypeBundleBuilt     EventType = "bundle_built"
)
