package domain

import (
	"encoding/json"
	"time"
)

// Run represents one execution of the research protocol for a company pair.
type Run struct {
	RunID           string        `json:"run_id"`
	SourceCompany   string        `json:"source_company"`
	TargetCompany   string        `json:"target_company,omitempty"`
	Status          RunStatus     `json:"status"`
	State           PipelineState `json:"state"`
	CancelRequested bool          `json:"cancel_requested"`
	TokensUsed      int           `json:"tokens_used"`
	Cost            float64       `json:"cost"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// PhaseResult is the outcome of one protocol step within a run.
type PhaseResult struct {
	RunID      string          `json:"run_id"`
	Phase      string          `json:"phase"`
	Status     PhaseStatus     `json:"status"`
	DurationMs int64           `json:"duration_ms"`
	TokensUsed int             `json:"tokens_used"`
	Attempts   int             `json:"attempts"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Citations  []Citation      `json:"citations"`
	Warnings   []string        `json:"warnings,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Event represents a telemetry event for replay and diagnostics.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CreateRunRequest is the payload for enqueuing a run.
type CreateRunRequest struct {
	SourceCompany string  `json:"source_company"`
	TargetCompany string  `json:"target_company,omitempty"`
	Chunks        []Chunk `json:"chunks,omitempty"`
}

// RunSummary is the short status view returned to callers.
type RunSummary struct {
	RunID  string        `json:"run_id"`
	Status RunStatus     `json:"status"`
	State  PipelineState `json:"state"`
	Error  string        `json:"error,omitempty"`
}

// Summary returns the externally observable part of the run.
func (r *Run) Summary() RunSummary {
	return RunSummary{RunID: r.RunID, Status: r.Status, State: r.State, Error: r.Error}
}
