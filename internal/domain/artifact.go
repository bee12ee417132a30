package domain

import (
	"encoding/json"
	"time"
)

// Artifact is a JSON document scoped to (run, phase, type).
// Only one current artifact exists per key; writes replace it wholesale.
type Artifact struct {
	RunID         string          `json:"run_id"`
	Phase         string          `json:"phase"`
	Type          string          `json:"type"`
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Citation links a claim to its source.
type Citation struct {
	URL        string  `json:"url"`
	Domain     string  `json:"domain"`
	Title      string  `json:"title,omitempty"`
	Type       string  `json:"type"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Citation source categories.
const (
	CategoryNews       = "news"
	CategoryAnalyst    = "analyst"
	CategoryCompany    = "company"
	CategoryRegulatory = "regulatory"
	CategoryIndustry   = "industry"
	CategoryAcademic   = "academic"
)

// Chunk is a segment of source material supplied for a run.
type Chunk struct {
	ChunkID     string `json:"chunk_id,omitempty"`
	RunID       string `json:"run_id,omitempty"`
	Text        string `json:"text"`
	SourceID    string `json:"sourceId"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	Hash        string `json:"hash"`
}

// SynthesisBundle is the final cross-phase assembly for a run.
type SynthesisBundle struct {
	RunID                  string          `json:"run_id"`
	HTMLReport             json.RawMessage `json:"html_report"`
	JSONReport             json.RawMessage `json:"json_report"`
	VoiceReport            json.RawMessage `json:"voice_report"`
	QAReport               json.RawMessage `json:"qa_report"`
	CoherenceReport        json.RawMessage `json:"coherence_report"`
	PatternAlignmentReport json.RawMessage `json:"pattern_alignment_report"`
	Citations              []Citation      `json:"citations"`
	V15Structure           json.RawMessage `json:"v15_structure"`
	Legacy                 json.RawMessage `json:"legacy"`
	CreatedAt              time.Time       `json:"created_at"`
}
