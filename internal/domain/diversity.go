package domain

import "time"

// DiversityStatus is the verdict of the evidence diversity gate.
type DiversityStatus string

const (
	DiversityPass           DiversityStatus = "PASS"
	DiversityNeedsRebalance DiversityStatus = "NEEDS_REBALANCE"
	DiversityCritical       DiversityStatus = "CRITICAL"
)

// Clearance decides whether synthesis may proceed.
type Clearance string

const (
	ClearanceCleared     Clearance = "CLEARED"
	ClearanceConditional Clearance = "CONDITIONAL"
	ClearanceBlocked     Clearance = "BLOCKED"
)

// TrendDirection compares a run against the previous completed run.
type TrendDirection string

const (
	TrendImproving TrendDirection = "IMPROVING"
	TrendMixed     TrendDirection = "MIXED"
	TrendDeclining TrendDirection = "DECLINING"
)

// DiversityMetrics are aggregate citation-source statistics for a run.
type DiversityMetrics struct {
	DiversityScore       float64        `json:"diversity_score"`
	UniqueDomains        int            `json:"unique_domains"`
	MaxConcentration     float64        `json:"max_concentration"`
	TopDomain            string         `json:"top_domain,omitempty"`
	ConfidenceRatio      float64        `json:"confidence_ratio"`
	TotalCitations       int            `json:"total_citations"`
	DomainCounts         map[string]int `json:"domain_counts"`
	CategoryDistribution map[string]int `json:"category_distribution"`
}

// DiversityCheck is the result of comparing one metric with its threshold.
type DiversityCheck struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
	Critical  bool    `json:"critical"`
}

// DiversityTrend reports the direction against the previous completed run.
type DiversityTrend struct {
	PreviousRunID      string         `json:"previous_run_id"`
	Direction          TrendDirection `json:"direction"`
	ScoreDelta         float64        `json:"score_delta"`
	DomainDelta        int            `json:"domain_delta"`
	ConcentrationDelta float64        `json:"concentration_delta"`
	ConfidenceDelta    float64        `json:"confidence_delta"`
}

// RebalanceResult reports the effect of a rebalancing pass.
type RebalanceResult struct {
	Applied        bool    `json:"applied"`
	CitationsMoved int     `json:"citations_moved"`
	ScoreBefore    float64 `json:"score_before"`
	ScoreAfter     float64 `json:"score_after"`
	ScoreDelta     float64 `json:"score_delta"`
}

// DiversityReport is the cached audit record of one gate evaluation.
type DiversityReport struct {
	RunID              string           `json:"run_id"`
	Metrics            DiversityMetrics `json:"metrics"`
	Checks             []DiversityCheck `json:"checks"`
	Status             DiversityStatus  `json:"status"`
	CriticalFailures   []string         `json:"critical_failures"`
	SynthesisClearance Clearance        `json:"synthesis_clearance"`
	ClearanceReason    string           `json:"clearance_reason,omitempty"`
	Trend              *DiversityTrend  `json:"trend,omitempty"`
	Rebalance          *RebalanceResult `json:"rebalance,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}
