package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Nitesh802/customerintel-sub008/internal/citation"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// StructureVersion tags the internal structure carried by every bundle.
const StructureVersion = "v15"

// BundleInput is the non-artifact state the bundle builder reads.
type BundleInput struct {
	RunID        string
	PhaseResults []domain.PhaseResult
	Diversity    *domain.DiversityReport
}

// subReports lists the rendered sections of a bundle. Missing ones default
// to an empty object.
var subReports = []string{
	LogicalHTMLReport,
	LogicalJSONReport,
	LogicalVoiceReport,
	LogicalQAReport,
	LogicalCoherenceReport,
	LogicalPatternAlignment,
}

// BuildFinalBundle assembles a field-complete bundle from whatever artifacts
// exist for the run.
func (a *Adapter) BuildFinalBundle(ctx context.Context, in BundleInput) (*domain.SynthesisBundle, error) {
	arts, err := a.LoadAll(ctx, in.RunID)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}

	reports := make(map[string]json.RawMessage, len(subReports))
	for _, name := range subReports {
		data, ok := arts[name]
		if !ok {
			reports[name] = json.RawMessage(`{}`)
			continue
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		reports[name] = raw
	}

	cites := collectCitations(arts)

	structure, err := json.Marshal(buildStructure(in, arts))
	if err != nil {
		return nil, fmt.Errorf("marshal structure: %w", err)
	}
	builtAt := a.now().UTC()
	legacy, err := json.Marshal(buildLegacy(in.RunID, arts, cites, builtAt))
	if err != nil {
		return nil, fmt.Errorf("marshal legacy record: %w", err)
	}

	return &domain.SynthesisBundle{
		RunID:                  in.RunID,
		HTMLReport:             reports[LogicalHTMLReport],
		JSONReport:             reports[LogicalJSONReport],
		VoiceReport:            reports[LogicalVoiceReport],
		QAReport:               reports[LogicalQAReport],
		CoherenceReport:        reports[LogicalCoherenceReport],
		PatternAlignmentReport: reports[LogicalPatternAlignment],
		Citations:              cites,
		V15Structure:           structure,
		Legacy:                 legacy,
		CreatedAt:              builtAt,
	}, nil
}

// collectCitations gathers citations in protocol order, first URL wins.
func collectCitations(arts map[string]map[string]any) []domain.Citation {
	seen := make(map[string]bool)
	out := []domain.Citation{}
	var names []string
	for _, p := range mustLoad().phases {
		names = append(names, p.Logical)
	}
	for _, logical := range append(names, LogicalSynthesis) {
		data, ok := arts[logical]
		if !ok {
			continue
		}
		for _, c := range citation.Normalize(data["citations"]) {
			key := c.URL
			if key == "" {
				key = c.Domain
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}
	return out
}

func buildStructure(in BundleInput, arts map[string]map[string]any) map[string]any {
	results := make(map[string]domain.PhaseResult, len(in.PhaseResults))
	for _, r := range in.PhaseResults {
		results[r.Phase] = r
	}

	phases := make([]any, 0, len(mustLoad().phases))
	for _, p := range mustLoad().phases {
		entry := map[string]any{
			"code":    p.Code,
			"title":   p.Title,
			"logical": p.Logical,
			"present": arts[p.Logical] != nil,
			"status":  "missing",
		}
		if r, ok := results[p.Code]; ok {
			entry["status"] = string(r.Status)
			entry["attempts"] = r.Attempts
			entry["warnings"] = len(r.Warnings)
		}
		phases = append(phases, entry)
	}

	qa := map[string]any{"score": 0.0, "grade": "", "warnings": []any{}}
	if report, ok := arts[LogicalQAReport]; ok {
		for _, k := range []string{"score", "grade", "warnings"} {
			if v, ok := report[k]; ok {
				qa[k] = v
			}
		}
	}

	out := map[string]any{
		"version": StructureVersion,
		"run_id":  in.RunID,
		"phases":  phases,
		"qa":      qa,
	}
	if in.Diversity != nil {
		out["diversity"] = map[string]any{
			"status":              in.Diversity.Status,
			"synthesis_clearance": in.Diversity.SynthesisClearance,
			"diversity_score":     in.Diversity.Metrics.DiversityScore,
			"unique_domains":      in.Diversity.Metrics.UniqueDomains,
		}
	}
	if draft, ok := arts[LogicalSynthesis]; ok {
		out["synthesis"] = map[string]any{
			"executive_summary": draft["executive_summary"],
			"key_findings":      draft["key_findings"],
			"confidence":        draft["confidence"],
		}
	}
	return out
}

// buildLegacy produces the record shape older viewers read: phase outputs
// keyed by their physical names and the report as flat fields.
func buildLegacy(runID string, arts map[string]map[string]any, cites []domain.Citation, builtAt time.Time) map[string]any {
	nb := make(map[string]any)
	for _, p := range mustLoad().phases {
		if data, ok := arts[p.Logical]; ok {
			nb[p.Type] = data
		}
	}
	html := ""
	if report, ok := arts[LogicalHTMLReport]; ok {
		html, _ = report["html"].(string)
	}
	var reportJSON any = map[string]any{}
	if report, ok := arts[LogicalJSONReport]; ok {
		reportJSON = report
	}
	var qaScores any = map[string]any{}
	if report, ok := arts[LogicalQAReport]; ok {
		qaScores = report
	}
	return map[string]any{
		"run_id":      runID,
		"report_html": html,
		"report_json": reportJSON,
		"qa_scores":   qaScores,
		"citations":   citation.ToAny(cites),
		"nb":          nb,
		"built_at":    builtAt.Format(time.RFC3339),
	}
}
