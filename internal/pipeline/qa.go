package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/Nitesh802/customerintel-sub008/internal/artifact"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// Phases whose keywords are compared by the pattern alignment report.
const (
	alignmentLeft  = "strategic_priorities"
	alignmentRight = "opportunity_map"
)

// score writes the deterministic QA, coherence and pattern alignment
// reports. None of them calls the model.
func (o *Orchestrator) score(ctx context.Context, run *domain.Run, report *domain.DiversityReport) error {
	results, err := o.store.ListPhaseResults(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("list phase results: %w", err)
	}
	arts, err := o.artifacts.LoadAll(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}

	confidences := phaseConfidences(arts)
	reports := map[string]map[string]any{
		artifact.LogicalQAReport:        qaReport(results, confidences, arts, report),
		artifact.LogicalCoherenceReport: coherenceReport(confidences),
	}
	if left, ok := arts[alignmentLeft]; ok {
		if right, ok := arts[alignmentRight]; ok {
			reports[artifact.LogicalPatternAlignment] = patternAlignment(left, right)
		}
	}

	for _, name := range []string{artifact.LogicalQAReport, artifact.LogicalCoherenceReport, artifact.LogicalPatternAlignment} {
		data, ok := reports[name]
		if !ok {
			continue
		}
		if _, err := o.artifacts.Save(ctx, run.RunID, name, data); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		o.recordEvent(ctx, run.RunID, domain.EventTypeArtifactSaved, map[string]interface{}{
			"phase":   artifact.PhaseQA,
			"logical": name,
		})
	}
	return nil
}

// phaseConfidences maps phase code to the confidence of its artifact.
func phaseConfidences(arts map[string]map[string]any) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range artifact.Phases() {
		data, ok := arts[p.Logical]
		if !ok {
			continue
		}
		if c, ok := data["confidence"].(float64); ok {
			out[p.Code] = c
		}
	}
	return out
}

// qaReport scores the run 0..100: half phase completion, a quarter mean
// phase confidence, a quarter diversity score.
func qaReport(results []domain.PhaseResult, confidences map[string]float64, arts map[string]map[string]any, report *domain.DiversityReport) map[string]any {
	byPhase := make(map[string]domain.PhaseResult, len(results))
	for _, r := range results {
		byPhase[r.Phase] = r
	}

	phases := artifact.Phases()
	warnings := []any{}
	failed := []any{}
	done := 0
	for _, p := range phases {
		r, ok := byPhase[p.Code]
		switch {
		case !ok:
			failed = append(failed, p.Code)
			warnings = append(warnings, fmt.Sprintf("%s was not executed", p.Code))
		case r.Status == domain.PhaseStatusFailed:
			failed = append(failed, p.Code)
			warnings = append(warnings, fmt.Sprintf("%s failed: %s", p.Code, r.Error))
		case r.Status == domain.PhaseStatusRepaired:
			done++
			warnings = append(warnings, fmt.Sprintf("%s output was repaired (%d changes)", p.Code, len(r.Warnings)))
		default:
			done++
		}
	}
	completion := float64(done) / float64(len(phases))

	avgConfidence := 0.0
	if len(confidences) > 0 {
		for _, c := range confidences {
			avgConfidence += c
		}
		avgConfidence /= float64(len(confidences))
	}

	diversityScore := 0.0
	if report != nil {
		diversityScore = report.Metrics.DiversityScore
		if report.SynthesisClearance != domain.ClearanceCleared {
			warnings = append(warnings, fmt.Sprintf("synthesis clearance %s: %s", report.SynthesisClearance, report.ClearanceReason))
		}
	}
	if _, ok := arts[artifact.LogicalSynthesis]; !ok {
		warnings = append(warnings, "synthesis draft missing")
	}

	score := math.Round((50*completion+25*avgConfidence+25*diversityScore)*10) / 10
	return map[string]any{
		"score":              score,
		"grade":              grade(score),
		"warnings":           warnings,
		"phase_completion":   round2(completion),
		"average_confidence": round2(avgConfidence),
		"diversity_score":    diversityScore,
		"failed_phases":      failed,
	}
}

func grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	}
	return "F"
}

// coherenceReport measures how consistent the phases are about their own
// confidence. A phase more than 0.3 away from the mean is an outlier.
func coherenceReport(confidences map[string]float64) map[string]any {
	codes := make([]string, 0, len(confidences))
	for code := range confidences {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	perPhase := make(map[string]any, len(codes))
	if len(codes) == 0 {
		return map[string]any{
			"phases_scored": 0,
			"coherent":      false,
			"per_phase":     perPhase,
			"outliers":      []any{},
		}
	}

	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, code := range codes {
		c := confidences[code]
		perPhase[code] = c
		lo, hi, sum = math.Min(lo, c), math.Max(hi, c), sum+c
	}
	mean := sum / float64(len(codes))
	variance := 0.0
	outliers := []any{}
	for _, code := range codes {
		d := confidences[code] - mean
		variance += d * d
		if math.Abs(d) > 0.3 {
			outliers = append(outliers, code)
		}
	}
	spread := hi - lo
	return map[string]any{
		"phases_scored":   len(codes),
		"mean_confidence": round2(mean),
		"min_confidence":  lo,
		"max_confidence":  hi,
		"spread":          round2(spread),
		"stddev":          round2(math.Sqrt(variance / float64(len(codes)))),
		"coherent":        spread <= 0.5 && len(outliers) == 0,
		"per_phase":       perPhase,
		"outliers":        outliers,
	}
}

var stopwords = map[string]bool{
	"about": true, "after": true, "also": true, "been": true, "between": true,
	"from": true, "have": true, "into": true, "more": true, "over": true,
	"should": true, "such": true, "than": true, "that": true, "their": true,
	"there": true, "these": true, "they": true, "this": true, "through": true,
	"where": true, "which": true, "while": true, "will": true, "with": true,
	"would": true, "https": true, "http": true,
}

// keywords collects distinct lowercase words of four or more letters from
// every string in v, skipping citations and adapter metadata.
func keywords(v any, into map[string]bool) {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if k == "citations" || k == "sources" || k == "domain_analysis" || strings.HasPrefix(k, "_") {
				continue
			}
			keywords(child, into)
		}
	case []any:
		for _, child := range node {
			keywords(child, into)
		}
	case string:
		for _, w := range strings.FieldsFunc(strings.ToLower(node), func(r rune) bool { return !unicode.IsLetter(r) }) {
			if len(w) >= 4 && !stopwords[w] {
				into[w] = true
			}
		}
	}
}

// patternAlignment reports the Jaccard overlap of the keyword sets of
// strategic priorities and the opportunity map.
func patternAlignment(left, right map[string]any) map[string]any {
	a, b := make(map[string]bool), make(map[string]bool)
	keywords(left, a)
	keywords(right, b)

	shared := []string{}
	for w := range a {
		if b[w] {
			shared = append(shared, w)
		}
	}
	sort.Strings(shared)
	union := len(a) + len(b) - len(shared)

	jaccard := 0.0
	if union > 0 {
		jaccard = float64(len(shared)) / float64(union)
	}
	top := shared
	if len(top) > 20 {
		top = top[:20]
	}
	sharedAny := make([]any, len(top))
	for i, w := range top {
		sharedAny[i] = w
	}
	return map[string]any{
		"left":            alignmentLeft,
		"right":           alignmentRight,
		"alignment_score": round2(jaccard),
		"shared_keywords": sharedAny,
		"shared_count":    len(shared),
		"aligned":         jaccard >= 0.1,
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
