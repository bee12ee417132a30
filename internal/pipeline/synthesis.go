package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/artifact"
	"github.com/Nitesh802/customerintel-sub008/internal/citation"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

const synthesisSchema = "synthesis"

// synthesize drafts the cross-phase narrative and renders the report
// artifacts from it.
func (o *Orchestrator) synthesize(ctx context.Context, run *domain.Run, cites []domain.Citation) error {
	start := time.Now()
	s, err := o.schemas.Get(synthesisSchema)
	if err != nil {
		return err
	}
	system, user, err := o.synthesisPrompts(ctx, run, cites, s)
	if err != nil {
		return err
	}

	result := &domain.PhaseResult{RunID: run.RunID, Phase: artifact.PhaseSynthesis, Citations: []domain.Citation{}}
	out, err := o.callConforming(ctx, run.RunID, artifact.PhaseSynthesis, s, system, user)
	result.Attempts, result.TokensUsed = out.attempts, out.tokens
	if err != nil {
		result.Status = domain.PhaseStatusFailed
		result.Error = domain.TruncateMessage(err.Error(), domain.MaxErrorMessageLen)
		result.DurationMs = elapsedMs(start)
		if serr := o.store.SavePhaseResult(ctx, result); serr != nil {
			o.logger.Error("failed to save synthesis result", zap.Error(serr))
		}
		return &domain.PhaseError{
			Phase:   artifact.PhaseSynthesis,
			RunID:   run.RunID,
			Message: "synthesis draft did not satisfy its contract",
			Context: map[string]any{"attempts": out.attempts},
			Err:     err,
		}
	}

	draft := out.payload
	if _, err := o.artifacts.Save(ctx, run.RunID, artifact.LogicalSynthesis, draft); err != nil {
		return fmt.Errorf("save synthesis draft: %w", err)
	}

	html, err := o.renderHTML(draft)
	if err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	reports := []struct {
		logical string
		data    map[string]any
	}{
		{artifact.LogicalHTMLReport, html},
		{artifact.LogicalJSONReport, o.jsonReport(ctx, run, draft, cites)},
		{artifact.LogicalVoiceReport, voiceReport(run, draft)},
	}
	for _, r := range reports {
		if _, err := o.artifacts.Save(ctx, run.RunID, r.logical, r.data); err != nil {
			return fmt.Errorf("save %s: %w", r.logical, err)
		}
		o.recordEvent(ctx, run.RunID, domain.EventTypeArtifactSaved, map[string]interface{}{
			"phase":   artifact.PhaseSynthesis,
			"logical": r.logical,
		})
	}

	result.Status = domain.PhaseStatusSucceeded
	if out.repaired {
		result.Status = domain.PhaseStatusRepaired
	}
	result.Warnings = warningStrings(out.warnings)
	result.Payload = mustJSON(draft)
	result.Citations = citation.Extract(draft)
	result.DurationMs = elapsedMs(start)
	if err := o.store.SavePhaseResult(ctx, result); err != nil {
		return fmt.Errorf("save synthesis result: %w", err)
	}
	return nil
}

// reportMarkdown lays the draft out as one markdown document.
func reportMarkdown(draft map[string]any) string {
	var b strings.Builder
	b.WriteString("## Executive summary\n\n")
	b.WriteString(stringField(draft, "executive_summary"))
	b.WriteString("\n\n## Key findings\n\n")
	for _, f := range stringList(draft["key_findings"]) {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	if recs := stringList(draft["recommendations"]); len(recs) > 0 {
		b.WriteString("\n## Recommendations\n\n")
		for i, r := range recs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
	}
	if narrative := stringField(draft, "narrative_markdown"); narrative != "" {
		b.WriteString("\n## Analysis\n\n")
		b.WriteString(narrative)
		b.WriteString("\n")
	}
	return b.String()
}

func (o *Orchestrator) renderHTML(draft map[string]any) (map[string]any, error) {
	md := reportMarkdown(draft)
	var buf bytes.Buffer
	if err := o.markdown.Convert([]byte(md), &buf); err != nil {
		return nil, err
	}
	return map[string]any{
		"html":     buf.String(),
		"markdown": md,
	}, nil
}

func (o *Orchestrator) jsonReport(ctx context.Context, run *domain.Run, draft map[string]any, cites []domain.Citation) map[string]any {
	phases := make(map[string]any)
	for _, p := range artifact.Phases() {
		data, ok, err := o.artifacts.LoadOptional(ctx, run.RunID, p.Logical)
		if err != nil || !ok {
			continue
		}
		phases[p.Code] = map[string]any{
			"title":      p.Title,
			"summary":    data["summary"],
			"confidence": data["confidence"],
		}
	}
	return map[string]any{
		"source_company":    run.SourceCompany,
		"target_company":    run.TargetCompany,
		"executive_summary": draft["executive_summary"],
		"key_findings":      draft["key_findings"],
		"recommendations":   draft["recommendations"],
		"confidence":        draft["confidence"],
		"phases":            phases,
		"citations":         citation.ToAny(cites),
	}
}

var markdownNoise = regexp.MustCompile("[*_`#>\\[\\]]+")

// voiceReport is a plain spoken-word rendition of the draft.
func voiceReport(run *domain.Run, draft map[string]any) map[string]any {
	segments := []any{
		fmt.Sprintf("Intelligence briefing for %s.", companies(run)),
		plain(stringField(draft, "executive_summary")),
	}
	for i, f := range stringList(draft["key_findings"]) {
		segments = append(segments, fmt.Sprintf("Finding %d. %s", i+1, plain(f)))
	}
	for i, r := range stringList(draft["recommendations"]) {
		segments = append(segments, fmt.Sprintf("Recommendation %d. %s", i+1, plain(r)))
	}

	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.(string)
	}
	script := strings.Join(parts, " ")
	return map[string]any{
		"script":     script,
		"segments":   segments,
		"word_count": len(strings.Fields(script)),
	}
}

func plain(s string) string {
	return strings.Join(strings.Fields(markdownNoise.ReplaceAllString(s, "")), " ")
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
