package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Nitesh802/customerintel-sub008/internal/artifact"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/schema"
)

const systemPreamble = "You are a research analyst executing one step of a fixed intelligence protocol. " +
	"Work only from the supplied source material and upstream findings. " +
	"Respond with a single JSON object that satisfies the output schema. Do not add commentary."

func companies(run *domain.Run) string {
	if run.TargetCompany == "" {
		return run.SourceCompany
	}
	return fmt.Sprintf("%s (source) and %s (target)", run.SourceCompany, run.TargetCompany)
}

// phaseSystemPrompt names the step and carries its instructions.
func phaseSystemPrompt(run *domain.Run, p artifact.Phase) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	fmt.Fprintf(&b, "\n\nStep %s: %s.\nSubject: %s.\n", p.Code, p.Title, companies(run))
	if p.Instructions != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(p.Instructions))
		b.WriteString("\n")
	}
	return b.String()
}

// phaseUserPrompt assembles source chunks, upstream artifacts and the output
// schema. A missing required upstream artifact is an error.
func (o *Orchestrator) phaseUserPrompt(ctx context.Context, run *domain.Run, p artifact.Phase, s *schema.Schema) (string, error) {
	chunks, err := o.store.ListChunks(ctx, run.RunID)
	if err != nil {
		return "", fmt.Errorf("list chunks: %w", err)
	}

	var b strings.Builder
	b.WriteString("## Source material\n")
	b.WriteString(chunkContext(chunks, o.cfg.Pipeline.ContextCharBudget))

	upstream := make(map[string]map[string]any)
	for _, name := range p.Requires {
		data, err := o.artifacts.Load(ctx, run.RunID, name)
		if err != nil {
			return "", err
		}
		upstream[name] = data
	}
	for _, name := range p.Optional {
		data, ok, err := o.artifacts.LoadOptional(ctx, run.RunID, name)
		if err != nil {
			return "", err
		}
		if ok {
			upstream[name] = data
		}
	}
	if len(upstream) > 0 {
		b.WriteString("\n## Upstream findings\n")
		writeArtifacts(&b, upstream, o.cfg.Pipeline.ContextCharBudget/4)
	}

	schemaJSON, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	b.WriteString("\n## Output schema\n")
	b.Write(schemaJSON)
	b.WriteString("\n")
	return b.String(), nil
}

// chunkContext concatenates chunks in source/offset order until budget
// characters are used. A first chunk larger than the budget is truncated.
func chunkContext(chunks []domain.Chunk, budget int) string {
	if len(chunks) == 0 {
		return "(no source material supplied)\n"
	}
	ordered := make([]domain.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SourceID != ordered[j].SourceID {
			return ordered[i].SourceID < ordered[j].SourceID
		}
		return ordered[i].StartOffset < ordered[j].StartOffset
	})

	var b strings.Builder
	used := 0
	for i, c := range ordered {
		header := fmt.Sprintf("[%s %d-%d]\n", c.SourceID, c.StartOffset, c.EndOffset)
		text := c.Text
		cost := len(header) + len(text) + 1
		if budget > 0 && used+cost > budget {
			if i > 0 {
				break
			}
			room := budget - len(header) - 1
			if room <= 0 {
				break
			}
			text = truncateBytes(text, room)
			cost = budget
		}
		b.WriteString(header)
		b.WriteString(text)
		b.WriteString("\n")
		used += cost
	}
	return b.String()
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// writeArtifacts renders artifacts in name order, each cut to perItem bytes.
func writeArtifacts(b *strings.Builder, arts map[string]map[string]any, perItem int) {
	names := make([]string, 0, len(arts))
	for name := range arts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		raw, err := json.Marshal(arts[name])
		if err != nil {
			continue
		}
		text := string(raw)
		if perItem > 0 && len(text) > perItem {
			text = truncateBytes(text, perItem) + "..."
		}
		fmt.Fprintf(b, "### %s\n%s\n", name, text)
	}
}

// synthesisPrompts builds the synthesis request over every phase artifact
// and the gated evidence set.
func (o *Orchestrator) synthesisPrompts(ctx context.Context, run *domain.Run, cites []domain.Citation, s *schema.Schema) (string, string, error) {
	system := systemPreamble + fmt.Sprintf(
		"\n\nStep %s: cross-phase synthesis.\nSubject: %s.\n"+
			"Write an executive summary, the key findings, concrete recommendations and a markdown narrative. "+
			"Cite only from the evidence list.\n", artifact.PhaseSynthesis, companies(run))

	arts := make(map[string]map[string]any)
	for _, p := range artifact.Phases() {
		data, ok, err := o.artifacts.LoadOptional(ctx, run.RunID, p.Logical)
		if err != nil {
			return "", "", err
		}
		if ok {
			arts[p.Logical] = data
		}
	}

	var b strings.Builder
	b.WriteString("## Phase findings\n")
	perItem := 0
	if len(arts) > 0 {
		perItem = o.cfg.Pipeline.ContextCharBudget / len(arts)
	}
	writeArtifacts(&b, arts, perItem)

	b.WriteString("\n## Evidence\n")
	for i, c := range cites {
		if i == 40 {
			fmt.Fprintf(&b, "(%d more)\n", len(cites)-i)
			break
		}
		fmt.Fprintf(&b, "- %s (%s, confidence %.2f)\n", c.URL, c.Domain, c.Confidence)
	}

	schemaJSON, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal schema: %w", err)
	}
	b.WriteString("\n## Output schema\n")
	b.Write(schemaJSON)
	b.WriteString("\n")
	return system, b.String(), nil
}
