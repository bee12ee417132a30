package pipeline

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Nitesh802/customerintel-sub008/internal/artifact"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

func TestChunkContextOrdersAndBudgets(t *testing.T) {
	chunks := []domain.Chunk{
		{Text: "second", SourceID: "a", StartOffset: 10, EndOffset: 16},
		{Text: "other source", SourceID: "b", StartOffset: 0, EndOffset: 12},
		{Text: "first", SourceID: "a", StartOffset: 0, EndOffset: 5},
	}

	got := chunkContext(chunks, 0)
	first := strings.Index(got, "first")
	second := strings.Index(got, "second")
	other := strings.Index(got, "other source")
	if !(first < second && second < other) {
		t.Fatalf("chunks out of order:\n%s", got)
	}

	// room for the first chunk only
	small := chunkContext(chunks, len("[a 0-5]\nfirst\n")+3)
	if !strings.Contains(small, "first") || strings.Contains(small, "second") {
		t.Fatalf("budget not applied:\n%s", small)
	}

	truncated := chunkContext([]domain.Chunk{{Text: strings.Repeat("x", 100), SourceID: "a", EndOffset: 100}}, 30)
	if len(truncated) > 31 {
		t.Fatalf("oversized first chunk not truncated: %d bytes", len(truncated))
	}

	if got := chunkContext(nil, 100); !strings.Contains(got, "no source material") {
		t.Fatalf("unexpected empty context %q", got)
	}
}

func TestTruncationKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("é", 50) // two bytes each
	header := "[a 0-100]\n"
	for budget := len(header) + 2; budget < len(header)+12; budget++ {
		got := chunkContext([]domain.Chunk{{Text: text, SourceID: "a", EndOffset: 100}}, budget)
		if !utf8.ValidString(got) {
			t.Fatalf("budget %d produced invalid UTF-8: %q", budget, got)
		}
	}

	var b strings.Builder
	writeArtifacts(&b, map[string]map[string]any{"source_profile": {"summary": strings.Repeat("日本", 20)}}, 17)
	if !utf8.ValidString(b.String()) {
		t.Fatalf("artifact excerpt is invalid UTF-8: %q", b.String())
	}
	if !strings.HasSuffix(strings.TrimSpace(b.String()), "...") {
		t.Fatalf("expected truncation marker, got %q", b.String())
	}

	if got := truncateBytes("aé", 2); got != "a" {
		t.Fatalf("truncateBytes split a rune: %q", got)
	}
}

func TestPhaseUserPromptRequiresUpstream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	f.createRun(t, "run_prompt")
	run := f.run(t, "run_prompt")

	nb13, ok := artifact.PhaseByCode("NB13")
	if !ok {
		t.Fatalf("NB13 missing from catalog")
	}
	s, err := f.schemas.Get(nb13.SchemaName())
	if err != nil {
		t.Fatalf("Get schema: %v", err)
	}

	_, err = f.orch.phaseUserPrompt(ctx, run, nb13, s)
	if domain.KindOf(err) != domain.KindArtifactNotFound {
		t.Fatalf("expected artifact not found, got %v", err)
	}

	if _, err := f.orch.Artifacts().Save(ctx, run.RunID, "source_profile", map[string]any{"summary": "acme profile", "confidence": 0.8, "citations": []any{}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	prompt, err := f.orch.phaseUserPrompt(ctx, run, nb13, s)
	if err != nil {
		t.Fatalf("phaseUserPrompt: %v", err)
	}
	for _, want := range []string{"## Source material", "Acme expanded", "### source_profile", "acme profile", "## Output schema"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestPhaseSystemPromptNamesStep(t *testing.T) {
	p, _ := artifact.PhaseByCode("NB1")
	got := phaseSystemPrompt(&domain.Run{SourceCompany: "Acme"}, p)
	if !strings.Contains(got, "Step NB1:") || !strings.Contains(got, "Subject: Acme.") {
		t.Fatalf("unexpected system prompt:\n%s", got)
	}
}
