package artifact

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

func TestBuildFinalBundleDefaultsMissingSubReports(t *testing.T) {
	ctx := context.Background()
	a, _ := newAdapter(t)

	_, err := a.Save(ctx, "r1", "source_profile", map[string]any{
		"summary":   "acme",
		"citations": []any{"https://a.com/1", "https://b.org/2"},
	})
	require.NoError(t, err)
	_, err = a.Save(ctx, "r1", "target_profile", map[string]any{
		"summary":   "globex",
		"citations": []any{"https://a.com/1", "https://c.net/3"},
	})
	require.NoError(t, err)
	_, err = a.Save(ctx, "r1", LogicalHTMLReport, map[string]any{"html": "<p>hi</p>"})
	require.NoError(t, err)

	bundle, err := a.BuildFinalBundle(ctx, BundleInput{
		RunID:        "r1",
		PhaseResults: []domain.PhaseResult{{RunID: "r1", Phase: "NB1", Status: domain.PhaseStatusSucceeded, Attempts: 1}},
		Diversity:    &domain.DiversityReport{Status: domain.DiversityPass, SynthesisClearance: domain.ClearanceCleared},
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{}`, string(bundle.JSONReport))
	assert.JSONEq(t, `{}`, string(bundle.VoiceReport))
	assert.JSONEq(t, `{}`, string(bundle.QAReport))
	assert.JSONEq(t, `{}`, string(bundle.CoherenceReport))
	assert.JSONEq(t, `{}`, string(bundle.PatternAlignmentReport))

	var html map[string]any
	require.NoError(t, json.Unmarshal(bundle.HTMLReport, &html))
	assert.Equal(t, "<p>hi</p>", html["html"])

	require.Len(t, bundle.Citations, 3)
	assert.Equal(t, "a.com", bundle.Citations[0].Domain)

	var structure map[string]any
	require.NoError(t, json.Unmarshal(bundle.V15Structure, &structure))
	assert.Equal(t, StructureVersion, structure["version"])
	phases := structure["phases"].([]any)
	require.Len(t, phases, 15)
	assert.Equal(t, "succeeded", phases[0].(map[string]any)["status"])
	assert.Equal(t, "missing", phases[2].(map[string]any)["status"])
	assert.Equal(t, "PASS", structure["diversity"].(map[string]any)["status"])

	var legacy map[string]any
	require.NoError(t, json.Unmarshal(bundle.Legacy, &legacy))
	assert.Equal(t, "<p>hi</p>", legacy["report_html"])
	nb := legacy["nb"].(map[string]any)
	assert.Contains(t, nb, "nb1_source_profile")
	assert.Contains(t, nb, "nb2_target_profile")
}

func TestBuildFinalBundleWithNoArtifacts(t *testing.T) {
	a, _ := newAdapter(t)

	bundle, err := a.BuildFinalBundle(context.Background(), BundleInput{RunID: "r1"})
	require.NoError(t, err)
	for _, raw := range []json.RawMessage{bundle.HTMLReport, bundle.JSONReport, bundle.VoiceReport, bundle.QAReport, bundle.CoherenceReport, bundle.PatternAlignmentReport} {
		assert.JSONEq(t, `{}`, string(raw))
	}
	assert.Empty(t, bundle.Citations)
	assert.NotEmpty(t, bundle.V15Structure)
	assert.NotEmpty(t, bundle.Legacy)
}
