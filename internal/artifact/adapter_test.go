package artifact

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/testutil"
)

func newAdapter(t *testing.T) (*Adapter, Store) {
	t.Helper()
	store := testutil.NewTestStore(t)
	require.NoError(t, store.CreateRun(context.Background(), &domain.Run{RunID: "r1", SourceCompany: "Acme"}))
	return NewAdapter(store, zap.NewNop()), store
}

func TestCatalogAliases(t *testing.T) {
	require.Len(t, Phases(), 15)

	logical, ok := LogicalName("nb4_financial_signals")
	require.True(t, ok)
	assert.Equal(t, "financial_signals", logical)

	logical, ok = LogicalName("Financials")
	require.True(t, ok)
	assert.Equal(t, "financial_signals", logical)

	physical, ok := PhysicalName("risk_regulatory")
	require.True(t, ok)
	assert.Equal(t, "nb11_risk_regulatory", physical)

	phase, ok := PhaseOf("tech_stack")
	require.True(t, ok)
	assert.Equal(t, "NB7", phase)

	phase, ok = PhaseOf(LogicalQAReport)
	require.True(t, ok)
	assert.Equal(t, PhaseQA, phase)

	_, ok = PhaseOf("nonexistent")
	assert.False(t, ok)

	p, ok := PhaseByCode("nb13")
	require.True(t, ok)
	assert.Equal(t, []string{"source_profile"}, p.Requires)
	assert.Equal(t, "nb13", p.SchemaName())
}

func TestAdapterSaveTagsCompatMetadata(t *testing.T) {
	ctx := context.Background()
	a, store := newAdapter(t)

	art, err := a.Save(ctx, "r1", "financial_signals", map[string]any{"summary": "up"})
	require.NoError(t, err)
	assert.Equal(t, "NB4", art.Phase)
	assert.Equal(t, "nb4_financial_signals", art.Type)
	assert.Equal(t, CurrentSchemaVersion, art.SchemaVersion)

	stored, err := store.LoadArtifact(ctx, "r1", "NB4", "nb4_financial_signals")
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(stored.Data, &raw))
	compat, ok := raw[compatKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, AdapterVersion, compat["adapter_version"])
	assert.Equal(t, "financial_signals", compat["logical_name"])
	assert.NotEmpty(t, compat["saved_at"])

	loaded, err := a.Load(ctx, "r1", "financial_signals")
	require.NoError(t, err)
	assert.NotContains(t, loaded, compatKey)
	assert.Equal(t, "up", loaded["summary"])
	assert.Equal(t, []any{}, loaded["signals"])
	assert.Equal(t, 0.0, loaded["confidence"])
}

func TestAdapterLoadNormalizesCitationsAndDerivesDomains(t *testing.T) {
	ctx := context.Background()
	a, _ := newAdapter(t)

	_, err := a.Save(ctx, "r1", "news_timeline", map[string]any{
		"summary":   "s",
		"citations": []any{"https://a.com/x", map[string]any{"url": "https://b.org/y"}, "https://www.a.com/z"},
	})
	require.NoError(t, err)

	loaded, err := a.Load(ctx, "r1", "news_timeline")
	require.NoError(t, err)

	cites := loaded["citations"].([]any)
	require.Len(t, cites, 3)
	first := cites[0].(map[string]any)
	assert.Equal(t, "a.com", first["domain"])
	assert.Equal(t, "web", first["type"])

	analysis := loaded["domain_analysis"].(map[string]any)
	want := map[string]any{
		"unique_domains": 2,
		"frequency":      map[string]any{"a.com": 2, "b.org": 1},
		"top_domain":     "a.com",
		"top_share":      2.0 / 3.0,
	}
	if diff := cmp.Diff(want, analysis); diff != "" {
		t.Fatalf("domain analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestAdapterResolvesLegacyPhysicalNameAndUpgrades(t *testing.T) {
	ctx := context.Background()
	a, store := newAdapter(t)

	// a v1 row written by an older pipeline under a legacy name
	require.NoError(t, store.SaveArtifact(ctx, &domain.Artifact{
		RunID:         "r1",
		Phase:         "NB5",
		Type:          "leadership",
		SchemaVersion: 1,
		Data:          json.RawMessage(`{"summary":"old","confidence":"high","sources":["https://c.net/1"]}`),
	}))

	loaded, err := a.Load(ctx, "r1", "leadership_structure")
	require.NoError(t, err)
	assert.Equal(t, 0.9, loaded["confidence"])
	assert.NotContains(t, loaded, "sources")
	cites := loaded["citations"].([]any)
	require.Len(t, cites, 1)
	assert.Equal(t, "c.net", cites[0].(map[string]any)["domain"])

	all, err := a.LoadAll(ctx, "r1")
	require.NoError(t, err)
	assert.Contains(t, all, "leadership_structure")

	// a current write wins over the legacy row
	_, err = a.Save(ctx, "r1", "leadership_structure", map[string]any{"summary": "new"})
	require.NoError(t, err)
	loaded, err = a.Load(ctx, "r1", "leadership_structure")
	require.NoError(t, err)
	assert.Equal(t, "new", loaded["summary"])
	all, err = a.LoadAll(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "new", all["leadership_structure"]["summary"])
}

func TestAdapterMissingArtifact(t *testing.T) {
	ctx := context.Background()
	a, _ := newAdapter(t)

	_, err := a.Load(ctx, "r1", "source_profile")
	require.Error(t, err)
	assert.Equal(t, domain.KindArtifactNotFound, domain.KindOf(err))

	data, ok, err := a.LoadOptional(ctx, "r1", "source_profile")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)

	_, err = a.Save(ctx, "r1", "unknown_thing", map[string]any{})
	assert.Error(t, err)
}
