package artifact

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgradeV1ToCurrent(t *testing.T) {
	in := map[string]any{
		"summary":    "s",
		"confidence": "Medium",
		"citations":  []any{"https://a.com"},
		"sources": []any{
			map[string]any{"url": "https://b.com", "confidence": "low"},
		},
	}

	got, err := Upgrade("news_timeline", in, 1, CurrentSchemaVersion)
	require.NoError(t, err)

	want := map[string]any{
		"summary":    "s",
		"confidence": 0.6,
		"citations": []any{
			"https://a.com",
			map[string]any{"url": "https://b.com", "confidence": 0.3},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("upgrade mismatch (-want +got):\n%s", diff)
	}
	// input untouched
	assert.Contains(t, in, "sources")
	assert.Equal(t, "Medium", in["confidence"])
}

func TestUpgradeSingleStep(t *testing.T) {
	got, err := Upgrade("x", map[string]any{"sources": "https://a.com", "confidence": "high"}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []any{"https://a.com"}, got["citations"])
	assert.Equal(t, "high", got["confidence"])
}

func TestUpgradeRejectsBadRange(t *testing.T) {
	_, err := Upgrade("x", map[string]any{}, 3, 2)
	assert.Error(t, err)
	_, err = Upgrade("x", map[string]any{}, 1, CurrentSchemaVersion+1)
	assert.Error(t, err)

	same, err := Upgrade("x", map[string]any{"a": 1.0}, CurrentSchemaVersion, CurrentSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, same)
}
