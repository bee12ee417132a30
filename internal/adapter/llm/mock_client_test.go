package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/schema"
)

func TestMockClientDeterministic(t *testing.T) {
	reg, err := schema.NewRegistry("", zap.NewNop())
	require.NoError(t, err)
	s, err := reg.Get("nb4")
	require.NoError(t, err)

	m := NewMockClient()
	req := &Request{SystemPrompt: "sys", UserPrompt: "acme", Schema: s, JSONMode: true}
	a, err := m.Call(context.Background(), req)
	require.NoError(t, err)
	b, err := m.Call(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a.Content, b.Content)
	assert.Equal(t, 2, m.Calls())

	other, err := m.Call(context.Background(), &Request{SystemPrompt: "sys", UserPrompt: "globex", Schema: s})
	require.NoError(t, err)
	assert.NotEqual(t, a.Content, other.Content)
}

func TestMockClientOutputValidatesAgainstEverySchema(t *testing.T) {
	reg, err := schema.NewRegistry("", zap.NewNop())
	require.NoError(t, err)

	m := NewMockClient()
	for _, name := range reg.Names() {
		s, err := reg.Get(name)
		require.NoError(t, err)

		resp, err := m.Call(context.Background(), &Request{UserPrompt: "prompt for " + name, Schema: s, JSONMode: true})
		require.NoError(t, err, name)

		var v any
		require.NoError(t, json.Unmarshal([]byte(resp.Content), &v), name)
		res := schema.Validate(v, s)
		assert.True(t, res.Valid, "%s: %v", name, res.Messages())
	}
}

func TestMockClientHonoursPatterns(t *testing.T) {
	s, err := schema.Parse([]byte(`{
	  "type": "object",
	  "required": ["ticker", "filed_date", "rating", "code"],
	  "properties": {
	    "ticker": {"type": "string", "pattern": "^[A-Z]{2,5}$"},
	    "filed_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
	    "rating": {"type": "string", "pattern": "^(low|medium|high)$"},
	    "code": {"type": "string", "pattern": "^NB[0-9]+(-[a-z]+)?$", "maxLength": 12}
	  }
	}`))
	require.NoError(t, err)

	m := NewMockClient()
	for _, prompt := range []string{"acme", "globex", "initech", "umbrella", "hooli"} {
		resp, err := m.Call(context.Background(), &Request{UserPrompt: prompt, Schema: s, JSONMode: true})
		require.NoError(t, err)

		var v any
		require.NoError(t, json.Unmarshal([]byte(resp.Content), &v))
		res := schema.Validate(v, s)
		assert.True(t, res.Valid, "%s: %s %v", prompt, resp.Content, res.Messages())
	}
}

func TestMockClientOverride(t *testing.T) {
	m := NewMockClient()
	m.Override = func(req *Request, call int) (string, bool, error) {
		if call == 1 {
			return "", false, errors.New("provider down")
		}
		return "fixed", true, nil
	}

	_, err := m.Call(context.Background(), &Request{UserPrompt: "x"})
	require.EqualError(t, err, "provider down")

	resp, err := m.Call(context.Background(), &Request{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", resp.Content)
}

func TestMockClientHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockClient().Call(ctx, &Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
