package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Nitesh802/customerintel-sub008/internal/adapter/llm"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/schema"
)

// conformingClient wraps a model client so every reply is parsed, validated
// and, if needed, repaired once before it counts as a success. A reply that
// still violates the contract becomes a SchemaValidationError, which the
// retry loop treats like any other failure.
type conformingClient struct {
	inner  llm.Client
	name   string
	schema *schema.Schema

	// state of the last successful call
	payload  map[string]any
	warnings []schema.Warning
	repaired bool

	// totals across every attempt
	tokens int
	calls  int
}

func (c *conformingClient) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	resp, err := c.inner.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	c.calls++
	c.tokens += resp.TokensUsed

	payload, warnings, repaired, err := conform(c.name, resp.Content, c.schema)
	if err != nil {
		return nil, err
	}
	c.payload, c.warnings, c.repaired = payload, warnings, repaired
	return resp, nil
}

// conform turns raw model text into a payload satisfying s.
func conform(name, content string, s *schema.Schema) (map[string]any, []schema.Warning, bool, error) {
	data, warnings, err := schema.ParseLenient(content)
	if err != nil {
		return nil, nil, false, &domain.SchemaValidationError{
			Schema:     name,
			Violations: []string{fmt.Sprintf("unparseable output: %v", err)},
		}
	}

	repaired := len(warnings) > 0
	result := schema.Validate(data, s)
	if !result.Valid {
		fixed, repairWarnings := schema.Repair(data, s)
		warnings = append(warnings, repairWarnings...)
		result = schema.Validate(fixed, s)
		if !result.Valid {
			return nil, nil, false, &domain.SchemaValidationError{Schema: name, Violations: result.Messages()}
		}
		data, repaired = fixed, true
	}

	obj, ok := data.(map[string]any)
	if !ok {
		return nil, nil, false, &domain.SchemaValidationError{
			Schema:     name,
			Violations: []string{fmt.Sprintf("expected an object, got %T", data)},
		}
	}
	return obj, warnings, repaired, nil
}

func warningStrings(ws []schema.Warning) []string {
	if len(ws) == 0 {
		return nil
	}
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}

func partialCount(ws []schema.Warning) int {
	n := 0
	for _, w := range ws {
		if w.Partial() {
			n++
		}
	}
	return n
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
