// Package llm provides the model client used by pipeline phases.
package llm

import (
	"context"
	"encoding/json"

	"github.com/Nitesh802/customerintel-sub008/internal/schema"
)

// Client sends one (system prompt, user prompt, schema) triple to a model.
type Client interface {
	// Call performs a single provider request. It blocks until the provider
	// answers, ctx is done, or the client timeout fires.
	Call(ctx context.Context, req *Request) (*Response, error)
}

// Request is a provider-independent model request.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	// Schema is the contract the output must satisfy. Only the mock client
	// reads it; real providers get it through the prompt.
	Schema   *schema.Schema
	JSONMode bool
	// MaxTokens and Temperature override the configured values when set.
	MaxTokens   int
	Temperature *float64
}

// Response is the uniform result of a model call.
type Response struct {
	Content     string          `json:"content"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
	TokensUsed  int             `json:"tokens_used"`
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature"`
}

// Ensure implementations satisfy Client.
var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*MockClient)(nil)
	_ Client = (*GeminiClient)(nil)
)
