package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Provider identifies a model provider wire format.
type Provider int

const (
	ProviderOpenAI Provider = iota
	ProviderAnthropic
	ProviderGeneric
	ProviderGemini
)

func (p Provider) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderGeneric:
		return "generic"
	case ProviderGemini:
		return "gemini"
	}
	return fmt.Sprintf("provider(%d)", int(p))
}

// ParseProvider maps a configuration name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "openai", "azure", "litellm":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "generic", "completion", "completions":
		return ProviderGeneric, nil
	case "gemini", "google":
		return ProviderGemini, nil
	}
	return 0, fmt.Errorf("unknown llm provider %q", name)
}

// jsonOnlyInstruction is appended to the system prompt when JSON output is
// requested from a provider without a native JSON mode.
const jsonOnlyInstruction = "Respond with a single JSON document only. Do not add prose, explanations or markdown fences."

// wireRequest is the provider-independent input of a dialect.
type wireRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
	JSONMode     bool
}

// wireResponse is what a dialect extracts from a provider envelope.
type wireResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// dialect maps the uniform request onto one HTTP provider format.
type dialect interface {
	endpoint(baseURL string) string
	buildRequest(req wireRequest) ([]byte, error)
	setHeaders(h http.Header, apiKey string)
	parseResponse(body []byte) (wireResponse, error)
	// nativeJSON reports whether the provider has a JSON output flag.
	nativeJSON() bool
	defaultBaseURL() string
}

func dialectFor(p Provider) (dialect, error) {
	switch p {
	case ProviderOpenAI:
		return openAIDialect{}, nil
	case ProviderAnthropic:
		return anthropicDialect{}, nil
	case ProviderGeneric:
		return genericDialect{}, nil
	}
	return nil, fmt.Errorf("provider %s has no HTTP dialect", p)
}

// errMissingContent is wrapped into a ProviderResponseError by the client.
var errMissingContent = fmt.Errorf("content path missing from response")

// OpenAI-style chat completions.

type openAIDialect struct{}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message *chatMessage `json:"message"`
		Text    *string      `json:"text"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (openAIDialect) endpoint(baseURL string) string { return baseURL + "/chat/completions" }
func (openAIDialect) defaultBaseURL() string         { return "https://api.openai.com/v1" }
func (openAIDialect) nativeJSON() bool               { return true }

func (openAIDialect) buildRequest(req wireRequest) ([]byte, error) {
	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	return json.Marshal(body)
}

func (openAIDialect) setHeaders(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
}

func (openAIDialect) parseResponse(body []byte) (wireResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return wireResponse{}, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return wireResponse{}, errMissingContent
	}
	out := wireResponse{Content: resp.Choices[0].Message.Content, Model: resp.Model}
	if resp.Usage != nil {
		out.TokensUsed = usageTotal(resp.Usage.TotalTokens, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return out, nil
}

// Anthropic messages API.

type anthropicDialect struct{}

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

const anthropicVersion = "2023-06-01"

func (anthropicDialect) endpoint(baseURL string) string { return baseURL + "/messages" }
func (anthropicDialect) defaultBaseURL() string         { return "https://api.anthropic.com/v1" }
func (anthropicDialect) nativeJSON() bool               { return false }

func (anthropicDialect) buildRequest(req wireRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		// the messages API requires max_tokens
		maxTokens = 4096
	}
	return json.Marshal(anthropicRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: req.UserPrompt}},
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	})
}

func (anthropicDialect) setHeaders(h http.Header, apiKey string) {
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", anthropicVersion)
}

func (anthropicDialect) parseResponse(body []byte) (wireResponse, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return wireResponse{}, err
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			out := wireResponse{Content: block.Text, Model: resp.Model}
			if resp.Usage != nil {
				out.TokensUsed = resp.Usage.InputTokens + resp.Usage.OutputTokens
			}
			return out, nil
		}
	}
	return wireResponse{}, errMissingContent
}

// Single-prompt completions for generic OpenAI-compatible servers.

type genericDialect struct{}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

func (genericDialect) endpoint(baseURL string) string { return baseURL + "/completions" }
func (genericDialect) defaultBaseURL() string         { return "http://localhost:8000/v1" }
func (genericDialect) nativeJSON() bool               { return false }

func (genericDialect) buildRequest(req wireRequest) ([]byte, error) {
	prompt := req.UserPrompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + req.UserPrompt
	}
	return json.Marshal(completionRequest{
		Model:       req.Model,
		Prompt:      prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
}

func (genericDialect) setHeaders(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
}

func (genericDialect) parseResponse(body []byte) (wireResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return wireResponse{}, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Text == nil {
		return wireResponse{}, errMissingContent
	}
	out := wireResponse{Content: *resp.Choices[0].Text, Model: resp.Model}
	if resp.Usage != nil {
		out.TokensUsed = usageTotal(resp.Usage.TotalTokens, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return out, nil
}

func usageTotal(total, prompt, completion int) int {
	if total > 0 {
		return total
	}
	return prompt + completion
}

// apiErrorEnvelope matches the error bodies of OpenAI- and Anthropic-style APIs.
type apiErrorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorMessage(body []byte) string {
	var env apiErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
