package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// GeminiClient calls Gemini through the genai SDK.
type GeminiClient struct {
	opts    Options
	client  *genai.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiClient creates a Gemini-backed Client.
func NewGeminiClient(ctx context.Context, opts Options, logger *zap.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	}
	return &GeminiClient{
		opts:    opts,
		client:  client,
		limiter: limiter,
		logger:  logger.Named("llm").With(zap.String("provider", ProviderGemini.String())),
	}, nil
}

// Call implements Client.
func (c *GeminiClient) Call(ctx context.Context, req *Request) (*Response, error) {
	provider := ProviderGemini.String()
	temperature := capTemperature(c.logger, req.Temperature, c.opts.Temperature, c.opts.MaxTemperature)

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	maxTokens := c.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.ProviderRequestError{Provider: provider, Message: "rate limiter", Err: err}
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.opts.Model, genai.Text(req.UserPrompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &domain.ProviderRequestError{Provider: provider, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
		}
		return nil, &domain.ProviderRequestError{Provider: provider, Err: err}
	}
	duration := time.Since(start)

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, &domain.ProviderResponseError{Provider: provider, Message: "empty candidate text", Err: errMissingContent}
	}
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	model := c.opts.Model
	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}
	c.logger.Debug("model call done",
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("tokens", tokens))

	return &Response{
		Content:     text,
		DurationMs:  duration.Milliseconds(),
		TokensUsed:  tokens,
		Model:       model,
		Temperature: temperature,
	}, nil
}
