package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// Options configures an HTTPClient.
type Options struct {
	Provider       Provider
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxTokens      int
	Temperature    float64
	MaxTemperature float64
	// RequestsPerSec throttles calls; zero disables throttling.
	RequestsPerSec float64
}

// HTTPClient talks to an HTTP model provider through a dialect.
type HTTPClient struct {
	opts       Options
	dialect    dialect
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewHTTPClient creates a client for an HTTP provider.
func NewHTTPClient(opts Options, logger *zap.Logger) (*HTTPClient, error) {
	d, err := dialectFor(opts.Provider)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = d.defaultBaseURL()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	}
	return &HTTPClient{
		opts:    opts,
		dialect: d,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: limiter,
		logger:  logger.Named("llm").With(zap.String("provider", opts.Provider.String())),
	}, nil
}

// Call sends one request and maps the provider envelope to a Response.
func (c *HTTPClient) Call(ctx context.Context, req *Request) (*Response, error) {
	provider := c.opts.Provider.String()
	temperature := capTemperature(c.logger, req.Temperature, c.opts.Temperature, c.opts.MaxTemperature)

	maxTokens := c.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	system := req.SystemPrompt
	if req.JSONMode && !c.dialect.nativeJSON() {
		system = strings.TrimSpace(system + "\n\n" + jsonOnlyInstruction)
	}

	body, err := c.dialect.buildRequest(wireRequest{
		Model:        c.opts.Model,
		SystemPrompt: system,
		UserPrompt:   req.UserPrompt,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		JSONMode:     req.JSONMode,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.ProviderRequestError{Provider: provider, Message: "rate limiter", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dialect.endpoint(c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.dialect.setHeaders(httpReq.Header, c.opts.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.ProviderRequestError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ProviderRequestError{Provider: provider, StatusCode: resp.StatusCode, Message: "read body", Err: err}
	}
	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ProviderRequestError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	parsed, err := c.dialect.parseResponse(respBody)
	if err != nil {
		return nil, &domain.ProviderResponseError{Provider: provider, Message: "unexpected envelope", Err: err}
	}

	model := parsed.Model
	if model == "" {
		model = c.opts.Model
	}
	c.logger.Debug("model call done",
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("tokens", parsed.TokensUsed))

	return &Response{
		Content:     parsed.Content,
		RawResponse: json.RawMessage(respBody),
		DurationMs:  duration.Milliseconds(),
		TokensUsed:  parsed.TokensUsed,
		Model:       model,
		Temperature: temperature,
	}, nil
}

// capTemperature applies the deterministic-extraction ceiling. Values above
// it are lowered, never rejected.
func capTemperature(logger *zap.Logger, requested *float64, def, ceiling float64) float64 {
	t := def
	if requested != nil {
		t = *requested
	}
	if t < 0 {
		t = 0
	}
	if ceiling > 0 && t > ceiling {
		logger.Warn("temperature above ceiling, capping",
			zap.Float64("requested", t),
			zap.Float64("ceiling", ceiling))
		t = ceiling
	}
	return t
}
