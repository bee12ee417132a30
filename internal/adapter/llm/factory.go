package llm

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/config"
)

const (
	// EnvPipelineMode is the environment variable name for mode selection.
	EnvPipelineMode = "PIPELINE_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewClient creates a model client from configuration.
// If PIPELINE_MODE=MOCK, returns a MockClient regardless of the provider.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if os.Getenv(EnvPipelineMode) == ModeMock || cfg.Provider == "mock" {
		logger.Info("mock mode detected, using mock llm client")
		return NewMockClient(), nil
	}

	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	opts := Options{
		Provider:       provider,
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		Timeout:        cfg.Timeout,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		MaxTemperature: cfg.MaxTemperature,
		RequestsPerSec: cfg.RequestsPerSec,
	}
	if provider == ProviderGemini {
		return NewGeminiClient(ctx, opts, logger)
	}
	return NewHTTPClient(opts, logger)
}
