// Package servicetest builds a service over an in-memory store and the mock
// model client for transport tests.
package servicetest

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/adapter/llm"
	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/pipeline"
	"github.com/Nitesh802/customerintel-sub008/internal/repository"
	"github.com/Nitesh802/customerintel-sub008/internal/schema"
	"github.com/Nitesh802/customerintel-sub008/internal/service"
	"github.com/Nitesh802/customerintel-sub008/internal/testutil"
	"github.com/Nitesh802/customerintel-sub008/policy"
)

// Config returns a configuration with fast retries and diversity thresholds
// loose enough for mock output to pass the gate.
func Config() *config.Config {
	cfg := config.Default()
	cfg.LLM.RetryAttempts = 1
	cfg.LLM.RetryBaseDelay = time.Millisecond
	cfg.Diversity = config.DiversityConfig{
		MinDiversityScore:       0.1,
		MinUniqueDomains:        2,
		MaxConcentration:        0.9,
		MinConfidenceRatio:      0.1,
		CriticalDiversityScore:  0.01,
		CriticalUniqueDomains:   1,
		CriticalConcentration:   0.99,
		CriticalConfidenceRatio: 0,
		PassRatio:               0.75,
		HighConfidence:          0.7,
	}
	return cfg
}

// New returns a service and its store.
func New(t *testing.T) (*service.Service, *repository.SQLiteStore) {
	t.Helper()
	cfg := Config()
	cfg.Pipeline.ExportDir = t.TempDir()
	db := testutil.NewTestStore(t)

	schemas, err := schema.NewRegistry("", zap.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	engine, err := policy.NewDefaultEngine(context.Background())
	if err != nil {
		t.Fatalf("NewDefaultEngine failed: %v", err)
	}
	orch := pipeline.New(db, llm.NewMockClient(), schemas, engine, cfg, zap.NewNop())
	return service.New(db, orch, cfg, zap.NewNop()), db
}
