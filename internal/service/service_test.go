package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/adapter/llm"
	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/pipeline"
	"github.com/Nitesh802/customerintel-sub008/internal/repository"
	"github.com/Nitesh802/customerintel-sub008/internal/schema"
	"github.com/Nitesh802/customerintel-sub008/internal/testutil"
	"github.com/Nitesh802/customerintel-sub008/policy"
)

func newTestService(t *testing.T) (*Service, *repository.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewTestStore(t)

	cfg := config.Default()
	cfg.LLM.RetryAttempts = 1
	cfg.LLM.RetryBaseDelay = time.Millisecond
	cfg.Pipeline.ExportDir = t.TempDir()
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

	schemas, err := schema.NewRegistry("", zap.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	engine, err := policy.NewDefaultEngine(ctx)
	if err != nil {
		t.Fatalf("NewDefaultEngine: %v", err)
	}
	orch := pipeline.New(store, llm.NewMockClient(), schemas, engine, cfg, zap.NewNop())
	return New(store, orch, cfg, zap.NewNop()), store
}

func TestCreateRunValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateRun(ctx, domain.CreateRunRequest{SourceCompany: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	_, err := svc.CreateRun(ctx, domain.CreateRunRequest{
		SourceCompany: "Acme",
		Chunks:        []domain.Chunk{{Text: "x", StartOffset: 5, EndOffset: 1}},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad offsets, got %v", err)
	}
}

func TestCreateAndExecuteRun(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{
		SourceCompany: "Acme",
		TargetCompany: "Globex",
		Chunks:        []domain.Chunk{{Text: "Acme sells widgets.", SourceID: "doc1", EndOffset: 19}},
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != domain.RunStatusQueued || len(run.RunID) != len("run_")+8 {
		t.Fatalf("unexpected run: %+v", run)
	}
	chunks, err := store.ListChunks(ctx, run.RunID)
	if err != nil || len(chunks) != 1 || chunks[0].Hash == "" {
		t.Fatalf("chunks not stored: %+v %v", chunks, err)
	}

	done, err := svc.ExecuteRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("ExecuteRun: %v", err)
	}
	if done.Status != domain.RunStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
	}

	if _, err := svc.ExecuteRun(ctx, run.RunID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on rerun, got %v", err)
	}
	if _, err := svc.AddChunks(ctx, run.RunID, []domain.Chunk{{Text: "late"}}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState adding chunks, got %v", err)
	}

	profile, err := svc.GetArtifact(ctx, run.RunID, "source_profile")
	if err != nil || profile == nil {
		t.Fatalf("GetArtifact: %v %v", profile, err)
	}
	if _, err := svc.GetArtifact(ctx, run.RunID, "no_such_artifact"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	bundle, err := svc.RebuildBundle(ctx, run.RunID)
	if err != nil || bundle == nil {
		t.Fatalf("RebuildBundle: %v %v", bundle, err)
	}

	var buf bytes.Buffer
	manifest, err := svc.Export(ctx, run.RunID, &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if buf.Len() == 0 || manifest.Summary["has_bundle"] != true {
		t.Fatalf("unexpected export: %d bytes, %+v", buf.Len(), manifest.Summary)
	}
	path, err := svc.ExportFile(ctx, run.RunID, "")
	if err != nil || path == "" {
		t.Fatalf("ExportFile: %q %v", path, err)
	}
}

func TestCancelRun(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CancelRun(ctx, "run_missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{SourceCompany: "Acme"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := svc.CancelRun(ctx, run.RunID); err != nil {
		t.Fatalf("CancelRun: %v", err)
	}
	got, err := svc.ExecuteRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("ExecuteRun: %v", err)
	}
	if got.Status != domain.RunStatusFailed || got.Error != "run cancelled" {
		t.Fatalf("expected cancelled failure, got %s %q", got.Status, got.Error)
	}
	results, _ := store.ListPhaseResults(ctx, run.RunID)
	if len(results) != 0 {
		t.Fatalf("expected no phases to run, got %d", len(results))
	}
}

func TestCancelBlockedRunFailsImmediately(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, &domain.Run{RunID: "run_b", SourceCompany: "Acme", Status: domain.RunStatusBlocked, State: domain.StateBlocked}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	got, err := svc.CancelRun(ctx, "run_b")
	if err != nil {
		t.Fatalf("CancelRun: %v", err)
	}
	if got.Status != domain.RunStatusFailed || got.CompletedAt == nil {
		t.Fatalf("expected failed with completion time, got %+v", got)
	}
}

func TestResumeRequiresBlockedRun(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{SourceCompany: "Acme"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := svc.ResumeRun(ctx, run.RunID, false); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	svc.Wait()
}
