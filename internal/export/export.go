// Package export bundles everything recorded for one run into a zip archive
// for offline troubleshooting.
package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// Store is the read side the exporter needs.
type Store interface {
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListPhaseResults(ctx context.Context, runID string) ([]domain.PhaseResult, error)
	ListArtifacts(ctx context.Context, runID string) ([]domain.Artifact, error)
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)
	GetDiversityReport(ctx context.Context, runID string) (*domain.DiversityReport, error)
	GetBundle(ctx context.Context, runID string) (*domain.SynthesisBundle, error)
}

// Manifest describes the archive contents.
type Manifest struct {
	RunID       string         `json:"runId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Contents    []string       `json:"contents"`
	Summary     map[string]any `json:"summary"`
}

// maxEvents bounds events.jsonl.
const maxEvents = 10000

// Exporter writes diagnostic archives.
type Exporter struct {
	store Store
	now   func() time.Time
}

// New creates an exporter over store.
func New(store Store) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

// Write streams the archive for runID to w and returns its manifest.
func (e *Exporter) Write(ctx context.Context, runID string, w io.Writer) (*Manifest, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	results, err := e.store.ListPhaseResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list phase results: %w", err)
	}
	arts, err := e.store.ListArtifacts(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	events, err := e.store.GetEvents(ctx, runID, 0, nil, maxEvents)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	report, err := e.store.GetDiversityReport(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get diversity report: %w", err)
	}
	bundle, err := e.store.GetBundle(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}

	zw := zip.NewWriter(w)
	manifest := &Manifest{
		RunID:       runID,
		GeneratedAt: e.now().UTC(),
		Contents:    []string{},
		Summary:     summarize(run, results, arts, events, report, bundle),
	}
	add := func(name string, v any) error {
		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		manifest.Contents = append(manifest.Contents, name)
		return nil
	}

	if err := add("run.json", run); err != nil {
		return nil, err
	}
	for _, r := range results {
		if err := add("phases/"+r.Phase+".json", r); err != nil {
			return nil, err
		}
	}
	for _, a := range arts {
		if err := add(fmt.Sprintf("artifacts/%s/%s.json", a.Phase, a.Type), a); err != nil {
			return nil, err
		}
	}

	f, err := zw.Create("events.jsonl")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(f)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return nil, fmt.Errorf("write events: %w", err)
		}
	}
	manifest.Contents = append(manifest.Contents, "events.jsonl")

	if report != nil {
		if err := add("diversity.json", report); err != nil {
			return nil, err
		}
	}
	if bundle != nil {
		if err := add("bundle.json", bundle); err != nil {
			return nil, err
		}
	}

	manifest.Contents = append(manifest.Contents, "manifest.json")
	mf, err := zw.Create("manifest.json")
	if err != nil {
		return nil, err
	}
	menc := json.NewEncoder(mf)
	menc.SetIndent("", "  ")
	if err := menc.Encode(manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return manifest, nil
}

// WriteFile writes the archive into dir and returns its path.
func (e *Exporter) WriteFile(ctx context.Context, runID, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.zip", runID, e.now().UTC().Format("20060102T150405Z")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	if _, err := e.Write(ctx, runID, f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func summarize(run *domain.Run, results []domain.PhaseResult, arts []domain.Artifact, events []domain.Event, report *domain.DiversityReport, bundle *domain.SynthesisBundle) map[string]any {
	counts := map[string]int{}
	for _, r := range results {
		counts[string(r.Status)]++
	}
	summary := map[string]any{
		"status":         run.Status,
		"state":          run.State,
		"error":          run.Error,
		"tokens_used":    run.TokensUsed,
		"cost":           run.Cost,
		"phase_results":  len(results),
		"phase_statuses": counts,
		"artifacts":      len(arts),
		"events":         len(events),
		"has_bundle":     bundle != nil,
	}
	if report != nil {
		summary["diversity_status"] = report.Status
		summary["synthesis_clearance"] = report.SynthesisClearance
	}
	return summary
}
