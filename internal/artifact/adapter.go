// Package artifact maps logical artifact names onto stored physical
// artifacts and keeps older artifact shapes readable.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// AdapterVersion is recorded in the _compat block of every saved artifact.
const AdapterVersion = "3.0"

// compatKey holds the metadata block added on save.
const compatKey = "_compat"

// Store is the persistence the adapter needs.
type Store interface {
	SaveArtifact(ctx context.Context, artifact *domain.Artifact) error
	LoadArtifact(ctx context.Context, runID, phase, artifactType string) (*domain.Artifact, error)
	ListArtifacts(ctx context.Context, runID string) ([]domain.Artifact, error)
}

// Adapter addresses artifacts by logical name.
type Adapter struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewAdapter creates an adapter over store.
func NewAdapter(store Store, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{store: store, logger: logger.Named("artifact"), now: time.Now}
}

// Save stores data under the current physical name of logical, tagged with
// compatibility metadata, replacing the previous artifact for the key.
func (a *Adapter) Save(ctx context.Context, runID, logical string, data map[string]any) (*domain.Artifact, error) {
	physical, ok := PhysicalName(logical)
	if !ok {
		return nil, fmt.Errorf("unknown logical artifact %q", logical)
	}
	phase, _ := PhaseOf(logical)

	doc := cloneMap(data)
	doc[compatKey] = map[string]any{
		"adapter_version": AdapterVersion,
		"logical_name":    logical,
		"saved_at":        a.now().UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact %s: %w", logical, err)
	}
	art := &domain.Artifact{
		RunID:         runID,
		Phase:         phase,
		Type:          physical,
		SchemaVersion: CurrentSchemaVersion,
		Data:          raw,
	}
	if err := a.store.SaveArtifact(ctx, art); err != nil {
		return nil, fmt.Errorf("save artifact %s: %w", logical, err)
	}
	return art, nil
}

// Load returns the logical artifact upgraded to the current version and
// transformed for consumers. A missing artifact yields *domain.ArtifactNotFoundError.
func (a *Adapter) Load(ctx context.Context, runID, logical string) (map[string]any, error) {
	art, err := a.find(ctx, runID, logical)
	if err != nil {
		return nil, err
	}
	if art == nil {
		phase, _ := PhaseOf(logical)
		return nil, &domain.ArtifactNotFoundError{RunID: runID, Phase: phase, Type: logical}
	}
	return a.decode(logical, art)
}

// LoadOptional is Load for artifacts a consumer can do without.
func (a *Adapter) LoadOptional(ctx context.Context, runID, logical string) (map[string]any, bool, error) {
	data, err := a.Load(ctx, runID, logical)
	if err != nil {
		if domain.KindOf(err) == domain.KindArtifactNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// LoadAll returns every logical artifact present for a run.
func (a *Adapter) LoadAll(ctx context.Context, runID string) (map[string]map[string]any, error) {
	arts, err := a.store.ListArtifacts(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any)
	// current physical names win over legacy ones
	legacy := make(map[string]*domain.Artifact)
	for i := range arts {
		art := &arts[i]
		logical, ok := LogicalName(art.Type)
		if !ok {
			a.logger.Debug("skipping unmapped artifact", zap.String("run_id", runID), zap.String("type", art.Type))
			continue
		}
		if physical, _ := PhysicalName(logical); physical != art.Type {
			legacy[logical] = art
			continue
		}
		data, err := a.decode(logical, art)
		if err != nil {
			return nil, err
		}
		out[logical] = data
	}
	for logical, art := range legacy {
		if _, ok := out[logical]; ok {
			continue
		}
		data, err := a.decode(logical, art)
		if err != nil {
			return nil, err
		}
		out[logical] = data
	}
	return out, nil
}

// find looks the artifact up under its current physical name, then under
// legacy aliases.
func (a *Adapter) find(ctx context.Context, runID, logical string) (*domain.Artifact, error) {
	phase, ok := PhaseOf(logical)
	if !ok {
		return nil, fmt.Errorf("unknown logical artifact %q", logical)
	}
	aliases := physicalAliases(logical)
	for i, physical := range aliases {
		art, err := a.store.LoadArtifact(ctx, runID, phase, physical)
		if err != nil {
			return nil, err
		}
		if art != nil {
			if i > 0 {
				a.logger.Info("resolved legacy artifact name",
					zap.String("run_id", runID),
					zap.String("logical", logical),
					zap.String("physical", physical))
			}
			return art, nil
		}
	}
	return nil, nil
}

func (a *Adapter) decode(logical string, art *domain.Artifact) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(art.Data, &data); err != nil {
		return nil, fmt.Errorf("decode artifact %s/%s: %w", art.Phase, art.Type, err)
	}
	delete(data, compatKey)
	if art.SchemaVersion < CurrentSchemaVersion {
		upgraded, err := Upgrade(logical, data, art.SchemaVersion, CurrentSchemaVersion)
		if err != nil {
			return nil, err
		}
		data = upgraded
	}
	return Transform(logical, data), nil
}
