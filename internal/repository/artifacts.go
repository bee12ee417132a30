package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// SavePhaseResult writes the result of one phase, replacing an earlier
// result for the same (run, phase).
func (s *SQLiteStore) SavePhaseResult(ctx context.Context, result *domain.PhaseResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	citations, err := json.Marshal(result.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	warnings, err := json.Marshal(result.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	var payload sql.NullString
	if len(result.Payload) > 0 {
		payload = sql.NullString{String: string(result.Payload), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO phase_results
		 (run_id, phase, status, duration_ms, tokens_used, attempts, payload, citations, warnings, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.Phase, result.Status, result.DurationMs, result.TokensUsed, result.Attempts,
		payload, string(citations), string(warnings), nullString(result.Error), toMillis(result.CreatedAt))
	return err
}

// ListPhaseResults returns the phase results of a run in write order.
func (s *SQLiteStore) ListPhaseResults(ctx context.Context, runID string) ([]domain.PhaseResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, phase, status, duration_ms, tokens_used, attempts, payload, citations, warnings, error, created_at
		 FROM phase_results WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.PhaseResult
	for rows.Next() {
		var r domain.PhaseResult
		var payload, citations, warnings, errMsg sql.NullString
		var created int64
		if err := rows.Scan(&r.RunID, &r.Phase, &r.Status, &r.DurationMs, &r.TokensUsed, &r.Attempts,
			&payload, &citations, &warnings, &errMsg, &created); err != nil {
			return nil, err
		}
		if payload.Valid {
			r.Payload = json.RawMessage(payload.String)
		}
		if citations.Valid {
			if err := json.Unmarshal([]byte(citations.String), &r.Citations); err != nil {
				return nil, fmt.Errorf("decode citations of %s: %w", r.Phase, err)
			}
		}
		if warnings.Valid {
			if err := json.Unmarshal([]byte(warnings.String), &r.Warnings); err != nil {
				return nil, fmt.Errorf("decode warnings of %s: %w", r.Phase, err)
			}
		}
		r.Error = errMsg.String
		r.CreatedAt = fromMillis(created)
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveArtifact replaces the current artifact for (run, phase, type) and
// appends the write to the artifact history.
func (s *SQLiteStore) SaveArtifact(ctx context.Context, artifact *domain.Artifact) error {
	if !json.Valid(artifact.Data) {
		return fmt.Errorf("artifact %s/%s is not valid JSON", artifact.Phase, artifact.Type)
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	if artifact.SchemaVersion == 0 {
		artifact.SchemaVersion = 1
	}
	created := toMillis(artifact.CreatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (run_id, phase, type, schema_version, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		artifact.RunID, artifact.Phase, artifact.Type, artifact.SchemaVersion, string(artifact.Data), created); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO artifact_history (run_id, phase, type, schema_version, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		artifact.RunID, artifact.Phase, artifact.Type, artifact.SchemaVersion, string(artifact.Data), created); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadArtifact returns the current artifact for the key, or nil.
func (s *SQLiteStore) LoadArtifact(ctx context.Context, runID, phase, artifactType string) (*domain.Artifact, error) {
	var a domain.Artifact
	var data string
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, phase, type, schema_version, data, created_at FROM artifacts WHERE run_id = ? AND phase = ? AND type = ?`,
		runID, phase, artifactType).Scan(&a.RunID, &a.Phase, &a.Type, &a.SchemaVersion, &data, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Data = json.RawMessage(data)
	a.CreatedAt = fromMillis(created)
	return &a, nil
}

// ListArtifacts returns the current artifacts of a run.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, runID string) ([]domain.Artifact, error) {
	return s.queryArtifacts(ctx,
		`SELECT run_id, phase, type, schema_version, data, created_at FROM artifacts
		 WHERE run_id = ? ORDER BY phase ASC, type ASC`, runID)
}

// ArtifactHistory returns every write for the key, oldest first.
func (s *SQLiteStore) ArtifactHistory(ctx context.Context, runID, phase, artifactType string) ([]domain.Artifact, error) {
	return s.queryArtifacts(ctx,
		`SELECT run_id, phase, type, schema_version, data, created_at FROM artifact_history
		 WHERE run_id = ? AND phase = ? AND type = ? ORDER BY id ASC`, runID, phase, artifactType)
}

func (s *SQLiteStore) queryArtifacts(ctx context.Context, query string, args ...any) ([]domain.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var data string
		var created int64
		if err := rows.Scan(&a.RunID, &a.Phase, &a.Type, &a.SchemaVersion, &data, &created); err != nil {
			return nil, err
		}
		a.Data = json.RawMessage(data)
		a.CreatedAt = fromMillis(created)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	var payload sql.NullString
	if event.Payload != nil {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a run.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, run_id, ts, type, payload FROM events WHERE run_id = ?`
	args := []any{runID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RunID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SaveDiversityReport caches the gate verdict of a run, replacing any earlier one.
func (s *SQLiteStore) SaveDiversityReport(ctx context.Context, report *domain.DiversityReport) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal diversity report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO diversity_reports (run_id, status, clearance, report, created_at) VALUES (?, ?, ?, ?, ?)`,
		report.RunID, report.Status, report.SynthesisClearance, string(data), toMillis(report.CreatedAt))
	return err
}

// GetDiversityReport returns the cached report, or nil.
func (s *SQLiteStore) GetDiversityReport(ctx context.Context, runID string) (*domain.DiversityReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM diversity_reports WHERE run_id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report domain.DiversityReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("decode diversity report: %w", err)
	}
	return &report, nil
}

// SaveBundle stores the run's single synthesis record, replacing any earlier one.
func (s *SQLiteStore) SaveBundle(ctx context.Context, bundle *domain.SynthesisBundle) error {
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO synthesis_bundles (run_id, bundle, created_at) VALUES (?, ?, ?)`,
		bundle.RunID, string(data), toMillis(bundle.CreatedAt))
	return err
}

// GetBundle returns the run's synthesis record, or nil.
func (s *SQLiteStore) GetBundle(ctx context.Context, runID string) (*domain.SynthesisBundle, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT bundle FROM synthesis_bundles WHERE run_id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var bundle domain.SynthesisBundle
	if err := json.Unmarshal([]byte(data), &bundle); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &bundle, nil
}
