package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

const runColumns = `run_id, source_company, target_company, status, state, cancel_requested,
	tokens_used, cost, error, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var target, errMsg sql.NullString
	var cancel int
	var created int64
	var started, completed sql.NullInt64
	if err := row.Scan(&run.RunID, &run.SourceCompany, &target, &run.Status, &run.State, &cancel,
		&run.TokensUsed, &run.Cost, &errMsg, &created, &started, &completed); err != nil {
		return nil, err
	}
	run.TargetCompany = target.String
	run.Error = errMsg.String
	run.CancelRequested = cancel != 0
	run.CreatedAt = fromMillis(created)
	run.StartedAt = fromNullMillis(started)
	run.CompletedAt = fromNullMillis(completed)
	return &run, nil
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	if run.Status == "" {
		run.Status = domain.RunStatusQueued
	}
	if run.State == "" {
		run.State = domain.StatePending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, source_company, target_company, status, state, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.SourceCompany, nullString(run.TargetCompany), run.Status, run.State, toMillis(run.CreatedAt))
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns lists runs, oldest first. An empty status lists every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, status domain.RunStatus, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC, run_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ClaimRun atomically moves a queued run to running. It reports false when
// another worker claimed it first or the run is no longer queued.
func (s *SQLiteStore) ClaimRun(ctx context.Context, runID string) (bool, error) {
	return s.transitionRun(ctx, runID, domain.RunStatusQueued, domain.RunStatusRunning)
}

// ClaimBlockedRun atomically moves a blocked run back to running, so only
// one resume of it proceeds.
func (s *SQLiteStore) ClaimBlockedRun(ctx context.Context, runID string) (bool, error) {
	return s.transitionRun(ctx, runID, domain.RunStatusBlocked, domain.RunStatusRunning)
}

func (s *SQLiteStore) transitionRun(ctx context.Context, runID string, from, to domain.RunStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, started_at = COALESCE(started_at, ?) WHERE run_id = ? AND status = ?`,
		to, time.Now().UnixMilli(), runID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateRunState updates the status and state machine position of a run.
func (s *SQLiteStore) UpdateRunState(ctx context.Context, runID string, status domain.RunStatus, state domain.PipelineState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, state = ?, started_at = COALESCE(started_at, ?) WHERE run_id = ?`,
		status, state, time.Now().UnixMilli(), runID)
	return err
}

// AddRunTotals accumulates token and cost totals.
func (s *SQLiteStore) AddRunTotals(ctx context.Context, runID string, tokens int, cost float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET tokens_used = tokens_used + ?, cost = cost + ? WHERE run_id = ?`,
		tokens, cost, runID)
	return err
}

// RequestCancel flags a run for cancellation at the next phase boundary.
func (s *SQLiteStore) RequestCancel(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET cancel_requested = 1 WHERE run_id = ?`, runID)
	return err
}

// FinishRun records the outcome of an execution. Blocked runs keep a null
// completion time since they can be resumed.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status domain.RunStatus, state domain.PipelineState, errMsg string) error {
	var completed sql.NullInt64
	if status.Terminal() {
		completed = sql.NullInt64{Int64: time.Now().UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, state = ?, error = ?, completed_at = ? WHERE run_id = ?`,
		status, state, nullString(domain.TruncateMessage(errMsg, domain.MaxErrorMessageLen)), completed, runID)
	return err
}

// GetPreviousCompletedRun returns the latest completed run for the same
// source company created before beforeRunID, or nil.
func (s *SQLiteStore) GetPreviousCompletedRun(ctx context.Context, sourceCompany, beforeRunID string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE source_company = ? AND status = ? AND run_id != ?
		   AND created_at <= COALESCE((SELECT created_at FROM runs WHERE run_id = ?), created_at)
		 ORDER BY created_at DESC, run_id DESC LIMIT 1`,
		sourceCompany, domain.RunStatusCompleted, beforeRunID, beforeRunID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// SaveChunks stores source material chunks for a run. Missing hashes are
// computed from the text and missing ids are generated. A chunk id already
// present in the same run is replaced; other runs are never touched.
func (s *SQLiteStore) SaveChunks(ctx context.Context, runID string, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (chunk_id, run_id, source_id, start_offset, end_offset, hash, text) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		c.RunID = runID
		if c.Hash == "" {
			c.Hash = ChunkHash(c.Text)
		}
		if c.ChunkID == "" {
			c.ChunkID = "chk_" + uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, c.ChunkID, runID, nullString(c.SourceID), c.StartOffset, c.EndOffset, c.Hash, c.Text); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListChunks returns chunks grouped by source in offset order.
func (s *SQLiteStore) ListChunks(ctx context.Context, runID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, run_id, source_id, start_offset, end_offset, hash, text FROM chunks
		 WHERE run_id = ? ORDER BY source_id ASC, start_offset ASC, chunk_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var sourceID sql.NullString
		if err := rows.Scan(&c.ChunkID, &c.RunID, &sourceID, &c.StartOffset, &c.EndOffset, &c.Hash, &c.Text); err != nil {
			return nil, err
		}
		c.SourceID = sourceID.String
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkHash is the content hash used for chunks supplied without one.
func ChunkHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
