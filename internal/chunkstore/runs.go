package chunkstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunStatus is the terminal state recorded for a pipeline run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Run summarizes one pipeline invocation.
type Run struct {
	ID          string
	Source      string
	Fingerprint string
	Backend     string
	Status      RunStatus
	Chunks      int
	Failed      int
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// BeginRun records a new run in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.exec(ctx, `
INSERT INTO runs (id, source_path, fingerprint, backend, status, started_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Fingerprint, run.Backend, string(RunRunning), s.timestamp())
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the terminal status and chunk counts of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, chunks, failed int, errMsg string) error {
	_, err := s.exec(ctx, `
UPDATE runs SET status = ?, chunk_count = ?, failed_count = ?, error_message = NULLIF(?, ''), finished_at = ?
WHERE id = ?`,
		string(status), chunks, failed, errMsg, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source_path, fingerprint, backend, status, chunk_count, failed_count, error_message, started_at, finished_at
FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run               Run
			status            string
			errMsg            sql.NullString
			started, finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Source, &run.Fingerprint, &run.Backend, &status, &run.Chunks, &run.Failed, &errMsg, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = RunStatus(status)
		run.Error = errMsg.String
		run.StartedAt = parseTimestamp(started)
		run.FinishedAt = parseTimestamp(finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
