package chunkstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"recap/internal/transcript"
)

// Status records how a chunk attempt ended.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Key identifies one chunk of one source file transcribed by one backend.
// Bounds are compared at millisecond precision.
type Key struct {
	Fingerprint string
	Index       int
	Start       float64
	End         float64
	Backend     string
}

func (k Key) validate() error {
	if strings.TrimSpace(k.Fingerprint) == "" {
		return errors.New("chunkstore: fingerprint required")
	}
	if k.Index < 0 {
		return fmt.Errorf("chunkstore: invalid chunk index %d", k.Index)
	}
	return nil
}

func millis(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

// Record is a stored chunk outcome. Result is in chunk-local time.
type Record struct {
	Key
	Status    Status
	Attempts  int
	Result    transcript.Result
	Error     string
	UpdatedAt time.Time
}

// Lookup returns the stored result for key when a successful one exists.
func (s *Store) Lookup(ctx context.Context, key Key) (transcript.Result, bool, error) {
	if err := key.validate(); err != nil {
		return transcript.Result{}, false, err
	}
	var payload sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT result_json FROM chunk_results
WHERE fingerprint = ? AND chunk_index = ? AND start_ms = ? AND end_ms = ? AND backend = ? AND status = ?`,
		key.Fingerprint, key.Index, millis(key.Start), millis(key.End), key.Backend, string(StatusDone),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return transcript.Result{}, false, nil
	}
	if err != nil {
		return transcript.Result{}, false, fmt.Errorf("lookup chunk %d: %w", key.Index, err)
	}
	var result transcript.Result
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &result); err != nil {
			return transcript.Result{}, false, fmt.Errorf("decode chunk %d: %w", key.Index, err)
		}
	}
	return result, true, nil
}

// SaveResult stores a successful chunk transcription, replacing any prior
// outcome for the same key.
func (s *Store) SaveResult(ctx context.Context, key Key, result transcript.Result, attempts int) error {
	if err := key.validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode chunk %d: %w", key.Index, err)
	}
	return s.upsert(ctx, key, StatusDone, attempts, string(encoded), "")
}

// SaveFailure records that a chunk exhausted its attempts.
func (s *Store) SaveFailure(ctx context.Context, key Key, cause error, attempts int) error {
	if err := key.validate(); err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.upsert(ctx, key, StatusFailed, attempts, "", msg)
}

func (s *Store) upsert(ctx context.Context, key Key, status Status, attempts int, payload, errMsg string) error {
	_, err := s.exec(ctx, `
INSERT INTO chunk_results (fingerprint, chunk_index, start_ms, end_ms, backend, status, attempts, result_json, error_message, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)
ON CONFLICT (fingerprint, chunk_index, start_ms, end_ms, backend) DO UPDATE SET
    status = excluded.status,
    attempts = excluded.attempts,
    result_json = excluded.result_json,
    error_message = excluded.error_message,
    updated_at = excluded.updated_at`,
		key.Fingerprint, key.Index, millis(key.Start), millis(key.End), key.Backend,
		string(status), attempts, payload, errMsg, s.timestamp())
	if err != nil {
		return fmt.Errorf("save chunk %d: %w", key.Index, err)
	}
	return nil
}

// List returns stored outcomes for a fingerprint ordered by chunk index. An
// empty fingerprint lists everything.
func (s *Store) List(ctx context.Context, fingerprint string) ([]Record, error) {
	query := `
SELECT fingerprint, chunk_index, start_ms, end_ms, backend, status, attempts, result_json, error_message, updated_at
FROM chunk_results`
	var args []any
	if fingerprint = strings.TrimSpace(fingerprint); fingerprint != "" {
		query += " WHERE fingerprint = ?"
		args = append(args, fingerprint)
	}
	query += " ORDER BY fingerprint, chunk_index, backend"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec             Record
			startMS, endMS  int64
			status          string
			payload, errMsg sql.NullString
			updated         sql.NullString
		)
		if err := rows.Scan(&rec.Fingerprint, &rec.Index, &startMS, &endMS, &rec.Backend, &status, &rec.Attempts, &payload, &errMsg, &updated); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		rec.Start = float64(startMS) / 1000
		rec.End = float64(endMS) / 1000
		rec.Status = Status(status)
		rec.Error = errMsg.String
		rec.UpdatedAt = parseTimestamp(updated)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &rec.Result); err != nil {
				return nil, fmt.Errorf("decode chunk %d: %w", rec.Index, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear removes stored outcomes for a fingerprint, or all of them when the
// fingerprint is empty. It returns the number of rows removed.
func (s *Store) Clear(ctx context.Context, fingerprint string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if fingerprint = strings.TrimSpace(fingerprint); fingerprint == "" {
		res, err = s.exec(ctx, "DELETE FROM chunk_results")
	} else {
		res, err = s.exec(ctx, "DELETE FROM chunk_results WHERE fingerprint = ?", fingerprint)
	}
	if err != nil {
		return 0, fmt.Errorf("clear chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
