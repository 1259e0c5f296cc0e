// Package pgx implements the result store on PostgreSQL via pgx.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graphmill/graphmill/pkg/common"
	"github.com/graphmill/graphmill/pkg/store"
)

// ResultStorage persists extraction results as jsonb rows keyed by job ID.
//
// A ResultStorage should be created using NewResultStorage.
type ResultStorage struct {
	conn *pgxpool.Pool
}

// NewResultStorage creates a storage over the given pool and ensures the
// results table exists.
func NewResultStorage(ctx context.Context, conn *pgxpool.Pool) (*ResultStorage, error) {
	s := &ResultStorage{conn: conn}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare results table: %w", err)
	}
	return s, nil
}

func (s *ResultStorage) ensureSchema(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS extraction_results (
			job_id     TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			content_id TEXT NOT NULL,
			result     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS extraction_results_session_idx
			ON extraction_results (session_id);
	`)
	return err
}

// PutResult upserts the result row for the key's job ID.
func (s *ResultStorage) PutResult(ctx context.Context, key store.ResultKey, result *common.ProcessingResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO extraction_results (job_id, session_id, content_id, result)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			content_id = EXCLUDED.content_id,
			result     = EXCLUDED.result
	`, key.JobID, key.SessionID, key.ContentID, payload)
	if err != nil {
		return fmt.Errorf("failed to store result for job %s: %w", key.JobID, err)
	}
	return nil
}

// GetResult loads the stored result for the job, or store.ErrNotFound.
func (s *ResultStorage) GetResult(ctx context.Context, jobID string) (*common.ProcessingResult, error) {
	var payload []byte
	err := s.conn.QueryRow(ctx,
		`SELECT result FROM extraction_results WHERE job_id = $1`, jobID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result for job %s: %w", jobID, err)
	}

	result := new(common.ProcessingResult)
	if err := json.Unmarshal(payload, result); err != nil {
		return nil, fmt.Errorf("failed to decode result for job %s: %w", jobID, err)
	}
	return result, nil
}
