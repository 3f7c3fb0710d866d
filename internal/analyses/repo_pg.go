package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coach-backend/internal/feedback"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `
SELECT id, transcript_id, user_id, lens, provider, model, status, prompt_hash, result,
       error_code, error_message, created_at, started_at, completed_at
FROM analyses`

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, a Analysis) error {
	const query = `
INSERT INTO analyses (
    id,
    transcript_id,
    user_id,
    lens,
    provider,
    model,
    status,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.DB.ExecContext(ctx, query,
		a.ID,
		a.TranscriptID,
		a.UserID,
		a.Lens,
		a.Provider,
		a.Model,
		a.Status,
		a.CreatedAt,
	)
	return err
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Analysis, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE id = $1
LIMIT 1`, id)
	return scanOne(row)
}

// LatestForTranscript returns the newest analysis for an owned transcript.
func (r *PGRepo) LatestForTranscript(ctx context.Context, userID, transcriptID string) (Analysis, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE user_id = $1 AND transcript_id = $2
ORDER BY created_at DESC
LIMIT 1`, userID, transcriptID)
	return scanOne(row)
}

// ListByTranscript lists a transcript's analyses newest first.
func (r *PGRepo) ListByTranscript(ctx context.Context, userID, transcriptID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, selectColumns+`
WHERE user_id = $1 AND transcript_id = $2
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`, userID, transcriptID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkProcessing moves the analysis to processing.
func (r *PGRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = 'processing',
    started_at = $1,
    completed_at = NULL
WHERE id = $2`
	return execOne(ctx, r.DB, query, startedAt, id)
}

// Complete stores the result and marks the analysis completed.
func (r *PGRepo) Complete(ctx context.Context, id string, result feedback.Result, promptHash string, completedAt time.Time) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis result: %w", err)
	}
	const query = `
UPDATE analyses
SET status = 'completed',
    result = $1::jsonb,
    prompt_hash = NULLIF($2, ''),
    error_code = NULL,
    error_message = NULL,
    completed_at = $3
WHERE id = $4`
	return execOne(ctx, r.DB, query, payload, promptHash, completedAt, id)
}

// Fail records the failure and marks the analysis failed.
func (r *PGRepo) Fail(ctx context.Context, id, code, message string, completedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = 'failed',
    error_code = $1,
    error_message = $2,
    completed_at = $3
WHERE id = $4`
	return execOne(ctx, r.DB, query, code, message, completedAt, id)
}

// ClaimGuest reassigns analyses owned by a guest user to an authenticated user.
func (r *PGRepo) ClaimGuest(ctx context.Context, guestUserID, authedUserID string) (int, error) {
	const query = `
UPDATE analyses
SET user_id = $1
WHERE user_id = $2`
	res, err := r.DB.ExecContext(ctx, query, authedUserID, guestUserID)
	if err != nil {
		return 0, err
	}
	updated, _ := res.RowsAffected()
	return int(updated), nil
}

func execOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (Analysis, error) {
	a, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	return a, nil
}

func scan(row rowScanner) (Analysis, error) {
	var a Analysis
	var promptHash, errorCode, errorMessage sql.NullString
	var result []byte
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(
		&a.ID,
		&a.TranscriptID,
		&a.UserID,
		&a.Lens,
		&a.Provider,
		&a.Model,
		&a.Status,
		&promptHash,
		&result,
		&errorCode,
		&errorMessage,
		&a.CreatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return Analysis{}, err
	}
	a.PromptHash = promptHash.String
	a.ErrorCode = errorCode.String
	a.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		t := startedAt.Time
		a.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	if len(result) > 0 && string(result) != "null" {
		var res feedback.Result
		if err := json.Unmarshal(result, &res); err != nil {
			return Analysis{}, fmt.Errorf("decode analysis result: %w", err)
		}
		a.Result = &res
	}
	return a, nil
}
