package transcripts

import (
	"context"
	"database/sql"
	"errors"

	"coach-backend/internal/ingest"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `
SELECT id, user_id, file_name, format, lens, size_bytes, storage_key, content_sha256, cue_count,
       word_count, estimated_duration_mins, sentiment_score, sentiment_label, created_at
FROM transcripts`

// Create inserts a new transcript.
func (r *PGRepo) Create(ctx context.Context, t Transcript) error {
	const query = `
INSERT INTO transcripts (
    id,
    user_id,
    file_name,
    format,
    lens,
    size_bytes,
    storage_key,
    content_sha256,
    cue_count,
    word_count,
    estimated_duration_mins,
    sentiment_score,
    sentiment_label,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		t.ID,
		t.UserID,
		t.FileName,
		string(t.Format),
		t.Lens,
		t.SizeBytes,
		t.StorageKey,
		t.ContentSHA256,
		t.CueCount,
		t.Metrics.WordCount,
		t.Metrics.EstimatedDurationMins,
		t.Metrics.SentimentScore,
		t.Metrics.SentimentLabel,
		t.CreatedAt,
	)
	return err
}

// GetByID fetches a transcript by ID for a user.
func (r *PGRepo) GetByID(ctx context.Context, userID, id string) (Transcript, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE user_id = $1 AND id = $2
LIMIT 1`, userID, id)
	return scanOne(row)
}

// Get fetches a transcript by ID regardless of owner.
func (r *PGRepo) Get(ctx context.Context, id string) (Transcript, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE id = $1
LIMIT 1`, id)
	return scanOne(row)
}

// ListByUser lists transcripts ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Transcript, error) {
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
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Transcript{}
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimGuest reassigns transcripts owned by a guest user to an authenticated user.
func (r *PGRepo) ClaimGuest(ctx context.Context, guestUserID, authedUserID string) (int, error) {
	const query = `
UPDATE transcripts
SET user_id = $1
WHERE user_id = $2`
	res, err := r.DB.ExecContext(ctx, query, authedUserID, guestUserID)
	if err != nil {
		return 0, err
	}
	updated, _ := res.RowsAffected()
	return int(updated), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (Transcript, error) {
	t, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transcript{}, ErrNotFound
		}
		return Transcript{}, err
	}
	return t, nil
}

func scan(row rowScanner) (Transcript, error) {
	var t Transcript
	var format string
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.FileName,
		&format,
		&t.Lens,
		&t.SizeBytes,
		&t.StorageKey,
		&t.ContentSHA256,
		&t.CueCount,
		&t.Metrics.WordCount,
		&t.Metrics.EstimatedDurationMins,
		&t.Metrics.SentimentScore,
		&t.Metrics.SentimentLabel,
		&t.CreatedAt,
	)
	t.Format = ingest.Format(format)
	return t, err
}

var _ Repo = (*PGRepo)(nil)
