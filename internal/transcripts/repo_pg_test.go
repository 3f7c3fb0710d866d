package transcripts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"coach-backend/internal/ingest"
	"coach-backend/internal/textstats"
)

var transcriptColumns = []string{
	"id", "user_id", "file_name", "format", "lens", "size_bytes", "storage_key", "content_sha256", "cue_count",
	"word_count", "estimated_duration_mins", "sentiment_score", "sentiment_label", "created_at",
}

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	tr := Transcript{
		ID:            "t-1",
		UserID:        "user-1",
		FileName:      "consult.vtt",
		Format:        ingest.FormatVTT,
		Lens:          "bridal",
		SizeBytes:     120,
		StorageKey:    "abc/transcripts/x_consult.vtt",
		ContentSHA256: "deadbeef",
		CueCount:      4,
		Metrics:       textstats.Metrics{WordCount: 100, EstimatedDurationMins: 0.71, SentimentScore: 62, SentimentLabel: "positive"},
		CreatedAt:     time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO transcripts").
		WithArgs(tr.ID, tr.UserID, tr.FileName, "vtt", tr.Lens, tr.SizeBytes, tr.StorageKey, tr.ContentSHA256,
			tr.CueCount, 100, 0.71, 62, "positive", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), tr); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}

	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, user_id, file_name").
		WithArgs("user-1", "t-1").
		WillReturnRows(sqlmock.NewRows(transcriptColumns).
			AddRow("t-1", "user-1", "consult.srt", "srt", "bridal", 99, "key", "sha", 2, 13, 0.09, 70, "positive", created))

	got, err := repo.GetByID(context.Background(), "user-1", "t-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Format != ingest.FormatSRT || got.Metrics.WordCount != 13 || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected transcript %+v", got)
	}

	mock.ExpectQuery("SELECT id, user_id, file_name").
		WithArgs("user-1", "missing").
		WillReturnRows(sqlmock.NewRows(transcriptColumns))
	if _, err := repo.GetByID(context.Background(), "user-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListByUserClampsLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}

	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs("user-1", 100, 0).
		WillReturnRows(sqlmock.NewRows(transcriptColumns).
			AddRow("t-2", "user-1", "b.txt", "txt", "sales", 5, "k2", "s2", 0, 1, 0.01, 50, "neutral", time.Now()).
			AddRow("t-1", "user-1", "a.txt", "txt", "sales", 5, "k1", "s1", 0, 1, 0.01, 50, "neutral", time.Now()))

	got, err := repo.ListByUser(context.Background(), "user-1", 500, -3)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t-2" {
		t.Fatalf("unexpected list %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoClaimGuest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}

	mock.ExpectExec("UPDATE transcripts").
		WithArgs("user-1", "guest:abc").
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := repo.ClaimGuest(context.Background(), "guest:abc", "user-1")
	if err != nil || n != 2 {
		t.Fatalf("ClaimGuest: n=%d err=%v", n, err)
	}
}
