package transcripts

import (
	"errors"
	"time"

	"coach-backend/internal/ingest"
	"coach-backend/internal/textstats"
)

var (
	ErrNotFound     = errors.New("transcript not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTooLarge     = errors.New("transcript file too large")
)

// Transcript is an uploaded transcript file owned by a user, with its derived metrics.
type Transcript struct {
	ID            string
	UserID        string
	FileName      string
	Format        ingest.Format
	Lens          string
	SizeBytes     int64
	StorageKey    string
	ContentSHA256 string
	CueCount      int
	Metrics       textstats.Metrics
	CreatedAt     time.Time
}
