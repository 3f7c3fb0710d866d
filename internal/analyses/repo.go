package analyses

import (
	"context"
	"time"

	"coach-backend/internal/feedback"
)

// Repo defines persistence operations for analyses.
type Repo interface {
	Create(ctx context.Context, a Analysis) error
	GetByID(ctx context.Context, id string) (Analysis, error)
	// LatestForTranscript returns the newest analysis of an owned transcript.
	LatestForTranscript(ctx context.Context, userID, transcriptID string) (Analysis, error)
	ListByTranscript(ctx context.Context, userID, transcriptID string, limit, offset int) ([]Analysis, error)
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	Complete(ctx context.Context, id string, result feedback.Result, promptHash string, completedAt time.Time) error
	Fail(ctx context.Context, id, code, message string, completedAt time.Time) error
	ClaimGuest(ctx context.Context, guestUserID, authedUserID string) (int, error)
}
