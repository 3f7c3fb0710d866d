package transcripts

import "context"

// Repo defines persistence operations for transcripts.
type Repo interface {
	Create(ctx context.Context, t Transcript) error
	// GetByID is owner scoped; Get is for background processing that already holds an owned reference.
	GetByID(ctx context.Context, userID, id string) (Transcript, error)
	Get(ctx context.Context, id string) (Transcript, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Transcript, error)
	ClaimGuest(ctx context.Context, guestUserID, authedUserID string) (int, error)
}
