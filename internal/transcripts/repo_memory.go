package transcripts

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Transcript // id -> transcript
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Transcript),
	}
}

// Create stores a transcript.
func (r *MemoryRepo) Create(ctx context.Context, t Transcript) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[t.ID] = t
	return nil
}

// GetByID returns a transcript by ID for a user.
func (r *MemoryRepo) GetByID(ctx context.Context, userID, id string) (Transcript, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return Transcript{}, err
	}
	if t.UserID != userID {
		return Transcript{}, ErrNotFound
	}
	return t, nil
}

// Get returns a transcript by ID regardless of owner.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.data[id]
	if !ok {
		return Transcript{}, ErrNotFound
	}
	return t, nil
}

// ListByUser returns transcripts for a user, newest first, honoring limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	var out []Transcript
	for _, t := range r.data {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()

	if offset >= len(out) {
		return []Transcript{}, nil
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// ClaimGuest reassigns a guest's transcripts to an authenticated user.
func (r *MemoryRepo) ClaimGuest(ctx context.Context, guestUserID, authedUserID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.data {
		if t.UserID == guestUserID {
			t.UserID = authedUserID
			r.data[id] = t
			n++
		}
	}
	return n, nil
}

var _ Repo = (*MemoryRepo)(nil)
