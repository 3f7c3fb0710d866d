package analyses

import (
	"context"
	"sort"
	"sync"
	"time"

	"coach-backend/internal/feedback"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Analysis
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Analysis)}
}

// Create stores the analysis.
func (r *MemoryRepo) Create(ctx context.Context, a Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[a.ID] = a
	return nil
}

// GetByID returns an analysis by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

// LatestForTranscript returns the newest analysis for the transcript.
func (r *MemoryRepo) LatestForTranscript(ctx context.Context, userID, transcriptID string) (Analysis, error) {
	list, err := r.ListByTranscript(ctx, userID, transcriptID, 1, 0)
	if err != nil {
		return Analysis{}, err
	}
	if len(list) == 0 {
		return Analysis{}, ErrNotFound
	}
	return list[0], nil
}

// ListByTranscript returns a transcript's analyses newest first, with limit/offset.
func (r *MemoryRepo) ListByTranscript(ctx context.Context, userID, transcriptID string, limit, offset int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	out := make([]Analysis, 0)
	for _, a := range r.byID {
		if a.UserID == userID && a.TranscriptID == transcriptID {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []Analysis{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// MarkProcessing moves the analysis to processing.
func (r *MemoryRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	return r.update(ctx, id, func(a *Analysis) {
		a.Status = StatusProcessing
		a.StartedAt = &startedAt
		a.CompletedAt = nil
	})
}

// Complete stores the result and marks the analysis completed.
func (r *MemoryRepo) Complete(ctx context.Context, id string, result feedback.Result, promptHash string, completedAt time.Time) error {
	return r.update(ctx, id, func(a *Analysis) {
		a.Status = StatusCompleted
		a.Result = &result
		a.PromptHash = promptHash
		a.ErrorCode = ""
		a.ErrorMessage = ""
		a.CompletedAt = &completedAt
	})
}

// Fail records the failure and marks the analysis failed.
func (r *MemoryRepo) Fail(ctx context.Context, id, code, message string, completedAt time.Time) error {
	return r.update(ctx, id, func(a *Analysis) {
		a.Status = StatusFailed
		a.ErrorCode = code
		a.ErrorMessage = message
		a.CompletedAt = &completedAt
	})
}

// ClaimGuest moves every analysis owned by guestUserID to authedUserID.
func (r *MemoryRepo) ClaimGuest(ctx context.Context, guestUserID, authedUserID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	moved := 0
	for id, a := range r.byID {
		if a.UserID != guestUserID {
			continue
		}
		a.UserID = authedUserID
		r.byID[id] = a
		moved++
	}
	return moved, nil
}

func (r *MemoryRepo) update(ctx context.Context, id string, fn func(*Analysis)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&a)
	r.byID[id] = a
	return nil
}
