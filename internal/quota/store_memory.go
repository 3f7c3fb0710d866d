package quota

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	policy Policy
	now    func() time.Time
	data   map[string]Usage
}

func newMemoryStore(p Policy, now func() time.Time) *memoryStore {
	return &memoryStore{policy: p, now: now, data: make(map[string]Usage)}
}

// current must be called with mu held.
func (s *memoryStore) current(userID string) Usage {
	now := s.now()
	u, ok := s.data[userID]
	if !ok {
		u = s.policy.fresh(now)
	}
	s.policy.rollover(&u, now)
	return u
}

func (s *memoryStore) Ensure(ctx context.Context, userID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	s.data[userID] = u
	return u, nil
}

func (s *memoryStore) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	if n > 0 && u.Used+n > u.Limit {
		s.data[userID] = u
		return u, ErrLimitReached
	}
	if n > 0 {
		u.Used += n
	}
	s.data[userID] = u
	return u, nil
}

func (s *memoryStore) Refund(ctx context.Context, userID string, n int) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	if n > 0 {
		u.Used -= n
		if u.Used < 0 {
			u.Used = 0
		}
	}
	s.data[userID] = u
	return u, nil
}

func (s *memoryStore) Reset(ctx context.Context, userID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	u.Used = 0
	u.ResetsAt = s.now().Add(s.policy.Window)
	s.data[userID] = u
	return u, nil
}
