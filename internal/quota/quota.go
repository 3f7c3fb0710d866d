// Package quota tracks each user's analysis allowance over a rolling window.
package quota

import (
	"context"
	"errors"
	"time"
)

// ErrLimitReached indicates the user has used the whole allowance for the current window.
var ErrLimitReached = errors.New("analysis limit reached")

const (
	DefaultPlan   = "Starter"
	DefaultLimit  = 10
	DefaultWindow = 7 * 24 * time.Hour
)

// Usage is a user's consumption snapshot.
type Usage struct {
	Plan     string    `json:"plan"`
	Limit    int       `json:"limit"`
	Used     int       `json:"used"`
	ResetsAt time.Time `json:"resetsAt"`
}

// Remaining is the number of analyses left in the window.
func (u Usage) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}

// Policy is the plan applied to users seen for the first time.
type Policy struct {
	Plan   string
	Limit  int
	Window time.Duration
}

func (p Policy) normalized() Policy {
	if p.Plan == "" {
		p.Plan = DefaultPlan
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	return p
}

func (p Policy) fresh(now time.Time) Usage {
	return Usage{Plan: p.Plan, Limit: p.Limit, ResetsAt: now.Add(p.Window)}
}

// rollover resets usage whose window has ended. It reports whether anything changed.
func (p Policy) rollover(u *Usage, now time.Time) bool {
	if now.Before(u.ResetsAt) {
		return false
	}
	u.Used = 0
	u.ResetsAt = now.Add(p.Window)
	return true
}

type store interface {
	Ensure(ctx context.Context, userID string) (Usage, error)
	Consume(ctx context.Context, userID string, n int) (Usage, error)
	Refund(ctx context.Context, userID string, n int) (Usage, error)
	Reset(ctx context.Context, userID string) (Usage, error)
}

// Service manages usage via an underlying store.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService(p Policy) *Service {
	return &Service{store: newMemoryStore(p.normalized(), nowUTC)}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(s *PGStore) *Service {
	return &Service{store: s}
}

// Get returns the current usage, starting a fresh window when the previous one ended.
func (s *Service) Get(ctx context.Context, userID string) (Usage, error) {
	return s.store.Ensure(ctx, userID)
}

// Consume takes n units or fails with ErrLimitReached without changing usage.
func (s *Service) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	return s.store.Consume(ctx, userID, n)
}

// Refund gives back n units, never going below zero.
func (s *Service) Refund(ctx context.Context, userID string, n int) (Usage, error) {
	return s.store.Refund(ctx, userID, n)
}

// Reset sets usage to zero and restarts the window.
func (s *Service) Reset(ctx context.Context, userID string) (Usage, error) {
	return s.store.Reset(ctx, userID)
}

func nowUTC() time.Time { return time.Now().UTC() }
