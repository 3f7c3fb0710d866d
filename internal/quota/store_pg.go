package quota

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGStore keeps usage in the analysis_quota table, locking the row for each change.
type PGStore struct {
	DB     *sql.DB
	policy Policy
	now    func() time.Time
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB, p Policy) *PGStore {
	return &PGStore{DB: db, policy: p.normalized(), now: nowUTC}
}

func (s *PGStore) Ensure(ctx context.Context, userID string) (Usage, error) {
	return s.update(ctx, userID, func(*Usage) error { return nil })
}

func (s *PGStore) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	return s.update(ctx, userID, func(u *Usage) error {
		if n <= 0 {
			return nil
		}
		if u.Used+n > u.Limit {
			return ErrLimitReached
		}
		u.Used += n
		return nil
	})
}

func (s *PGStore) Refund(ctx context.Context, userID string, n int) (Usage, error) {
	return s.update(ctx, userID, func(u *Usage) error {
		if n > 0 {
			u.Used = max(u.Used-n, 0)
		}
		return nil
	})
}

func (s *PGStore) Reset(ctx context.Context, userID string) (Usage, error) {
	return s.update(ctx, userID, func(u *Usage) error {
		u.Used = 0
		u.ResetsAt = s.now().Add(s.policy.Window)
		return nil
	})
}

// update runs fn on the locked row inside a transaction and persists the result.
// When fn fails the transaction is rolled back and the unchanged usage is returned.
func (s *PGStore) update(ctx context.Context, userID string, fn func(*Usage) error) (u Usage, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Usage{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	u, err = s.lockAndEnsure(ctx, tx, userID)
	if err != nil {
		return Usage{}, err
	}
	before := u
	if err = fn(&u); err != nil {
		return before, err
	}
	if u != before {
		if _, err = tx.ExecContext(ctx, `
UPDATE analysis_quota SET used = $1, resets_at = $2 WHERE user_id = $3`, u.Used, u.ResetsAt, userID); err != nil {
			return Usage{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return Usage{}, err
	}
	return u, nil
}

func (s *PGStore) lockAndEnsure(ctx context.Context, tx *sql.Tx, userID string) (Usage, error) {
	var u Usage
	row := tx.QueryRowContext(ctx, `
SELECT plan, limit_amount, used, resets_at FROM analysis_quota WHERE user_id = $1 FOR UPDATE`, userID)
	err := row.Scan(&u.Plan, &u.Limit, &u.Used, &u.ResetsAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return Usage{}, err
		}
		u = s.policy.fresh(s.now())
		if _, err = tx.ExecContext(ctx, `
INSERT INTO analysis_quota (user_id, plan, limit_amount, used, resets_at) VALUES ($1, $2, $3, $4, $5)`,
			userID, u.Plan, u.Limit, u.Used, u.ResetsAt); err != nil {
			return Usage{}, err
		}
		return u, nil
	}

	if s.policy.rollover(&u, s.now()) {
		if _, err = tx.ExecContext(ctx, `
UPDATE analysis_quota SET used = $1, resets_at = $2 WHERE user_id = $3`, u.Used, u.ResetsAt, userID); err != nil {
			return Usage{}, err
		}
	}
	return u, nil
}
