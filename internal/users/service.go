package users

import (
	"context"
	"fmt"
	"strings"

	"coach-backend/internal/shared/telemetry"
)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// UpsertFromAuth records the identity returned by a sign-in. Guest ids are rejected.
func (s *Service) UpsertFromAuth(ctx context.Context, user User) error {
	user.ID = strings.TrimSpace(user.ID)
	user.Email = strings.TrimSpace(user.Email)
	if user.ID == "" || user.Email == "" || strings.HasPrefix(user.ID, "guest:") {
		return fmt.Errorf("%w: id and email are required", ErrInvalidInput)
	}
	if err := s.Repo.Upsert(ctx, user); err != nil {
		return err
	}
	telemetry.Info("users.upserted", map[string]any{"user_id": user.ID})
	return nil
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, userID)
}
