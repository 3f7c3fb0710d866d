// Package account moves data a visitor created as a guest onto their signed-in identity.
package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"coach-backend/internal/analyses"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/transcripts"
)

type Service struct {
	TranscriptRepo transcripts.Repo
	AnalysisRepo   analyses.Repo
}

type ClaimResult struct {
	MigratedTranscripts int `json:"migratedTranscripts"`
	MigratedAnalyses    int `json:"migratedAnalyses"`
}

func NewService(transcriptRepo transcripts.Repo, analysisRepo analyses.Repo) *Service {
	return &Service{TranscriptRepo: transcriptRepo, AnalysisRepo: analysisRepo}
}

// ClaimGuest reassigns everything owned by guestUserID. Running it twice is harmless.
func (s *Service) ClaimGuest(ctx context.Context, guestUserID, authedUserID string) (ClaimResult, error) {
	if strings.TrimSpace(guestUserID) == "" || strings.TrimSpace(authedUserID) == "" {
		return ClaimResult{}, errors.New("guestUserID and authedUserID are required")
	}

	var (
		res ClaimResult
		err error
	)
	trPG, trOK := s.TranscriptRepo.(*transcripts.PGRepo)
	anPG, anOK := s.AnalysisRepo.(*analyses.PGRepo)
	if trOK && anOK && trPG != nil && anPG != nil && trPG.DB != nil {
		res, err = claimWithTx(ctx, trPG.DB, guestUserID, authedUserID)
	} else {
		res, err = s.claimEach(ctx, guestUserID, authedUserID)
	}
	if err != nil {
		return ClaimResult{}, err
	}
	telemetry.Info("account.claim_guest", map[string]any{
		"guest_user_id":        guestUserID,
		"user_id":              authedUserID,
		"migrated_transcripts": res.MigratedTranscripts,
		"migrated_analyses":    res.MigratedAnalyses,
	})
	return res, nil
}

func (s *Service) claimEach(ctx context.Context, guestUserID, authedUserID string) (ClaimResult, error) {
	trCount, err := s.TranscriptRepo.ClaimGuest(ctx, guestUserID, authedUserID)
	if err != nil {
		return ClaimResult{}, err
	}
	anCount, err := s.AnalysisRepo.ClaimGuest(ctx, guestUserID, authedUserID)
	if err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{MigratedTranscripts: trCount, MigratedAnalyses: anCount}, nil
}

func claimWithTx(ctx context.Context, db *sql.DB, guestUserID, authedUserID string) (ClaimResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ClaimResult{}, err
	}
	defer tx.Rollback()

	trRes, err := tx.ExecContext(ctx, `UPDATE transcripts SET user_id = $1 WHERE user_id = $2`, authedUserID, guestUserID)
	if err != nil {
		return ClaimResult{}, err
	}
	trCount, _ := trRes.RowsAffected()

	anRes, err := tx.ExecContext(ctx, `UPDATE analyses SET user_id = $1 WHERE user_id = $2`, authedUserID, guestUserID)
	if err != nil {
		return ClaimResult{}, err
	}
	anCount, _ := anRes.RowsAffected()

	if err := tx.Commit(); err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{MigratedTranscripts: int(trCount), MigratedAnalyses: int(anCount)}, nil
}
