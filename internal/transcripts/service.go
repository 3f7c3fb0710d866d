package transcripts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"coach-backend/internal/ingest"
	"coach-backend/internal/llm"
	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/storage/object"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/shared/util"
	"coach-backend/internal/textstats"
)

// DefaultMaxBytes caps uploads when the service is built without an explicit limit.
const DefaultMaxBytes = 5 << 20

// Service contains business logic for transcripts.
type Service struct {
	Store       object.Store
	Repo        Repo
	Stats       textstats.Extractor
	DefaultLens string
	MaxBytes    int64
}

// Upload parses data, computes metrics, stores the raw bytes and records the transcript.
// Nothing is stored when parsing fails.
func (s *Service) Upload(ctx context.Context, userID, fileName, lens string, data []byte) (Transcript, error) {
	fileName = strings.TrimSpace(fileName)
	if userID == "" || fileName == "" {
		return Transcript{}, fmt.Errorf("%w: user and file name are required", ErrInvalidInput)
	}
	if int64(len(data)) > s.maxBytes() {
		return Transcript{}, ErrTooLarge
	}
	lensCfg, err := s.lens(lens)
	if err != nil {
		return Transcript{}, err
	}

	parsed, err := ingest.Parse(fileName, data)
	if err != nil {
		metrics.IncIngestFailed(ingestFailureReason(err))
		return Transcript{}, err
	}
	stats := s.Stats.Compute(parsed.Text)

	key, err := object.NewKey(userID, "transcripts", fileName)
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	size, err := s.Store.Put(ctx, key, contentType(parsed.Format), bytes.NewReader(data))
	if err != nil {
		return Transcript{}, fmt.Errorf("store transcript: %w", err)
	}

	t := Transcript{
		ID:            uuid.NewString(),
		UserID:        userID,
		FileName:      fileName,
		Format:        parsed.Format,
		Lens:          lensCfg.Name,
		SizeBytes:     size,
		StorageKey:    key,
		ContentSHA256: util.SHA256Hex(data),
		CueCount:      len(parsed.Cues),
		Metrics:       stats,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, t); err != nil {
		if delErr := s.Store.Delete(ctx, key); delErr != nil {
			telemetry.Warn("transcript.cleanup_failed", map[string]any{"storage_key": key, "error": delErr.Error()})
		}
		return Transcript{}, fmt.Errorf("record transcript: %w", err)
	}

	metrics.IncTranscriptIngested(string(t.Format))
	telemetry.Info("transcript.ingested", map[string]any{
		"transcript_id": t.ID,
		"user_id":       userID,
		"format":        t.Format,
		"lens":          t.Lens,
		"word_count":    stats.WordCount,
		"cue_count":     t.CueCount,
	})
	return t, nil
}

// Get returns an owned transcript.
func (s *Service) Get(ctx context.Context, userID, id string) (Transcript, error) {
	if userID == "" || id == "" {
		return Transcript{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, userID, id)
}

// List returns a page of the user's transcripts, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Transcript, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// Load re-reads and parses the stored file for t.
func (s *Service) Load(ctx context.Context, t Transcript) (ingest.Transcript, error) {
	return ingest.ParseObject(ctx, s.Store, t.StorageKey, t.FileName, s.maxBytes())
}

func (s *Service) lens(name string) (llm.Lens, error) {
	if strings.TrimSpace(name) == "" {
		name = s.DefaultLens
	}
	l, err := llm.LookupLens(name)
	if err != nil {
		return llm.Lens{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return l, nil
}

func (s *Service) maxBytes() int64 {
	if s.MaxBytes > 0 {
		return s.MaxBytes
	}
	return DefaultMaxBytes
}

func contentType(f ingest.Format) string {
	switch f {
	case ingest.FormatVTT:
		return "text/vtt"
	case ingest.FormatSRT:
		return "application/x-subrip"
	default:
		return "text/plain; charset=utf-8"
	}
}

func ingestFailureReason(err error) string {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ingest.ErrMalformedSubtitle):
		return "malformed_subtitle"
	case errors.Is(err, ingest.ErrEmptyTranscript):
		return "empty_transcript"
	default:
		return "other"
	}
}
