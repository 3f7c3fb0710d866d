package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"coach-backend/internal/feedback"
	"coach-backend/internal/ingest"
	"coach-backend/internal/llm"
	"coach-backend/internal/pipeline"
	"coach-backend/internal/queue"
	"coach-backend/internal/quota"
	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/shared/util"
	"coach-backend/internal/transcripts"
)

const (
	QueueModeInline = "inline"
	QueueModeSQS    = "sqs"
)

// TranscriptSource resolves owned transcripts and their parsed content.
type TranscriptSource interface {
	Get(ctx context.Context, userID, id string) (transcripts.Transcript, error)
	Load(ctx context.Context, t transcripts.Transcript) (ingest.Transcript, error)
}

// Service contains business logic for analyses.
type Service struct {
	Repo        Repo
	Transcripts TranscriptSource
	Quota       *quota.Service
	LLM         llm.Client
	Queue       queue.Client
	QueueMode   string
	Provider    string
	Model       string
}

// Create consumes one quota unit, records a queued analysis and dispatches it.
// Empty lens and model fall back to the transcript's lens and the service default.
func (s *Service) Create(ctx context.Context, userID, transcriptID, lensName, model string) (Analysis, error) {
	if userID == "" || transcriptID == "" {
		return Analysis{}, fmt.Errorf("%w: user and transcript are required", ErrInvalidInput)
	}
	t, err := s.Transcripts.Get(ctx, userID, transcriptID)
	if err != nil {
		return Analysis{}, err
	}
	if strings.TrimSpace(lensName) == "" {
		lensName = t.Lens
	}
	lens, err := llm.LookupLens(lensName)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = s.Model
	}
	if lister, ok := s.LLM.(llm.ModelLister); ok {
		if err := llm.ValidateModel(model, lister.Models()); err != nil {
			return Analysis{}, fmt.Errorf("%w: %w %q", ErrInvalidInput, err, model)
		}
	}
	if s.queueMode() == QueueModeSQS && s.Queue == nil {
		return Analysis{}, ErrQueueNotConfigured
	}

	if s.Quota != nil {
		if _, err := s.Quota.Consume(ctx, userID, 1); err != nil {
			return Analysis{}, err
		}
	}

	a := Analysis{
		ID:           uuid.NewString(),
		TranscriptID: t.ID,
		UserID:       userID,
		Lens:         lens.Name,
		Provider:     s.Provider,
		Model:        model,
		Status:       StatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		s.refund(ctx, userID)
		return Analysis{}, fmt.Errorf("record analysis: %w", err)
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":    requestIDFromContext(ctx),
		"user_id":       userID,
		"transcript_id": t.ID,
		"analysis_id":   a.ID,
		"lens":          a.Lens,
		"model":         a.Model,
		"status":        StatusQueued,
		"queue_mode":    s.queueMode(),
	})

	if s.queueMode() == QueueModeSQS {
		msg := queue.NewMessage(a.ID, requestIDFromContext(ctx), a.CreatedAt)
		if err := s.Queue.Send(ctx, msg); err != nil {
			sendErr := fmt.Errorf("enqueue analysis: %w", err)
			s.fail(ctx, a, sendErr, nil)
			return Analysis{}, sendErr
		}
		return a, nil
	}

	go s.runAsync(detached(ctx), a.ID)
	return a, nil
}

// Get returns an owned analysis.
func (s *Service) Get(ctx context.Context, userID, id string) (Analysis, error) {
	if userID == "" || id == "" {
		return Analysis{}, ErrInvalidInput
	}
	a, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Analysis{}, err
	}
	if a.UserID != userID {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

// Latest returns the newest analysis of an owned transcript.
func (s *Service) Latest(ctx context.Context, userID, transcriptID string) (Analysis, error) {
	if userID == "" || transcriptID == "" {
		return Analysis{}, ErrInvalidInput
	}
	return s.Repo.LatestForTranscript(ctx, userID, transcriptID)
}

// List returns a transcript's analyses newest first.
func (s *Service) List(ctx context.Context, userID, transcriptID string, limit, offset int) ([]Analysis, error) {
	if userID == "" || transcriptID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByTranscript(ctx, userID, transcriptID, limit, offset)
}

func (s *Service) runAsync(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			a, err := s.Repo.GetByID(context.WithoutCancel(ctx), id)
			if err != nil {
				a = Analysis{ID: id}
			}
			if !a.Terminal() {
				s.fail(ctx, a, fmt.Errorf("panic: %v", r), nil)
			}
		}
	}()
	if err := s.ProcessAnalysis(ctx, id); err != nil {
		telemetry.Error("analysis.process_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"analysis_id": id,
			"error":       sanitizeError(err),
		})
	}
}

// ProcessAnalysis runs a queued analysis to completion or failure.
// Analyses already in a terminal state are left untouched. A failed analysis is a
// recorded outcome, not an error; errors mean the outcome could not be recorded.
func (s *Service) ProcessAnalysis(ctx context.Context, id string) error {
	a, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("analysis lookup id=%s: %w", id, err)
	}
	if a.Terminal() {
		telemetry.Info("analysis.skip_terminal", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"analysis_id": id,
			"status":      a.Status,
		})
		return nil
	}

	startedAt := time.Now().UTC()
	if err := s.Repo.MarkProcessing(ctx, id, startedAt); err != nil {
		return fmt.Errorf("set processing id=%s: %w", id, err)
	}
	previous := a.Status
	a.Status = StatusProcessing
	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           a.UserID,
		"transcript_id":     a.TranscriptID,
		"analysis_id":       a.ID,
		"status":            StatusProcessing,
		"status_transition": previous + "->" + StatusProcessing,
	})

	t, err := s.Transcripts.Get(ctx, a.UserID, a.TranscriptID)
	if err != nil {
		return s.fail(ctx, a, storageError(fmt.Errorf("transcript lookup id=%s: %w", a.TranscriptID, err)), &startedAt)
	}
	parsed, err := s.Transcripts.Load(ctx, t)
	if err != nil {
		return s.fail(ctx, a, storageError(fmt.Errorf("load transcript %s: %w", t.StorageKey, err)), &startedAt)
	}
	lens, err := llm.LookupLens(a.Lens)
	if err != nil {
		return s.fail(ctx, a, err, &startedAt)
	}

	runner := pipeline.Runner{LLM: llm.WithRetry(s.LLM, map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"analysis_id": a.ID,
	})}
	llmStart := time.Now()
	result, promptHash, err := runner.Analyze(ctx, lens, a.Model, parsed)
	metrics.ObserveLLMDurationMs(float64(time.Since(llmStart).Microseconds()) / 1000.0)
	if err != nil {
		return s.fail(ctx, a, err, &startedAt)
	}

	completedAt := time.Now().UTC()
	if err := s.Repo.Complete(ctx, a.ID, result, promptHash, completedAt); err != nil {
		return s.fail(ctx, a, storageError(fmt.Errorf("set analysis result: %w", err)), &startedAt)
	}
	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           a.UserID,
		"transcript_id":     a.TranscriptID,
		"analysis_id":       a.ID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"prompt_hash":       promptHash,
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
	return nil
}

// fail records the failure and gives the quota unit back. It only returns an error
// when the failure itself could not be stored.
func (s *Service) fail(ctx context.Context, a Analysis, cause error, startedAt *time.Time) error {
	code := classifyFailure(cause)
	from := a.Status
	if from == "" {
		from = StatusProcessing
	}
	msg := sanitizeError(cause)
	completedAt := time.Now().UTC()
	var updateErr error
	if err := s.Repo.Fail(context.WithoutCancel(ctx), a.ID, code, msg, completedAt); err != nil {
		updateErr = fmt.Errorf("record failure id=%s: %w", a.ID, err)
		telemetry.Error("analysis.fail_update_failed", map[string]any{
			"analysis_id": a.ID,
			"error":       err.Error(),
			"cause":       msg,
		})
	}
	if a.UserID != "" {
		s.refund(ctx, a.UserID)
	}
	metrics.IncAnalysisFailed(code)
	if startedAt != nil {
		metrics.ObserveAnalysisDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Warn("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           a.UserID,
		"transcript_id":     a.TranscriptID,
		"analysis_id":       a.ID,
		"status":            StatusFailed,
		"status_transition": from + "->" + StatusFailed,
		"error_code":        code,
		"error":             msg,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
	return updateErr
}

func (s *Service) refund(ctx context.Context, userID string) {
	if s.Quota == nil {
		return
	}
	if _, err := s.Quota.Refund(context.WithoutCancel(ctx), userID, 1); err != nil {
		telemetry.Warn("quota.refund_failed", map[string]any{"user_id": userID, "error": err.Error()})
	}
}

func (s *Service) queueMode() string {
	if strings.EqualFold(strings.TrimSpace(s.QueueMode), QueueModeSQS) {
		return QueueModeSQS
	}
	return QueueModeInline
}

type stageError struct {
	code string
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func storageError(err error) error {
	return &stageError{code: ErrorCodeStorage, err: err}
}

func classifyFailure(err error) string {
	var stage *stageError
	switch {
	case err == nil:
		return ErrorCodeInternal
	case errors.As(err, &stage):
		return stage.code
	case errors.Is(err, feedback.ErrParse):
		return ErrorCodeParse
	case errors.Is(err, llm.ErrService), errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeService
	default:
		return ErrorCodeInternal
	}
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

// maxErrorRunes bounds stored failure messages.
const maxErrorRunes = 500

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	return util.Truncate(strings.TrimSpace(msg), maxErrorRunes)
}
