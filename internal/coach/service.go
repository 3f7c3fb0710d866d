// Package coach answers follow-up questions about one transcript, grounded on its content.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coach-backend/internal/ingest"
	"coach-backend/internal/llm"
	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/transcripts"
)

const (
	DefaultMaxHistory = 20
	MaxMessageChars   = 2000

	OutcomeAnswered    = "answered"
	OutcomeUnsupported = "unsupported"
	OutcomeError       = "error"
)

var ErrInvalidInput = errors.New("invalid chat request")

// TranscriptSource resolves owned transcripts and their parsed content.
type TranscriptSource interface {
	Get(ctx context.Context, userID, id string) (transcripts.Transcript, error)
	Load(ctx context.Context, t transcripts.Transcript) (ingest.Transcript, error)
}

// Request is one chat turn. History holds the earlier turns, oldest first.
type Request struct {
	Message string     `json:"message"`
	History []llm.Turn `json:"history"`
	Lens    string     `json:"lens"`
	Model   string     `json:"model"`
}

// Reply is the coach's answer. Grounded is false when the guard answered without the model.
type Reply struct {
	Reply    string `json:"reply"`
	Grounded bool   `json:"grounded"`
}

type Service struct {
	Transcripts TranscriptSource
	LLM         llm.Client
	Model       string
	MaxHistory  int
}

// Ask answers req.Message about the user's transcript. Questions whose keywords never appear
// in the transcript get llm.NotInTranscriptReply without a model call.
func (s *Service) Ask(ctx context.Context, userID, transcriptID string, req Request) (Reply, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return Reply{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if len([]rune(msg)) > MaxMessageChars {
		return Reply{}, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, MaxMessageChars)
	}

	t, err := s.Transcripts.Get(ctx, userID, transcriptID)
	if err != nil {
		return Reply{}, err
	}
	lensName := req.Lens
	if strings.TrimSpace(lensName) == "" {
		lensName = t.Lens
	}
	lens, err := llm.LookupLens(lensName)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.Model
	}
	if lister, ok := s.LLM.(llm.ModelLister); ok {
		if err := llm.ValidateModel(model, lister.Models()); err != nil {
			return Reply{}, fmt.Errorf("%w: %w %q", ErrInvalidInput, err, model)
		}
	}

	parsed, err := s.Transcripts.Load(ctx, t)
	if err != nil {
		metrics.IncChatTurn(OutcomeError)
		return Reply{}, fmt.Errorf("load transcript %s: %w", t.ID, err)
	}

	if !Supported(parsed.Text, msg) {
		metrics.IncChatTurn(OutcomeUnsupported)
		telemetry.Info("coach.unsupported_question", map[string]any{
			"user_id":       userID,
			"transcript_id": t.ID,
			"keywords":      Keywords(msg),
		})
		return Reply{Reply: llm.NotInTranscriptReply}, nil
	}

	if s.LLM == nil {
		metrics.IncChatTurn(OutcomeError)
		return Reply{}, fmt.Errorf("%w: no model client configured", llm.ErrService)
	}
	client := llm.WithRetry(s.LLM, map[string]any{"transcript_id": t.ID, "user_id": userID})
	start := time.Now()
	answer, err := client.Chat(ctx, llm.ChatRequest{
		Lens:       lens,
		Transcript: parsed.Timed(),
		History:    s.trimHistory(req.History),
		Message:    msg,
		Model:      model,
	})
	metrics.ObserveLLMDurationMs(float64(time.Since(start).Microseconds()) / 1000.0)
	if err != nil {
		metrics.IncChatTurn(OutcomeError)
		return Reply{}, err
	}
	metrics.IncChatTurn(OutcomeAnswered)
	return Reply{Reply: strings.TrimSpace(answer), Grounded: true}, nil
}

func (s *Service) trimHistory(history []llm.Turn) []llm.Turn {
	limit := s.MaxHistory
	if limit <= 0 {
		limit = DefaultMaxHistory
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}
