package llm

import (
	"context"
	"errors"
)

// Client abstracts LLM providers for transcript coaching.
type Client interface {
	// Analyze returns the raw model reply for a transcript analysis prompt.
	Analyze(ctx context.Context, req AnalyzeRequest) (string, error)
	// Chat returns the coach's free-text reply to the latest user message.
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// ModelLister is implemented by providers that restrict which models a request may select.
type ModelLister interface {
	Models() []string
}

// AnalyzeRequest captures the inputs needed for one transcript analysis.
type AnalyzeRequest struct {
	Lens       Lens
	Transcript string
	// Model overrides the client's default model when set.
	Model string
}

// ChatRequest is one coach chat turn grounded on a transcript.
type ChatRequest struct {
	Lens       Lens
	Transcript string
	History    []Turn
	Message    string
	Model      string
}

const (
	RoleUser  = "user"
	RoleCoach = "coach"
)

// Turn is a prior chat message. Role is "user" or "coach" ("assistant" is accepted as coach).
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrService wraps every provider failure: network, auth, rate limiting, empty replies.
var ErrService = errors.New("analysis service error")

// ErrUnknownModel is returned when a request selects a model the provider does not offer.
var ErrUnknownModel = errors.New("unknown model")

type fixJSONKey struct{}

// WithFixJSON returns a context signaling a fix-JSON retry with the given raw output.
func WithFixJSON(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, fixJSONKey{}, raw)
}

// FixJSONFromContext returns the raw JSON to repair, if any.
func FixJSONFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(fixJSONKey{})
	raw, ok := val.(string)
	return raw, ok
}

type promptHashKey struct{}

// WithPromptHashSink asks the provider to write the SHA-256 of the prompt it sends into sink.
func WithPromptHashSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, promptHashKey{}, sink)
}

// PromptHashSinkFromContext returns the sink installed by WithPromptHashSink.
func PromptHashSinkFromContext(ctx context.Context) (*string, bool) {
	sink, ok := ctx.Value(promptHashKey{}).(*string)
	return sink, ok
}

// AnalysisPrompt picks the prompt for an Analyze call, honoring a pending fix-JSON retry.
func AnalysisPrompt(ctx context.Context, req AnalyzeRequest) string {
	if raw, ok := FixJSONFromContext(ctx); ok {
		return BuildFixPrompt(req.Lens, raw)
	}
	return BuildAnalysisPrompt(req.Lens, req.Transcript)
}

// ValidateModel reports ErrUnknownModel when model is set and not in allowed.
func ValidateModel(model string, allowed []string) error {
	if model == "" || len(allowed) == 0 {
		return nil
	}
	for _, m := range allowed {
		if m == model {
			return nil
		}
	}
	return ErrUnknownModel
}
