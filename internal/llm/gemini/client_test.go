package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"coach-backend/internal/llm"
)

type fakeGenerator struct {
	reply  string
	err    error
	calls  int
	model  string
	prompt string
	cfg    *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.cfg = cfg
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply[:len(f.reply)/2]}, {Text: f.reply[len(f.reply)/2:]}}},
		}},
	}, nil
}

func bridal(t *testing.T) llm.Lens {
	t.Helper()
	lens, err := llm.LookupLens("bridal")
	if err != nil {
		t.Fatalf("lookup lens: %v", err)
	}
	return lens
}

func TestAnalyzeJoinsPartsAndRequestsJSON(t *testing.T) {
	gen := &fakeGenerator{reply: `{"summary":"ok"}`}
	c, err := newWithGenerators([]generator{gen}, "", 0)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var hash string
	ctx := llm.WithPromptHashSink(context.Background(), &hash)
	got, err := c.Analyze(ctx, llm.AnalyzeRequest{Lens: bridal(t), Transcript: "[00:00:01] hi"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got != `{"summary":"ok"}` {
		t.Fatalf("unexpected reply %q", got)
	}
	if gen.model != DefaultModel {
		t.Fatalf("expected default model, got %s", gen.model)
	}
	if gen.cfg == nil || gen.cfg.ResponseMIMEType != "application/json" {
		t.Fatalf("expected JSON response config")
	}
	if hash == "" || hash != llm.HashPrompt(gen.prompt) {
		t.Fatalf("prompt hash not recorded")
	}
}

func TestChatUsesRequestModel(t *testing.T) {
	gen := &fakeGenerator{reply: "June 14."}
	c, _ := newWithGenerators([]generator{gen}, "gemini-2.5-pro", 0)
	got, err := c.Chat(context.Background(), llm.ChatRequest{Lens: bridal(t), Transcript: "June 14", Message: "date?", Model: "gemini-2.5-flash-lite"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "June 14." || gen.model != "gemini-2.5-flash-lite" {
		t.Fatalf("unexpected reply %q model %s", got, gen.model)
	}
	if !strings.Contains(gen.prompt, "Coach response:") {
		t.Fatalf("expected chat prompt")
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		gen     *fakeGenerator
		model   string
		wantErr error
	}{
		{name: "provider failure", gen: &fakeGenerator{err: errors.New("permission denied")}, wantErr: llm.ErrService},
		{name: "empty reply", gen: &fakeGenerator{reply: "  "}, wantErr: llm.ErrService},
		{name: "unknown model", gen: &fakeGenerator{reply: "{}"}, model: "gpt-4o", wantErr: llm.ErrUnknownModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newWithGenerators([]generator{tt.gen}, "", 0)
			_, err := c.Analyze(context.Background(), llm.AnalyzeRequest{Lens: bridal(t), Model: tt.model})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRateLimitedKeyRotates(t *testing.T) {
	limited := &fakeGenerator{err: errors.New("Error 429, RESOURCE_EXHAUSTED")}
	healthy := &fakeGenerator{reply: "{}"}
	c, _ := newWithGenerators([]generator{limited, healthy}, "", 0)
	if _, err := c.Analyze(context.Background(), llm.AnalyzeRequest{Lens: bridal(t)}); err != nil {
		t.Fatalf("expected rotation to succeed, got %v", err)
	}
	if limited.calls != 1 || healthy.calls != 1 {
		t.Fatalf("unexpected calls limited=%d healthy=%d", limited.calls, healthy.calls)
	}
	if _, err := c.Analyze(context.Background(), llm.AnalyzeRequest{Lens: bridal(t)}); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if limited.calls != 1 {
		t.Fatalf("rotated key should stay current")
	}
}

func TestNewClientRejectsUnknownDefaultModel(t *testing.T) {
	if _, err := newWithGenerators([]generator{&fakeGenerator{}}, "gemini-1.0", 0); !errors.Is(err, llm.ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	if _, err := NewClient(context.Background(), []string{" "}, "", 0); err == nil {
		t.Fatalf("expected missing key error")
	}
}
