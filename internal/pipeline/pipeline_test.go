package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coach-backend/internal/feedback"
	"coach-backend/internal/llm"
	"coach-backend/internal/textstats"
)

const (
	sampleSRT = "1\n00:00:01,000 --> 00:00:04,000\nThanks so much, I love this look.\n\n2\n00:01:05,000 --> 00:01:09,000\nWhat budget range works for you?\n"

	validReply = `{"summary": "Short consult.", "sentiment_score": 81, "strengths": ["Warm"], "consult_scorecard": {"decision_safety": 7}, "timeline": [{"timestamp": "00:01:05", "type": "pricing", "description": "Budget"}]}`
)

type scriptedLLM struct {
	replies  []string
	errs     []error
	requests []llm.AnalyzeRequest
	fixed    []string
}

func (s *scriptedLLM) Analyze(ctx context.Context, req llm.AnalyzeRequest) (string, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if raw, ok := llm.FixJSONFromContext(ctx); ok {
		s.fixed = append(s.fixed, raw)
	}
	if sink, ok := llm.PromptHashSinkFromContext(ctx); ok {
		*sink = llm.HashPrompt(llm.AnalysisPrompt(ctx, req))
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return validReply, nil
}

func (s *scriptedLLM) Chat(context.Context, llm.ChatRequest) (string, error) { return "", nil }

func TestRunProducesOutcome(t *testing.T) {
	client := &scriptedLLM{}
	r := Runner{LLM: client}

	out, err := r.Run(context.Background(), "consult.srt", []byte(sampleSRT), "bridal", "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Metrics.WordCount != 13 {
		t.Fatalf("expected 13 words, got %d", out.Metrics.WordCount)
	}
	if out.Result.Summary != "Short consult." || out.Result.SentimentScore == nil || *out.Result.SentimentScore != 81 {
		t.Fatalf("unexpected result: %+v", out.Result)
	}
	if out.PromptHash == "" {
		t.Fatalf("expected prompt hash to be captured")
	}
	if out.Lens.Name != "bridal" || out.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected lens/model: %s %s", out.Lens.Name, out.Model)
	}
	sent := client.requests[0].Transcript
	if !strings.Contains(sent, "[00:00:01] Thanks so much") || !strings.Contains(sent, "[00:01:05] What budget") {
		t.Fatalf("expected timed transcript, got %q", sent)
	}
}

func TestAnalyzeRepairsUnparsableReply(t *testing.T) {
	client := &scriptedLLM{replies: []string{"Sure! Here is the analysis", validReply}}
	r := Runner{LLM: client}
	lens, _ := llm.LookupLens("bridal")
	tr, _, err := r.Ingest("consult.srt", []byte(sampleSRT))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	result, _, err := r.Analyze(context.Background(), lens, "", tr)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(client.fixed) != 1 || client.fixed[0] != "Sure! Here is the analysis" {
		t.Fatalf("expected one repair carrying the raw reply, got %v", client.fixed)
	}
	if result.Scorecard["decision_safety"] != 7 {
		t.Fatalf("unexpected scorecard: %v", result.Scorecard)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	lens, _ := llm.LookupLens("bridal")
	tr, _, err := (&Runner{}).Ingest("notes.txt", []byte("hello there"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	boom := errors.New("http status 500")

	cases := []struct {
		name    string
		client  llm.Client
		wantErr error
		wantMsg string
	}{
		{name: "no client", client: nil, wantErr: llm.ErrService},
		{name: "first call fails", client: &scriptedLLM{errs: []error{boom}}, wantErr: boom, wantMsg: "llm analyze: "},
		{name: "repair call fails", client: &scriptedLLM{replies: []string{"nope"}, errs: []error{nil, boom}}, wantErr: boom, wantMsg: "llm analyze retry: "},
		{name: "repair still unparsable", client: &scriptedLLM{replies: []string{"nope", "still nope"}}, wantErr: feedback.ErrParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Runner{LLM: tc.client}
			_, _, err := r.Analyze(context.Background(), lens, "", tr)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantMsg != "" && !strings.HasPrefix(err.Error(), tc.wantMsg) {
				t.Fatalf("expected prefix %q, got %q", tc.wantMsg, err.Error())
			}
		})
	}
}

func TestIngestLimits(t *testing.T) {
	r := Runner{MaxBytes: 8}
	if _, _, err := r.Ingest("notes.txt", []byte("more than eight bytes")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := r.Run(context.Background(), "notes.txt", []byte("hi"), "wedding-planner", ""); !errors.Is(err, llm.ErrUnknownLens) {
		t.Fatalf("expected unknown lens error, got %v", err)
	}
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "call.srt")
	if err := os.WriteFile(path, []byte(sampleSRT), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := (&Runner{LLM: &scriptedLLM{}}).RunFile(context.Background(), path, "sales", "")
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if out.FileName != "call.srt" || out.Lens.Name != "sales" {
		t.Fatalf("unexpected outcome: %s %s", out.FileName, out.Lens.Name)
	}

	if _, err := ReadFile(path, 10); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := ReadFile(filepath.Join(dir, "missing.srt"), 0); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestSentimentScore(t *testing.T) {
	m := textstats.Metrics{SentimentScore: 55}
	score := 90

	if got, src := SentimentScore(m, &feedback.Result{SentimentScore: &score}); got != 90 || src != "model" {
		t.Fatalf("expected model score, got %d %s", got, src)
	}
	if got, src := SentimentScore(m, &feedback.Result{}); got != 55 || src != "lexicon" {
		t.Fatalf("expected lexicon score, got %d %s", got, src)
	}
	if got, src := SentimentScore(m, nil); got != 55 || src != "lexicon" {
		t.Fatalf("expected lexicon score, got %d %s", got, src)
	}
}
