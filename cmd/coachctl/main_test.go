package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coach-backend/internal/llm"
	"coach-backend/internal/shared/config"
	"coach-backend/internal/watch"
)

type stubLLM struct{ reply string }

func (s stubLLM) Analyze(context.Context, llm.AnalyzeRequest) (string, error) { return s.reply, nil }
func (s stubLLM) Chat(context.Context, llm.ChatRequest) (string, error)       { return "", nil }

func testConfig() config.Config {
	return config.Config{Env: "dev", SpeakingRateWPM: 140, MaxUploadBytes: 1 << 20, DefaultLens: "bridal"}
}

func execute(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(cfg)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestParseCommand(t *testing.T) {
	srt := "1\n00:00:01,000 --> 00:00:03,000\nHello and welcome in.\n\n2\n00:00:04,000 --> 00:00:06,500\nWe love this gown.\n"
	path := writeFile(t, "consult.srt", srt)

	out, err := execute(t, testConfig(), "parse", path, "--text")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var got parseOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.FileName != "consult.srt" || got.Format != "srt" || got.Cues != 2 {
		t.Fatalf("unexpected output: %+v", got)
	}
	if got.Metrics.WordCount != 8 {
		t.Fatalf("expected 8 words, got %d", got.Metrics.WordCount)
	}
	if !strings.Contains(got.Text, "We love this gown.") {
		t.Fatalf("text missing: %q", got.Text)
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{name: "unsupported", file: "notes.pdf", body: "x", want: "unsupported"},
		{name: "empty", file: "blank.txt", body: "   \n", want: "no text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, testConfig(), "parse", writeFile(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestAnalyzeCommandWritesReport(t *testing.T) {
	orig := newLLM
	t.Cleanup(func() { newLLM = orig })
	newLLM = func(context.Context, config.Config) (llm.Client, error) {
		return stubLLM{reply: `{"summary":"Warm consult.","topics":["fit"],"strengths":["rapport"],"improvements":["ask budget"],"coaching_tips":["close with a hold"]}`}, nil
	}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	origNow := now
	t.Cleanup(func() { now = origNow })
	now = func() time.Time { return fixed }

	path := writeFile(t, "visit.txt", "The bride loved the second dress and asked about alterations.")
	docx := filepath.Join(t.TempDir(), "out.docx")

	out, err := execute(t, testConfig(), "analyze", path, "--report", docx)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var got watch.AnalysisFile
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Lens != "bridal" || got.Result.Summary != "Warm consult." || !got.AnalyzedAt.Equal(fixed) {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if got.SentimentSource != "lexicon" {
		t.Fatalf("expected lexicon sentiment, got %s", got.SentimentSource)
	}
	data, err := os.ReadFile(docx)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatalf("report is not a zip container")
	}
}

func TestAnalyzeCommandUnknownLens(t *testing.T) {
	orig := newLLM
	t.Cleanup(func() { newLLM = orig })
	newLLM = func(context.Context, config.Config) (llm.Client, error) { return stubLLM{}, nil }

	_, err := execute(t, testConfig(), "analyze", writeFile(t, "a.txt", "hello there"), "--lens", "podcast")
	if err == nil || !strings.Contains(err.Error(), "unknown lens") {
		t.Fatalf("expected unknown lens error, got %v", err)
	}
}

func TestWatchCommandRequiresDirs(t *testing.T) {
	_, err := execute(t, testConfig(), "watch")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected missing dirs error, got %v", err)
	}
}

func TestLensesCommand(t *testing.T) {
	out, err := execute(t, testConfig(), "lenses")
	if err != nil {
		t.Fatalf("lenses: %v", err)
	}
	if !strings.Contains(out, "bridal") || !strings.Contains(out, "(default)") {
		t.Fatalf("unexpected output: %q", out)
	}
}
