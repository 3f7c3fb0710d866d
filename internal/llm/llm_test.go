package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLookupLens(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "default", in: "", want: DefaultLens},
		{name: "case insensitive", in: " Sales ", want: "sales"},
		{name: "unknown", in: "podcast", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lens, err := LookupLens(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownLens) {
					t.Fatalf("expected ErrUnknownLens, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if lens.Name != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, lens.Name)
			}
		})
	}
}

func TestBridalLensCatalog(t *testing.T) {
	lens, err := LookupLens("bridal")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(lens.Scorecard) != 7 || lens.Scorecard[0] != "authority_and_leadership" {
		t.Fatalf("unexpected scorecard %v", lens.Scorecard)
	}
	if !lens.AllowsMissedQuestion("Budget Range") || lens.AllowsMissedQuestion("favorite color") {
		t.Fatalf("missed question allow-list not applied")
	}
	if !lens.AllowsTimelineType("next_step") {
		t.Fatalf("expected next_step timeline type")
	}
	if !strings.Contains(lens.Playbook, "Name the package, anchor the value, and confirm fit.") {
		t.Fatalf("playbook missing pricing guidance")
	}
	if got := LensNames(); len(got) < 2 || got[0] != "bridal" {
		t.Fatalf("unexpected lens names %v", got)
	}
}

func TestLoadLensesRejectsBadCatalog(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no default", yaml: "lenses:\n  - name: sales\n    scorecard: [closing]\n"},
		{name: "no scorecard", yaml: "lenses:\n  - name: bridal\n"},
		{name: "duplicate", yaml: "lenses:\n  - name: bridal\n    scorecard: [a]\n  - name: bridal\n    scorecard: [a]\n"},
		{name: "not yaml", yaml: "lenses: [::"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadLenses([]byte(tt.yaml)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBuildAnalysisPrompt(t *testing.T) {
	lens, _ := LookupLens("bridal")
	prompt := BuildAnalysisPrompt(lens, "[00:00:01] Hello")
	for _, want := range []string{
		"Rachael Peffer",
		"timeless strategy, quiet power, direct feedback",
		`"sentiment_score"`,
		`"authority_and_leadership"`,
		`"trial expectations"`,
		`"next_step"`,
		"Transcript:\n[00:00:01] Hello",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if BuildAnalysisPrompt(lens, "[00:00:01] Hello") != prompt {
		t.Fatalf("prompt is not deterministic")
	}
}

func TestAnalysisPromptHonorsFixJSON(t *testing.T) {
	lens, _ := LookupLens("")
	ctx := WithFixJSON(context.Background(), "{broken")
	prompt := AnalysisPrompt(ctx, AnalyzeRequest{Lens: lens, Transcript: "hi"})
	if !strings.Contains(prompt, "JSON repair") || !strings.Contains(prompt, "{broken") {
		t.Fatalf("expected fix prompt, got %q", prompt)
	}
	if strings.Contains(AnalysisPrompt(context.Background(), AnalyzeRequest{Lens: lens, Transcript: "hi"}), "JSON repair") {
		t.Fatalf("fix prompt used without fix context")
	}
}

func TestRenderConversation(t *testing.T) {
	history := []Turn{
		{Role: "user", Content: "What did she say about the date?"},
		{Role: "assistant", Content: "June 14."},
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "And the budget?"},
	}
	got := RenderConversation(history, "And the budget?")
	want := "User: What did she say about the date?\nCoach: June 14.\nUser: And the budget?"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	got = RenderConversation(history[:2], "Anything else?")
	if !strings.HasSuffix(got, "User: Anything else?") {
		t.Fatalf("expected new message appended, got %q", got)
	}
}

func TestBuildChatPrompt(t *testing.T) {
	lens, _ := LookupLens("bridal")
	prompt := BuildChatPrompt(ChatRequest{Lens: lens, Transcript: "We talked about June.", Message: "When is it?"})
	for _, want := range []string{
		"You are a Bridal Beauty Consultation Coach for Rachael Peffer.",
		"Answer ONLY from the transcript provided.",
		`"That isn't in the transcript."`,
		"User: When is it?",
		"Coach response:",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("chat prompt missing %q", want)
		}
	}
}

func TestValidateModel(t *testing.T) {
	allowed := []string{"a", "b"}
	if err := ValidateModel("", allowed); err != nil {
		t.Fatalf("empty model should use default: %v", err)
	}
	if err := ValidateModel("b", allowed); err != nil {
		t.Fatalf("expected b allowed: %v", err)
	}
	if err := ValidateModel("c", allowed); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestHashPrompt(t *testing.T) {
	if HashPrompt("a") == HashPrompt("b") {
		t.Fatalf("expected distinct hashes")
	}
	if len(HashPrompt("a")) != 64 {
		t.Fatalf("expected hex sha256")
	}
}
