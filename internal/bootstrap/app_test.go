package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"coach-backend/internal/llm"
	"coach-backend/internal/shared/config"
)

func devConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:               "dev",
		LLMProvider:       "gemini",
		ObjectStoreType:   "local",
		LocalStoreDir:     t.TempDir(),
		SpeakingRateWPM:   140,
		AnalysisQueueMode: "inline",
		QuotaLimit:        10,
	}
}

func TestBuildDevUsesMemoryAndUnconfiguredLLM(t *testing.T) {
	app, err := Build(context.Background(), devConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if app.DB != nil || app.Queue != nil {
		t.Fatalf("expected memory repos and no queue")
	}
	if _, err := app.LLM.Analyze(context.Background(), llm.AnalyzeRequest{}); !errors.Is(err, llm.ErrService) {
		t.Fatalf("expected ErrService from unconfigured client, got %v", err)
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/api/v1/lenses", "/api/v1/quota", "/api/v1/transcripts"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Guest-Id", "g1")
		resp := httptest.NewRecorder()
		app.Router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, resp.Code, resp.Body.String())
		}
	}
}

func TestBuildRejectsMissingSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "production without database", mutate: func(c *config.Config) { c.Env = "production" }},
		{name: "sqs mode without queue", mutate: func(c *config.Config) { c.AnalysisQueueMode = "sqs" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := devConfig(t)
			tc.mutate(&cfg)
			if _, err := Build(context.Background(), cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBuildLLMRequiresKeyOutsideDev(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "staging"
	if _, err := BuildLLM(context.Background(), cfg); err == nil {
		t.Fatalf("expected missing key error")
	}
	cfg.LLMProvider = "openai"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.LLMModel = "gpt-4o-mini"
	client, err := BuildLLM(context.Background(), cfg)
	if err != nil || client == nil {
		t.Fatalf("expected openai client, got %v", err)
	}
}
