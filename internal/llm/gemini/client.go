// Package gemini implements llm.Client on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"coach-backend/internal/llm"
	"coach-backend/internal/shared/telemetry"
)

// DefaultModel is used when neither config nor the request selects a model.
const DefaultModel = "gemini-2.5-flash"

// Models lists the selectable models, preview models first.
var Models = []string{
	"gemini-3.0-pro-preview",
	"gemini-3.0-flash-preview",
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
}

const defaultTimeout = 120 * time.Second

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements llm.Client. Several API keys may be configured; a rate-limited key
// rotates to the next one.
type Client struct {
	model   string
	timeout time.Duration

	mu      sync.Mutex
	gens    []generator
	current int
}

// NewClient creates one genai client per API key.
func NewClient(ctx context.Context, apiKeys []string, model string, timeout time.Duration) (*Client, error) {
	var gens []generator
	for _, key := range apiKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		gens = append(gens, c.Models)
	}
	if len(gens) == 0 {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	return newWithGenerators(gens, model, timeout)
}

func newWithGenerators(gens []generator, model string, timeout time.Duration) (*Client, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	if err := llm.ValidateModel(model, Models); err != nil {
		return nil, fmt.Errorf("%w: %s", err, model)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{model: model, timeout: timeout, gens: gens}, nil
}

// Models returns the selectable model names.
func (c *Client) Models() []string {
	return Models
}

// Analyze requests the JSON analysis.
func (c *Client) Analyze(ctx context.Context, req llm.AnalyzeRequest) (string, error) {
	prompt := llm.AnalysisPrompt(ctx, req)
	if sink, ok := llm.PromptHashSinkFromContext(ctx); ok && sink != nil {
		*sink = llm.HashPrompt(prompt)
	}
	temp := float32(0.2)
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temp,
	}
	return c.generate(ctx, req.Model, prompt, cfg)
}

// Chat answers one coach chat turn in free text.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	return c.generate(ctx, req.Model, llm.BuildChatPrompt(req), nil)
}

func (c *Client) generate(ctx context.Context, model, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = c.model
	}
	if err := llm.ValidateModel(model, Models); err != nil {
		return "", fmt.Errorf("%w: %s", err, model)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	for range c.keyCount() {
		gen, idx := c.pick()
		start := time.Now()
		result, err := gen.GenerateContent(ctx, model, genai.Text(prompt), cfg)
		if err != nil {
			if isRateLimited(err) && c.keyCount() > 1 {
				telemetry.Warn("llm.key_rotated", map[string]any{"provider": "gemini", "key_index": idx})
				c.rotate(idx)
				lastErr = err
				continue
			}
			return "", fmt.Errorf("%w: gemini generate: %w", llm.ErrService, err)
		}
		text := responseText(result)
		telemetry.Debug("llm.response", map[string]any{
			"provider":    "gemini",
			"model":       model,
			"duration_ms": time.Since(start).Milliseconds(),
			"chars":       len(text),
		})
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("%w: empty response from gemini", llm.ErrService)
		}
		return text, nil
	}
	return "", fmt.Errorf("%w: all gemini API keys rate limited: %w", llm.ErrService, lastErr)
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func (c *Client) keyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.gens)
}

func (c *Client) pick() (generator, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[c.current], c.current
}

func (c *Client) rotate(from int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == from {
		c.current = (c.current + 1) % len(c.gens)
	}
}

var _ llm.Client = (*Client)(nil)
