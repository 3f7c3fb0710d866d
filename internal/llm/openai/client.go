// Package openai implements llm.Client on the OpenAI Chat Completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coach-backend/internal/llm"
	"coach-backend/internal/shared/telemetry"
)

var apiURL = "https://api.openai.com/v1/chat/completions"

const (
	defaultTimeout = 120 * time.Second

	systemPromptAnalysis = "You are a conversation coaching engine. Respond with JSON only. No markdown. Never omit keys."
	systemPromptChat     = "You are a conversation coach. Answer in plain text."
)

// Client implements llm.Client using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client. A zero timeout uses two minutes.
func NewClient(apiKey, model string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Analyze requests the JSON analysis in json_object mode.
func (c *Client) Analyze(ctx context.Context, req llm.AnalyzeRequest) (string, error) {
	prompt := llm.AnalysisPrompt(ctx, req)
	if sink, ok := llm.PromptHashSinkFromContext(ctx); ok && sink != nil {
		*sink = llm.HashPrompt(prompt)
	}
	messages := []chatMessage{
		{Role: "system", Content: systemPromptAnalysis},
		{Role: "user", Content: prompt},
	}
	return c.complete(ctx, req.Model, messages, &responseFormat{Type: "json_object"})
}

// Chat answers one coach chat turn in free text.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPromptChat},
		{Role: "user", Content: llm.BuildChatPrompt(req)},
	}
	return c.complete(ctx, req.Model, messages, nil)
}

func (c *Client) complete(ctx context.Context, model string, messages []chatMessage, format *responseFormat) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = c.model
	}
	reqBody := chatRequest{
		Model:          model,
		Messages:       messages,
		ResponseFormat: format,
	}
	if !isGPT5(model) {
		temp := float32(0)
		reqBody.Temperature = &temp
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", fmt.Errorf("%w: openai request timeout: %w", llm.ErrService, err)
		}
		return "", fmt.Errorf("%w: openai request: %w", llm.ErrService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: openai read body: %w", llm.ErrService, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("%w: openai http status %d: %s", llm.ErrService, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return "", fmt.Errorf("%w: openai response parse: %w", llm.ErrService, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: openai http status %d: %s (%s)", llm.ErrService, resp.StatusCode, parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: openai http status %d: %s", llm.ErrService, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: openai response missing choices", llm.ErrService)
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: openai response empty content", llm.ErrService)
	}
	logUsage(model, time.Since(start), parsed)
	return content, nil
}

func logUsage(model string, elapsed time.Duration, parsed chatResponse) {
	fields := map[string]any{
		"provider":    "openai",
		"model":       model,
		"duration_ms": elapsed.Milliseconds(),
	}
	if parsed.Usage != nil {
		fields["prompt_tokens"] = parsed.Usage.PromptTokens
		fields["completion_tokens"] = parsed.Usage.CompletionTokens
		fields["total_tokens"] = parsed.Usage.TotalTokens
	}
	telemetry.Debug("llm.response", fields)
}

// gpt-5 models reject an explicit temperature.
func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ llm.Client = (*Client)(nil)
