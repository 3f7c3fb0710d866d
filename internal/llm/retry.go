package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"coach-backend/internal/shared/telemetry"
)

// RetryDelay is the pause before the single retry of a transient failure.
var RetryDelay = 300 * time.Millisecond

type retrying struct {
	base   Client
	fields map[string]any
}

// WithRetry wraps base so a transient failure is retried once after RetryDelay.
// fields are attached to the retry log line.
func WithRetry(base Client, fields map[string]any) Client {
	if base == nil {
		return nil
	}
	if _, ok := base.(retrying); ok {
		return base
	}
	return retrying{base: base, fields: fields}
}

func (r retrying) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	return retryOnce(ctx, r.fields, "analyze", func() (string, error) {
		return r.base.Analyze(ctx, req)
	})
}

func (r retrying) Chat(ctx context.Context, req ChatRequest) (string, error) {
	return retryOnce(ctx, r.fields, "chat", func() (string, error) {
		return r.base.Chat(ctx, req)
	})
}

// Models forwards to the wrapped client when it restricts models.
func (r retrying) Models() []string {
	if lister, ok := r.base.(ModelLister); ok {
		return lister.Models()
	}
	return nil
}

func retryOnce(ctx context.Context, fields map[string]any, op string, call func() (string, error)) (string, error) {
	resp, err := call()
	if err == nil || !ShouldRetry(err) {
		return resp, err
	}

	logFields := map[string]any{"op": op, "attempt": 1, "error": truncate(err.Error(), 300)}
	for k, v := range fields {
		logFields[k] = v
	}
	telemetry.Warn("llm.retry", logFields)

	select {
	case <-time.After(RetryDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return call()
}

// ShouldRetry reports whether err looks transient: timeouts, dropped connections, 429 and 5xx replies.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrUnknownModel) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "http status 5"), strings.Contains(msg, "server_error"):
		return true
	case strings.Contains(msg, "http status 429"), strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "rate limit"):
		return true
	case strings.Contains(msg, "timeout"):
		return true
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "unexpected eof"):
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
