// Package pipeline runs the synchronous upload -> ingest -> metrics -> analysis flow.
// The HTTP service, the CLI and the inbox watcher all go through these steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"coach-backend/internal/feedback"
	"coach-backend/internal/ingest"
	"coach-backend/internal/llm"
	"coach-backend/internal/textstats"
)

// DefaultMaxBytes bounds files read by RunFile.
const DefaultMaxBytes = 5 << 20

// ErrTooLarge is returned when a file exceeds the runner's size limit.
var ErrTooLarge = errors.New("transcript exceeds size limit")

// Runner executes pipeline steps against one LLM client.
type Runner struct {
	LLM      llm.Client
	Stats    textstats.Extractor
	MaxBytes int64
}

// Outcome is everything one pipeline run produced.
type Outcome struct {
	FileName   string
	Transcript ingest.Transcript
	Metrics    textstats.Metrics
	Lens       llm.Lens
	Model      string
	Result     feedback.Result
	PromptHash string
}

// Ingest parses data and computes its metrics. Nothing is sent to the model.
func (r *Runner) Ingest(fileName string, data []byte) (ingest.Transcript, textstats.Metrics, error) {
	if int64(len(data)) > r.maxBytes() {
		return ingest.Transcript{}, textstats.Metrics{}, ErrTooLarge
	}
	tr, err := ingest.Parse(fileName, data)
	if err != nil {
		return ingest.Transcript{}, textstats.Metrics{}, err
	}
	return tr, r.Stats.Compute(tr.Text), nil
}

// Analyze sends the timed transcript through the lens prompt and parses the reply.
// An unparsable reply gets one repair attempt. The returned hash identifies the last prompt sent.
func (r *Runner) Analyze(ctx context.Context, lens llm.Lens, model string, tr ingest.Transcript) (feedback.Result, string, error) {
	if r.LLM == nil {
		return feedback.Result{}, "", fmt.Errorf("%w: no model client configured", llm.ErrService)
	}
	var promptHash string
	ctx = llm.WithPromptHashSink(ctx, &promptHash)
	req := llm.AnalyzeRequest{Lens: lens, Transcript: tr.Timed(), Model: model}

	raw, err := r.LLM.Analyze(ctx, req)
	if err != nil {
		return feedback.Result{}, promptHash, fmt.Errorf("llm analyze: %w", err)
	}
	result, err := feedback.ParseForLens(raw, lens)
	if err == nil {
		return result, promptHash, nil
	}
	if !errors.Is(err, feedback.ErrParse) {
		return feedback.Result{}, promptHash, err
	}

	fixed, fixErr := r.LLM.Analyze(llm.WithFixJSON(ctx, raw), req)
	if fixErr != nil {
		return feedback.Result{}, promptHash, fmt.Errorf("llm analyze retry: %w", fixErr)
	}
	result, err = feedback.ParseForLens(fixed, lens)
	if err != nil {
		return feedback.Result{}, promptHash, err
	}
	return result, promptHash, nil
}

// Run ingests data and analyzes it under the named lens.
func (r *Runner) Run(ctx context.Context, fileName string, data []byte, lensName, model string) (Outcome, error) {
	lens, err := llm.LookupLens(lensName)
	if err != nil {
		return Outcome{}, err
	}
	tr, stats, err := r.Ingest(fileName, data)
	if err != nil {
		return Outcome{}, err
	}
	result, hash, err := r.Analyze(ctx, lens, model, tr)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		FileName:   fileName,
		Transcript: tr,
		Metrics:    stats,
		Lens:       lens,
		Model:      model,
		Result:     result,
		PromptHash: hash,
	}, nil
}

// RunFile is Run over a file on disk.
func (r *Runner) RunFile(ctx context.Context, path, lensName, model string) (Outcome, error) {
	data, err := ReadFile(path, r.maxBytes())
	if err != nil {
		return Outcome{}, err
	}
	return r.Run(ctx, filepath.Base(path), data, lensName, model)
}

// ReadFile reads path, failing with ErrTooLarge past maxBytes.
func ReadFile(path string, maxBytes int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrTooLarge)
	}
	return os.ReadFile(path)
}

// SentimentScore prefers the model's sentiment over the lexicon score.
func SentimentScore(m textstats.Metrics, r *feedback.Result) (score int, source string) {
	if r != nil && r.SentimentScore != nil {
		return *r.SentimentScore, "model"
	}
	return m.SentimentScore, "lexicon"
}

func (r *Runner) maxBytes() int64 {
	if r.MaxBytes > 0 {
		return r.MaxBytes
	}
	return DefaultMaxBytes
}
