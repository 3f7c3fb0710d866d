// Package workerproc turns a queue body into one analysis run. The SQS worker and the Lambda
// worker share it so both classify bad payloads the same way.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"coach-backend/internal/analyses"
	"coach-backend/internal/queue"
)

// Payload errors. A body failing with one of these is never going to succeed.
var (
	ErrEmptyBody          = errors.New("empty message body")
	ErrDecode             = errors.New("decode message")
	ErrMissingAnalysisID  = errors.New("missing analysis id")
	ErrUnsupportedVersion = errors.New("unsupported message version")
)

// Processor runs one queued analysis.
type Processor interface {
	ProcessAnalysis(ctx context.Context, analysisID string) error
}

// Job is a decoded queue body with the diagnostics logged alongside it.
type Job struct {
	queue.Message
	BodyLen int
	BodySHA string
}

// Fields returns log fields identifying the job.
func (j Job) Fields() map[string]any {
	fields := map[string]any{"analysis_id": j.AnalysisID, "body_len": j.BodyLen}
	if j.BodySHA != "" {
		fields["body_sha256"] = j.BodySHA
	}
	if strings.TrimSpace(j.RequestID) != "" {
		fields["request_id"] = j.RequestID
	}
	return fields
}

// ProcessError is returned by Run when the payload was fine but the analysis failed.
// The message should be redelivered.
type ProcessError struct {
	AnalysisID string
	Err        error
}

func (e *ProcessError) Error() string { return "process analysis " + e.AnalysisID + ": " + e.Err.Error() }

func (e *ProcessError) Unwrap() error { return e.Err }

// Decode validates body. The returned Job carries diagnostics even when err is non-nil.
// Version 0 is read as version 1; newer versions are rejected.
func Decode(body string) (Job, error) {
	job := Job{BodyLen: len(body)}
	if strings.TrimSpace(body) == "" {
		return job, ErrEmptyBody
	}
	sum := sha256.Sum256([]byte(body))
	job.BodySHA = hex.EncodeToString(sum[:])

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return job, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	job.Message = msg
	if msg.Version > queue.MessageVersion {
		return job, fmt.Errorf("%w: %d", ErrUnsupportedVersion, msg.Version)
	}
	if strings.TrimSpace(msg.AnalysisID) == "" {
		return job, ErrMissingAnalysisID
	}
	return job, nil
}

// Run processes a decoded job with its request id attached to ctx.
func Run(ctx context.Context, processor Processor, job Job) error {
	if processor == nil {
		return errors.New("analysis processor not configured")
	}
	ctx = analyses.WithRequestID(ctx, job.RequestID)
	if err := processor.ProcessAnalysis(ctx, job.AnalysisID); err != nil {
		return &ProcessError{AnalysisID: job.AnalysisID, Err: err}
	}
	return nil
}

// HandleMessage is Decode followed by Run.
func HandleMessage(ctx context.Context, processor Processor, body string) error {
	job, err := Decode(body)
	if err != nil {
		return err
	}
	return Run(ctx, processor, job)
}

// Unrecoverable reports whether err came from the payload itself, so the message should be
// dropped rather than redelivered.
func Unrecoverable(err error) bool {
	return errors.Is(err, ErrEmptyBody) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrMissingAnalysisID) ||
		errors.Is(err, ErrUnsupportedVersion)
}
