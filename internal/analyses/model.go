package analyses

import (
	"time"

	"coach-backend/internal/feedback"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Analysis is one coaching analysis run over a stored transcript.
type Analysis struct {
	ID           string
	TranscriptID string
	UserID       string
	Lens         string
	Provider     string
	Model        string
	Status       string
	PromptHash   string
	Result       *feedback.Result
	ErrorCode    string
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Terminal reports whether the analysis will not change status again.
func (a Analysis) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusFailed
}
