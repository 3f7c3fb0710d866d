package analyses

import (
	"time"

	"coach-backend/internal/feedback"
)

// AnalysisResponse is the API shape of an analysis.
type AnalysisResponse struct {
	AnalysisID   string           `json:"analysisId"`
	TranscriptID string           `json:"transcriptId"`
	Lens         string           `json:"lens"`
	Provider     string           `json:"provider,omitempty"`
	Model        string           `json:"model,omitempty"`
	Status       string           `json:"status"`
	PromptHash   string           `json:"promptHash,omitempty"`
	Result       *feedback.Result `json:"result,omitempty"`
	Error        *ErrorInfo       `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
}

// ErrorInfo describes why an analysis failed.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts an Analysis for API output. The result is only included once completed.
func ToResponse(a Analysis) AnalysisResponse {
	resp := AnalysisResponse{
		AnalysisID:   a.ID,
		TranscriptID: a.TranscriptID,
		Lens:         a.Lens,
		Provider:     a.Provider,
		Model:        a.Model,
		Status:       a.Status,
		PromptHash:   a.PromptHash,
		CreatedAt:    a.CreatedAt,
		StartedAt:    a.StartedAt,
		CompletedAt:  a.CompletedAt,
	}
	switch a.Status {
	case StatusCompleted:
		resp.Result = a.Result
	case StatusFailed:
		resp.Error = &ErrorInfo{Code: a.ErrorCode, Message: a.ErrorMessage}
	}
	return resp
}
