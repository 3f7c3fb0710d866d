package transcripts

import (
	"time"

	"coach-backend/internal/textstats"
)

// TranscriptResponse is the outward-facing representation of a transcript.
type TranscriptResponse struct {
	TranscriptID string            `json:"transcriptId"`
	FileName     string            `json:"fileName"`
	Format       string            `json:"format"`
	Lens         string            `json:"lens"`
	SizeBytes    int64             `json:"sizeBytes"`
	CueCount     int               `json:"cueCount"`
	Metrics      textstats.Metrics `json:"metrics"`
	UploadedAt   time.Time         `json:"uploadedAt"`
	Text         string            `json:"text,omitempty"`
}

func toResponse(t Transcript) TranscriptResponse {
	return TranscriptResponse{
		TranscriptID: t.ID,
		FileName:     t.FileName,
		Format:       string(t.Format),
		Lens:         t.Lens,
		SizeBytes:    t.SizeBytes,
		CueCount:     t.CueCount,
		Metrics:      t.Metrics,
		UploadedAt:   t.CreatedAt,
	}
}
