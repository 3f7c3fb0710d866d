// Package dashboard assembles the per-transcript view a coaching dashboard renders.
package dashboard

import (
	"context"
	"errors"

	"coach-backend/internal/analyses"
	"coach-backend/internal/feedback"
	"coach-backend/internal/llm"
	"coach-backend/internal/pipeline"
	"coach-backend/internal/textstats"
	"coach-backend/internal/transcripts"
)

type TranscriptSource interface {
	Get(ctx context.Context, userID, id string) (transcripts.Transcript, error)
}

type AnalysisSource interface {
	Latest(ctx context.Context, userID, transcriptID string) (analyses.Analysis, error)
}

// Service joins a transcript with its newest analysis.
type Service struct {
	Transcripts TranscriptSource
	Analyses    AnalysisSource
}

// Metrics are the transcript metrics with the sentiment resolved against the analysis.
type Metrics struct {
	WordCount             int     `json:"wordCount"`
	EstimatedDurationMins float64 `json:"estimatedDurationMins"`
	SentimentScore        int     `json:"sentimentScore"`
	SentimentLabel        string  `json:"sentimentLabel"`
	SentimentSource       string  `json:"sentimentSource"`
}

// View is the dashboard payload. Analysis fields stay empty until an analysis exists.
type View struct {
	TranscriptID     string                              `json:"transcriptId"`
	FileName         string                              `json:"fileName"`
	Lens             string                              `json:"lens"`
	Metrics          Metrics                             `json:"metrics"`
	Analysis         *analyses.AnalysisResponse          `json:"analysis"`
	Scorecard        []feedback.ScoreItem                `json:"scorecard"`
	ScorecardAverage *float64                            `json:"scorecardAverage"`
	TimelineByType   map[string][]feedback.TimelineEvent `json:"timelineByType"`
}

// Build returns the dashboard view of an owned transcript.
func (s *Service) Build(ctx context.Context, userID, transcriptID string) (View, error) {
	t, err := s.Transcripts.Get(ctx, userID, transcriptID)
	if err != nil {
		return View{}, err
	}
	view := View{
		TranscriptID:   t.ID,
		FileName:       t.FileName,
		Lens:           t.Lens,
		Scorecard:      []feedback.ScoreItem{},
		TimelineByType: map[string][]feedback.TimelineEvent{},
	}

	var result *feedback.Result
	a, err := s.Analyses.Latest(ctx, userID, t.ID)
	switch {
	case err == nil:
		resp := analyses.ToResponse(a)
		view.Analysis = &resp
		if a.Status == analyses.StatusCompleted {
			result = a.Result
		}
	case !errors.Is(err, analyses.ErrNotFound):
		return View{}, err
	}

	view.Metrics = resolveMetrics(t.Metrics, result)
	if result == nil {
		return view, nil
	}
	lensName := t.Lens
	if a.Lens != "" {
		lensName = a.Lens
	}
	lens, _ := llm.LookupLens(lensName)
	view.Scorecard = result.ScorecardItems(lens.Scorecard)
	if len(result.Scorecard) > 0 {
		avg := result.ScorecardAverage()
		view.ScorecardAverage = &avg
	}
	view.TimelineByType = result.TimelineByType()
	return view, nil
}

func resolveMetrics(m textstats.Metrics, result *feedback.Result) Metrics {
	score, source := pipeline.SentimentScore(m, result)
	return Metrics{
		WordCount:             m.WordCount,
		EstimatedDurationMins: m.EstimatedDurationMins,
		SentimentScore:        score,
		SentimentLabel:        textstats.Label(score),
		SentimentSource:       source,
	}
}
