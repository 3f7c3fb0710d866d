package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/analyses"
	"coach-backend/internal/feedback"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/textstats"
	"coach-backend/internal/transcripts"
)

const testUser = "guest:g1"

type stubTranscripts map[string]transcripts.Transcript

func (s stubTranscripts) Get(_ context.Context, userID, id string) (transcripts.Transcript, error) {
	t, ok := s[id]
	if !ok || t.UserID != userID {
		return transcripts.Transcript{}, transcripts.ErrNotFound
	}
	return t, nil
}

type stubAnalyses struct {
	latest map[string]analyses.Analysis
	err    error
}

func (s stubAnalyses) Latest(_ context.Context, _, transcriptID string) (analyses.Analysis, error) {
	if s.err != nil {
		return analyses.Analysis{}, s.err
	}
	a, ok := s.latest[transcriptID]
	if !ok {
		return analyses.Analysis{}, analyses.ErrNotFound
	}
	return a, nil
}

func fixtures() (stubTranscripts, stubAnalyses) {
	score := 82
	result := &feedback.Result{
		Summary:        "Booked the trial.",
		SentimentScore: &score,
		Scorecard:      map[string]int{"next_steps_locked": 9, "authority_and_leadership": 6},
		Timeline: []feedback.TimelineEvent{
			{Timestamp: "00:00:10", Type: "rapport", Description: "Opener"},
			{Timestamp: "00:04:00", Type: "pricing", Description: "Packages"},
			{Timestamp: "00:05:30", Type: "rapport", Description: "Callback to venue"},
		},
	}
	metrics := textstats.Metrics{WordCount: 420, EstimatedDurationMins: 3, SentimentScore: 35, SentimentLabel: textstats.LabelNegative}
	tr := stubTranscripts{
		"t-done":    {ID: "t-done", UserID: testUser, FileName: "a.srt", Lens: "bridal", Metrics: metrics},
		"t-pending": {ID: "t-pending", UserID: testUser, FileName: "b.txt", Lens: "bridal", Metrics: metrics},
		"t-none":    {ID: "t-none", UserID: testUser, FileName: "c.vtt", Lens: "sales", Metrics: metrics},
	}
	an := stubAnalyses{latest: map[string]analyses.Analysis{
		"t-done":    {ID: "a-1", TranscriptID: "t-done", UserID: testUser, Lens: "bridal", Status: analyses.StatusCompleted, Result: result, CreatedAt: time.Now()},
		"t-pending": {ID: "a-2", TranscriptID: "t-pending", UserID: testUser, Lens: "bridal", Status: analyses.StatusQueued, CreatedAt: time.Now()},
	}}
	return tr, an
}

func TestBuildWithCompletedAnalysis(t *testing.T) {
	tr, an := fixtures()
	svc := &Service{Transcripts: tr, Analyses: an}

	view, err := svc.Build(context.Background(), testUser, "t-done")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if view.Metrics.SentimentScore != 82 || view.Metrics.SentimentSource != "model" || view.Metrics.SentimentLabel != textstats.LabelPositive {
		t.Fatalf("expected model sentiment, got %+v", view.Metrics)
	}
	if view.Analysis == nil || view.Analysis.Result == nil {
		t.Fatalf("expected completed analysis in view")
	}
	if len(view.Scorecard) != 2 || view.Scorecard[0].Dimension != "authority_and_leadership" {
		t.Fatalf("expected lens scorecard order, got %+v", view.Scorecard)
	}
	if view.ScorecardAverage == nil || *view.ScorecardAverage != 7.5 {
		t.Fatalf("unexpected average: %v", view.ScorecardAverage)
	}
	if len(view.TimelineByType["rapport"]) != 2 || len(view.TimelineByType["pricing"]) != 1 {
		t.Fatalf("unexpected grouping: %+v", view.TimelineByType)
	}
}

func TestBuildFallsBackToLexicon(t *testing.T) {
	tr, an := fixtures()
	svc := &Service{Transcripts: tr, Analyses: an}

	for _, id := range []string{"t-pending", "t-none"} {
		view, err := svc.Build(context.Background(), testUser, id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if view.Metrics.SentimentScore != 35 || view.Metrics.SentimentSource != "lexicon" {
			t.Fatalf("%s: expected lexicon sentiment, got %+v", id, view.Metrics)
		}
		if view.ScorecardAverage != nil || len(view.Scorecard) != 0 {
			t.Fatalf("%s: expected empty scorecard", id)
		}
	}

	view, _ := svc.Build(context.Background(), testUser, "t-none")
	if view.Analysis != nil {
		t.Fatalf("expected no analysis")
	}
}

func TestBuildErrors(t *testing.T) {
	tr, _ := fixtures()
	broken := errors.New("db down")
	svc := &Service{Transcripts: tr, Analyses: stubAnalyses{err: broken}}

	if _, err := svc.Build(context.Background(), testUser, "t-done"); !errors.Is(err, broken) {
		t.Fatalf("expected repo error, got %v", err)
	}
	if _, err := svc.Build(context.Background(), "guest:other", "t-done"); !errors.Is(err, transcripts.ErrNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	tr, an := fixtures()
	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.Auth("dev"))
	NewHandler(&Service{Transcripts: tr, Analyses: an}).RegisterRoutes(api)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Guest-Id", "g1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestDashboardHandler(t *testing.T) {
	router := newRouter()

	resp := get(router, "/api/v1/transcripts/t-done/dashboard")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	metrics := body["metrics"].(map[string]any)
	if metrics["sentimentSource"] != "model" {
		t.Fatalf("unexpected metrics: %v", metrics)
	}
	if _, ok := body["timelineByType"].(map[string]any)["pricing"]; !ok {
		t.Fatalf("expected grouped timeline: %v", body["timelineByType"])
	}

	if resp := get(router, "/api/v1/transcripts/missing/dashboard"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestLensRoutes(t *testing.T) {
	router := newRouter()

	cases := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "catalog", path: "/api/v1/lenses", wantStatus: http.StatusOK, wantBody: `"default":"bridal"`},
		{name: "playbook json", path: "/api/v1/lenses/sales/playbook", wantStatus: http.StatusOK, wantBody: "Sales Call Playbook"},
		{name: "playbook markdown", path: "/api/v1/lenses/bridal/playbook?format=markdown", wantStatus: http.StatusOK, wantBody: "## Consultation Playbook"},
		{name: "unknown lens", path: "/api/v1/lenses/florist/playbook", wantStatus: http.StatusNotFound, wantBody: "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := get(router, tc.path)
			if resp.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, resp.Code)
			}
			if !strings.Contains(resp.Body.String(), tc.wantBody) {
				t.Fatalf("expected %q in %s", tc.wantBody, resp.Body.String())
			}
		})
	}
}
