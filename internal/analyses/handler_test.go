package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"coach-backend/internal/feedback"
	"coach-backend/internal/shared/server/middleware"
)

func newTestRouter(t *testing.T, env *testEnv, allowedOrigins ...string) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(env.svc, allowedOrigins...)
	h.streamInterval = 10 * time.Millisecond

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.Auth("dev"))
	h.RegisterRoutes(api)
	return router, h
}

func guestRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Guest-Id", "g1")
	return req
}

func TestCreateAndFetchAnalysis(t *testing.T) {
	env := newTestEnv(t, 5)
	router, h := newTestRouter(t, env)
	h.poll = nil

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, guestRequest(http.MethodPost, "/api/v1/transcripts/"+env.transcript.ID+"/analyses", `{"lens":"bridal"}`))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		AnalysisID string `json:"analysisId"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.AnalysisID == "" || created.Status != StatusQueued {
		t.Fatalf("unexpected create response: %s", resp.Body.String())
	}
	waitTerminal(t, env.repo, created.AnalysisID)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, guestRequest(http.MethodGet, "/api/v1/analyses/"+created.AnalysisID, ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got AnalysisResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != StatusCompleted || got.Result == nil || got.Error != nil {
		t.Fatalf("unexpected analysis: %s", resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"consult_scorecard"`) {
		t.Fatalf("expected snake_case result keys: %s", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, guestRequest(http.MethodGet, "/api/v1/transcripts/"+env.transcript.ID+"/analyses", ""))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), created.AnalysisID) {
		t.Fatalf("expected list to include analysis: %d %s", resp.Code, resp.Body.String())
	}
}

func TestCreateAnalysisErrors(t *testing.T) {
	env := newTestEnv(t, 1)
	router, _ := newTestRouter(t, env)

	cases := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "unknown transcript", path: "/api/v1/transcripts/missing/analyses", wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "bad json", path: "/api/v1/transcripts/" + env.transcript.ID + "/analyses", body: `{"lens":`, wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
		{name: "unknown lens", path: "/api/v1/transcripts/" + env.transcript.ID + "/analyses", body: `{"lens":"poetry"}`, wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
		{name: "first ok", path: "/api/v1/transcripts/" + env.transcript.ID + "/analyses", wantStatus: http.StatusAccepted},
		{name: "limit reached", path: "/api/v1/transcripts/" + env.transcript.ID + "/analyses", wantStatus: http.StatusTooManyRequests, wantCode: "limit_reached"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, guestRequest(http.MethodPost, tc.path, tc.body))
			if resp.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, resp.Code, resp.Body.String())
			}
			if tc.wantCode != "" && !strings.Contains(resp.Body.String(), `"code":"`+tc.wantCode+`"`) {
				t.Fatalf("expected code %s, got %s", tc.wantCode, resp.Body.String())
			}
		})
	}
}

func TestGetAnalysisNotFoundAndFailed(t *testing.T) {
	env := newTestEnv(t, 5)
	router, _ := newTestRouter(t, env)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, guestRequest(http.MethodGet, "/api/v1/analyses/missing", ""))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	a := env.queued(t, "a-failed")
	if err := env.repo.Fail(context.Background(), a.ID, ErrorCodeParse, "no JSON object in reply", time.Now().UTC()); err != nil {
		t.Fatalf("fail: %v", err)
	}
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, guestRequest(http.MethodGet, "/api/v1/analyses/"+a.ID, ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"code":"ANALYSIS_PARSE_ERROR"`) || strings.Contains(resp.Body.String(), `"result"`) {
		t.Fatalf("unexpected failed analysis body: %s", resp.Body.String())
	}
}

func TestGetAnalysisPollLimit(t *testing.T) {
	env := newTestEnv(t, 5)
	router, h := newTestRouter(t, env)
	h.poll = newPollLimiter(time.Hour, nil)
	a := env.queued(t, "a-poll")

	first := httptest.NewRecorder()
	router.ServeHTTP(first, guestRequest(http.MethodGet, "/api/v1/analyses/"+a.ID, ""))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	second := httptest.NewRecorder()
	router.ServeHTTP(second, guestRequest(http.MethodGet, "/api/v1/analyses/"+a.ID, ""))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestPollLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newPollLimiter(time.Second, func() time.Time { return now })
	if !l.Allow("u", "a") {
		t.Fatalf("first poll should pass")
	}
	if l.Allow("u", "a") {
		t.Fatalf("second poll inside the window should be limited")
	}
	if !l.Allow("u", "b") {
		t.Fatalf("other analyses are limited separately")
	}
	now = now.Add(time.Second)
	if !l.Allow("u", "a") {
		t.Fatalf("poll after the window should pass")
	}
	if l.RetryAfterSeconds() != 1 {
		t.Fatalf("expected 1s retry-after, got %d", l.RetryAfterSeconds())
	}
}

func TestStreamPushesStatusUntilTerminal(t *testing.T) {
	env := newTestEnv(t, 5)
	router, _ := newTestRouter(t, env)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	a := env.queued(t, "a-stream")
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/analyses/" + a.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-Guest-Id": []string{"g1"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first AnalysisResponse
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if first.Status != StatusQueued {
		t.Fatalf("expected queued first, got %s", first.Status)
	}

	if err := env.repo.Complete(context.Background(), a.ID, feedback.Result{Summary: "done"}, "hash", time.Now().UTC()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	var last AnalysisResponse
	if err := conn.ReadJSON(&last); err != nil {
		t.Fatalf("read final: %v", err)
	}
	if last.Status != StatusCompleted || last.Result == nil || last.Result.Summary != "done" {
		t.Fatalf("unexpected final frame: %+v", last)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestStreamUnknownAnalysis(t *testing.T) {
	env := newTestEnv(t, 5)
	router, _ := newTestRouter(t, env)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, guestRequest(http.MethodGet, "/api/v1/analyses/missing/stream", ""))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before upgrade, got %d", resp.Code)
	}
}

func TestStreamChecksOrigin(t *testing.T) {
	env := newTestEnv(t, 5)
	router, _ := newTestRouter(t, env, "https://app.example")
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	a := env.queued(t, "a-origin")
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/analyses/" + a.ID + "/stream"

	tests := []struct {
		name   string
		origin string
		wantOK bool
	}{
		{name: "configured origin", origin: "https://app.example", wantOK: true},
		{name: "no origin", origin: "", wantOK: true},
		{name: "foreign origin", origin: "https://evil.example", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{"X-Guest-Id": []string{"g1"}}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if !tt.wantOK {
				if err == nil {
					conn.Close()
					t.Fatalf("expected upgrade to be refused")
				}
				if resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Fatalf("expected 403, got %v", resp)
				}
				return
			}
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			conn.Close()
		})
	}
}
