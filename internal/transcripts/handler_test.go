package transcripts

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/shared/server/middleware"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := newTestService(t)
	svc.MaxBytes = 256

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.Auth("dev"))
	NewHandler(svc).RegisterRoutes(api)
	return router, svc
}

func uploadRequest(t *testing.T, fileName, content, lens string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if lens != "" {
		if err := writer.WriteField("lens", lens); err != nil {
			t.Fatalf("write lens: %v", err)
		}
	}
	fileWriter, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte(content)); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcripts", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Guest-Id", "11111111-1111-1111-1111-111111111111")
	return req
}

func TestUploadAndFetchTranscript(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, uploadRequest(t, "consult.srt", sampleSRT, "bridal"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created TranscriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.TranscriptID == "" || created.Metrics.WordCount != 13 || created.Format != "srt" {
		t.Fatalf("unexpected response %+v", created)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcripts/"+created.TranscriptID+"?includeText=true", nil)
	req.Header.Set("X-Guest-Id", "11111111-1111-1111-1111-111111111111")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var fetched TranscriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if !strings.HasPrefix(fetched.Text, "Thanks so much") {
		t.Fatalf("expected transcript text, got %q", fetched.Text)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transcripts", nil)
	req.Header.Set("X-Guest-Id", "22222222-2222-2222-2222-222222222222")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || strings.TrimSpace(resp.Body.String()) != "[]" {
		t.Fatalf("other guests should see an empty list, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		lens     string
		wantCode int
		wantErr  string
	}{
		{name: "unsupported", file: "consult.docx", content: "x", wantCode: http.StatusBadRequest, wantErr: "unsupported_format"},
		{name: "malformed srt", file: "consult.srt", content: "1\nnot a timestamp\nhello\n", wantCode: http.StatusUnprocessableEntity, wantErr: "malformed_transcript"},
		{name: "bad lens", file: "consult.txt", content: "hello", lens: "podcast", wantCode: http.StatusBadRequest, wantErr: "validation_error"},
		{name: "too large", file: "consult.txt", content: strings.Repeat("a", 300), wantCode: http.StatusRequestEntityTooLarge, wantErr: "file_too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t)
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, uploadRequest(t, tt.file, tt.content, tt.lens))
			if resp.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, resp.Code, resp.Body.String())
			}
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if body.Error.Code != tt.wantErr {
				t.Fatalf("expected %s, got %s", tt.wantErr, body.Error.Code)
			}
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcripts", strings.NewReader(""))
	req.Header.Set("X-Guest-Id", "11111111-1111-1111-1111-111111111111")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetUnknownTranscript(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcripts/nope", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
