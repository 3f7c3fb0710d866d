package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	nextRan := false
	router.GET("/x", func(c *gin.Context) {
		Error(c, http.StatusUnprocessableEntity, "malformed_transcript", "no cues found", gin.H{"format": "srt"})
		if !c.IsAborted() {
			t.Errorf("expected context to be aborted")
		}
	}, func(c *gin.Context) {
		nextRan = true
		c.JSON(http.StatusOK, gin.H{"unreachable": true})
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/x", nil))

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	var payload ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != "malformed_transcript" || payload.Error.Message != "no cues found" {
		t.Fatalf("unexpected body: %+v", payload)
	}
	if nextRan {
		t.Fatalf("handlers after Error should not run")
	}
}

func TestAttachmentHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/r", func(c *gin.Context) {
		Attachment(c, "coach report.docx", "application/octet-stream", []byte("PK"))
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/r", nil))

	if got := resp.Header().Get("Content-Disposition"); got != `attachment; filename="coach report.docx"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if resp.Body.String() != "PK" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}
