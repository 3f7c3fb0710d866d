package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/analyses"
	"coach-backend/internal/llm"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
	"coach-backend/internal/shared/storage/object"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/shared/util"
	"coach-backend/internal/transcripts"
)

// AnalysisSource resolves owned analyses.
type AnalysisSource interface {
	Get(ctx context.Context, userID, id string) (analyses.Analysis, error)
}

// TranscriptSource resolves owned transcripts.
type TranscriptSource interface {
	Get(ctx context.Context, userID, id string) (transcripts.Transcript, error)
}

// Handler serves report downloads. Rendered reports are cached in Store when it is set.
type Handler struct {
	Analyses    AnalysisSource
	Transcripts TranscriptSource
	Store       object.Store
}

func NewHandler(an AnalysisSource, tr TranscriptSource, store object.Store) *Handler {
	return &Handler{Analyses: an, Transcripts: tr, Store: store}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyses/:id/report", h.download)
}

func (h *Handler) download(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set(middleware.AnalysisIDKey, id)

	a, err := h.Analyses.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, analyses.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		return
	}
	if a.Status != analyses.StatusCompleted || a.Result == nil {
		respond.Error(c, http.StatusConflict, "analysis_not_ready", "the analysis has not completed", []map[string]string{
			{"field": "status", "issue": a.Status},
		})
		return
	}
	tr, err := h.Transcripts.Get(ctx, userID, a.TranscriptID)
	if err != nil {
		if errors.Is(err, transcripts.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "transcript not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch transcript", nil)
		return
	}

	key := cacheKey(userID, a.ID)
	if data, ok := h.cached(ctx, key); ok {
		respond.Attachment(c, FileName(tr.FileName), ContentType, data)
		return
	}

	lens, _ := llm.LookupLens(a.Lens)
	data, err := Render(Input{Lens: lens, FileName: tr.FileName, Metrics: tr.Metrics, Result: *a.Result})
	if err != nil {
		telemetry.Error("report.render_failed", map[string]any{"analysis_id": a.ID, "error": err.Error()})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to render report", nil)
		return
	}
	if h.Store != nil {
		if _, err := h.Store.Put(ctx, key, ContentType, bytes.NewReader(data)); err != nil {
			telemetry.Warn("report.cache_failed", map[string]any{"analysis_id": a.ID, "error": err.Error()})
		}
	}
	respond.Attachment(c, FileName(tr.FileName), ContentType, data)
}

func (h *Handler) cached(ctx context.Context, key string) ([]byte, bool) {
	if h.Store == nil {
		return nil, false
	}
	data, err := object.ReadAll(ctx, h.Store, key, 0)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func cacheKey(userID, analysisID string) string {
	return path.Join(util.HashUserKey(userID), "reports", analysisID+".docx")
}
