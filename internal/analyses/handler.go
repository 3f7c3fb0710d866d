package analyses

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"coach-backend/internal/quota"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
	"coach-backend/internal/transcripts"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service

	poll           *pollLimiter
	streamInterval time.Duration
	upgrader       *websocket.Upgrader
}

// NewHandler constructs a Handler. allowedOrigins are the browser origins, beyond the API's own
// host, that may open the status stream.
func NewHandler(svc *Service, allowedOrigins ...string) *Handler {
	return &Handler{
		Svc:            svc,
		poll:           newPollLimiter(pollLimitWindow, nil),
		streamInterval: defaultStreamInterval,
		upgrader:       newUpgrader(allowedOrigins),
	}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/transcripts/:id/analyses", h.create)
	rg.GET("/transcripts/:id/analyses", h.list)
	rg.GET("/analyses/:id", h.get)
	rg.GET("/analyses/:id/stream", h.stream)
}

type createRequest struct {
	Lens  string `json:"lens"`
	Model string `json:"model"`
}

func (h *Handler) create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	transcriptID := c.Param("id")
	c.Set(middleware.TranscriptIDKey, transcriptID)

	var req createRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
			return
		}
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	a, err := h.Svc.Create(ctx, userID, transcriptID, req.Lens, req.Model)
	if err != nil {
		switch {
		case errors.Is(err, transcripts.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "transcript not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.Is(err, quota.ErrLimitReached):
			respond.Error(c, http.StatusTooManyRequests, "limit_reached", "You've reached your analysis limit for this week.", []map[string]string{
				{"field": "quota", "issue": "limit_reached"},
			})
		case errors.Is(err, ErrQueueNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "analysis queue is not configured", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	c.Set(middleware.AnalysisIDKey, a.ID)
	c.Set(middleware.StatusTransitionKey, "new->"+StatusQueued)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"analysisId":   a.ID,
		"transcriptId": a.TranscriptID,
		"status":       a.Status,
	})
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set(middleware.AnalysisIDKey, id)

	a, err := h.Svc.Get(c.Request.Context(), userID, id)
	if err != nil {
		writeLookupError(c, err)
		return
	}
	if !a.Terminal() && !h.poll.Allow(userID, id) {
		c.Header("Retry-After", strconv.Itoa(h.poll.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "poll_too_fast", "poll less frequently", nil)
		return
	}
	respond.OK(c, ToResponse(a))
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	transcriptID := c.Param("id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.Svc.List(c.Request.Context(), userID, transcriptID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}
	out := make([]AnalysisResponse, 0, len(list))
	for _, a := range list {
		out = append(out, ToResponse(a))
	}
	respond.OK(c, out)
}

func writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis id is required", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
	}
}
