package coach

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/llm"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
	"coach-backend/internal/transcripts"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/transcripts/:id/chat", h.chat)
}

func (h *Handler) chat(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	transcriptID := c.Param("id")
	c.Set(middleware.TranscriptIDKey, transcriptID)

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}

	reply, err := h.Svc.Ask(c.Request.Context(), userID, transcriptID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.Is(err, transcripts.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "transcript not found", nil)
		case errors.Is(err, llm.ErrService):
			respond.Error(c, http.StatusBadGateway, "analysis_service_error", "The coach is unavailable right now. Please try again.", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to answer", nil)
		}
		return
	}
	respond.OK(c, reply)
}
