package dashboard

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
	rg.GET("/transcripts/:id/dashboard", h.dashboard)
	rg.GET("/lenses", h.lenses)
	rg.GET("/lenses/:lens/playbook", h.playbook)
}

func (h *Handler) dashboard(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set(middleware.TranscriptIDKey, id)

	view, err := h.Svc.Build(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, transcripts.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "transcript not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build dashboard", nil)
		return
	}
	respond.OK(c, view)
}

// LensSummary is the catalog entry clients use to pick a lens.
type LensSummary struct {
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	ReportTitle   string   `json:"reportTitle"`
	Scorecard     []string `json:"scorecard"`
	TimelineTypes []string `json:"timelineTypes"`
}

func (h *Handler) lenses(c *gin.Context) {
	names := llm.LensNames()
	out := make([]LensSummary, 0, len(names))
	for _, name := range names {
		l, err := llm.LookupLens(name)
		if err != nil {
			continue
		}
		out = append(out, LensSummary{
			Name:          l.Name,
			Title:         l.Title,
			ReportTitle:   l.ReportTitle,
			Scorecard:     l.Scorecard,
			TimelineTypes: l.TimelineTypes,
		})
	}
	respond.OK(c, gin.H{"items": out, "default": llm.DefaultLens})
}

// playbook serves JSON by default and the raw markdown with ?format=markdown.
func (h *Handler) playbook(c *gin.Context) {
	l, err := llm.LookupLens(c.Param("lens"))
	if err != nil {
		respond.Error(c, http.StatusNotFound, "not_found", "lens not found", []map[string]string{
			{"field": "lens", "issue": "unknown"},
		})
		return
	}
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(l.Playbook))
		return
	}
	respond.OK(c, gin.H{"lens": l.Name, "title": l.Title, "playbook": l.Playbook})
}
