package users

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/quota"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
)

// QuotaReader reports a caller's analysis allowance.
type QuotaReader interface {
	Get(ctx context.Context, userID string) (quota.Usage, error)
}

type Handler struct {
	Svc   *Service
	Quota QuotaReader
}

func NewHandler(svc *Service, q QuotaReader) *Handler {
	return &Handler{Svc: svc, Quota: q}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

// MeResponse describes the caller. Guests only get an id and their quota.
type MeResponse struct {
	UserID     string       `json:"userId"`
	Guest      bool         `json:"guest"`
	Email      string       `json:"email,omitempty"`
	FullName   string       `json:"fullName,omitempty"`
	PictureURL string       `json:"pictureUrl,omitempty"`
	Quota      *quota.Usage `json:"quota,omitempty"`
}

func (h *Handler) me(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	resp := MeResponse{UserID: userID, Guest: middleware.IsGuest(c)}
	if !resp.Guest {
		// A token can outlive a failed upsert; fall back to its claims.
		resp.Email = middleware.UserEmailFromContext(c)
		resp.FullName = middleware.UserNameFromContext(c)
		resp.PictureURL = middleware.UserPictureFromContext(c)

		user, err := h.Svc.GetByID(ctx, userID)
		switch {
		case err == nil:
			resp.Email = user.Email
			resp.FullName = user.FullName
			resp.PictureURL = user.PictureURL
		case !errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
			return
		}
	}

	if h.Quota != nil {
		usage, err := h.Quota.Get(ctx, userID)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load quota", nil)
			return
		}
		resp.Quota = &usage
	}
	respond.OK(c, resp)
}
