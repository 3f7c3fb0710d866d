package account

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
	"coach-backend/internal/shared/telemetry"
)

const guestHeader = "X-Guest-Id"

var (
	errNoGuestID      = errors.New("missing X-Guest-Id header")
	errInvalidGuestID = errors.New("invalid guest id")
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/account/claim-guest", h.claimGuest)
}

// claimGuest moves the transcripts and analyses a browser uploaded as a guest
// onto the account that has just signed in from the same browser.
func (h *Handler) claimGuest(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}
	owner := strings.TrimSpace(middleware.UserIDFromContext(c))
	if middleware.IsGuest(c) || owner == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "sign in to keep your guest transcripts", nil)
		return
	}

	guestOwner, err := guestOwnerFromHeader(c.GetHeader(guestHeader))
	if err != nil {
		issue := "invalid"
		if errors.Is(err, errNoGuestID) {
			issue = "required"
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), []map[string]string{
			{"field": guestHeader, "issue": issue},
		})
		return
	}

	result, err := h.Svc.ClaimGuest(c.Request.Context(), guestOwner, owner)
	if err != nil {
		telemetry.Error("account.claim_guest_failed", map[string]any{
			"request_id": middleware.RequestIDFromContext(c),
			"user_id":    owner,
			"error":      err.Error(),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to move guest transcripts", nil)
		return
	}
	telemetry.Info("account.claim_guest", map[string]any{
		"request_id":  middleware.RequestIDFromContext(c),
		"user_id":     owner,
		"transcripts": result.MigratedTranscripts,
		"analyses":    result.MigratedAnalyses,
	})
	respond.JSON(c, http.StatusOK, result)
}

// guestOwnerFromHeader maps the browser's guest UUID to the owner ID its uploads were stored under.
func guestOwnerFromHeader(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", errNoGuestID
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", errInvalidGuestID
	}
	return "guest:" + id, nil
}
