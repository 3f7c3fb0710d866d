package analyses

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/telemetry"
)

const (
	defaultStreamInterval = time.Second
	streamWriteWait       = 10 * time.Second
)

// newUpgrader accepts upgrades from allowedOrigins; identity is checked by Auth before the upgrade.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     middleware.OriginChecker(allowedOrigins),
	}
}

// Watch calls fn with the analysis each time its status changes, starting with the
// current state, and returns once it reaches a terminal status or ctx ends.
func (s *Service) Watch(ctx context.Context, userID, id string, interval time.Duration, fn func(Analysis) error) error {
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		a, err := s.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		if a.Status != last {
			if err := fn(a); err != nil {
				return err
			}
			last = a.Status
		}
		if a.Terminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *Handler) stream(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set(middleware.AnalysisIDKey, id)

	if _, err := h.Svc.Get(c.Request.Context(), userID, id); err != nil {
		writeLookupError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// Reading is required to process close and ping frames; a read error means the client left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = h.Svc.Watch(ctx, userID, id, h.streamInterval, func(a Analysis) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(ToResponse(a))
	})

	reason := "done"
	if err != nil && ctx.Err() == nil {
		reason = "error"
		telemetry.Warn("analysis.stream_failed", map[string]any{
			"analysis_id": id,
			"user_id":     userID,
			"error":       err.Error(),
		})
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(streamWriteWait))
}
