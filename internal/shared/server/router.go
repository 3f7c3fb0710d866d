package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/server/middleware"
	"coach-backend/internal/shared/server/respond"
)

// Routes is implemented by every feature handler.
type Routes interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// DevRoutes are only mounted under /api/v1/dev in dev.
type DevRoutes interface {
	RegisterDevRoutes(rg *gin.RouterGroup)
}

// RouterDeps carries the handlers mounted on /api/v1.
type RouterDeps struct {
	Config   config.Config
	Handlers []Routes
	// Ready reports dependency health for /readyz. Nil means always ready.
	Ready func() error
}

// DefaultRateLimits are the per-caller token buckets for each route group.
var DefaultRateLimits = map[string]middleware.RateLimitRule{
	middleware.GroupDefault:  {Rate: 10, Burst: 30},
	middleware.GroupPolling:  {Rate: 4, Burst: 10},
	middleware.GroupAnalysis: {Rate: 0.2, Burst: 3},
	middleware.GroupChat:     {Rate: 1, Burst: 5},
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/healthz", func(c *gin.Context) {
		respond.OK(c, gin.H{"ok": true})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(); err != nil {
				respond.Error(c, http.StatusServiceUnavailable, "not_ready", err.Error(), nil)
				return
			}
		}
		respond.OK(c, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(deps.Config.Env))
	if deps.Config.RateLimitEnabled {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    DefaultRateLimits,
			GroupFor: RateLimitGroup,
		}))
	}
	api.GET("/health", func(c *gin.Context) {
		respond.OK(c, gin.H{"ok": true})
	})

	for _, h := range deps.Handlers {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}
	if deps.Config.Env == "dev" {
		dev := api.Group("/dev")
		for _, h := range deps.Handlers {
			if d, ok := h.(DevRoutes); ok {
				d.RegisterDevRoutes(dev)
			}
		}
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})
	return r
}

// RateLimitGroup buckets requests: starting analyses and chat turns are the expensive calls,
// analysis status reads are polled.
func RateLimitGroup(c *gin.Context) string {
	route := c.FullPath()
	method := c.Request.Method
	switch {
	case method == http.MethodPost && strings.HasSuffix(route, "/transcripts/:id/analyses"):
		return middleware.GroupAnalysis
	case method == http.MethodPost && strings.HasSuffix(route, "/transcripts/:id/chat"):
		return middleware.GroupChat
	case method == http.MethodGet && (strings.HasSuffix(route, "/analyses/:id") || strings.HasSuffix(route, "/analyses/:id/stream")):
		return middleware.GroupPolling
	default:
		return middleware.GroupDefault
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
