package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docuchat-backend/internal/documents"
	"docuchat-backend/internal/services/health"
	"docuchat-backend/internal/shared/config"
	"docuchat-backend/internal/shared/metrics"
	"docuchat-backend/internal/shared/server/middleware"
	"docuchat-backend/internal/shared/server/respond"
)

const pollRateLimitGroup = "POLL"

// RouterDeps are the handlers the router mounts.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler *documents.Handler
	Health          *health.Service
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(cfg.ExposeErrorDetails),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth("/api/v1/health", "/metrics"),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT":          {Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
				pollRateLimitGroup: {Rate: cfg.PollRateLimitRPS, Burst: cfg.PollRateLimitBurst},
			},
			GroupFor: rateLimitGroup,
			Limiter:  deps.RateLimiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	registerMeRoutes(api)
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}

	return r
}

// rateLimitGroup puts status polling reads in their own, roomier bucket.
func rateLimitGroup(c *gin.Context) string {
	if c.Request.Method != http.MethodGet {
		return ""
	}
	if strings.HasPrefix(c.FullPath(), "/api/v1/documents") {
		return pollRateLimitGroup
	}
	return ""
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
