package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docuchat-backend/internal/shared/metrics"
	"docuchat-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request and records HTTP metrics.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		reqID := RequestIDFromContext(c)

		userID, _ := c.Get(userIDKey)
		documentID, _ := c.Get("documentId")
		batchSize, _ := c.Get("batchSize")

		metrics.ObserveHTTP(c.Request.Method, c.FullPath(), status, latency)
		telemetry.Info("request.complete", map[string]any{
			"request_id":  reqID,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"user_id":     userID,
			"document_id": documentID,
			"batch_size":  batchSize,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		})
	}
}
