package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"docuchat-backend/internal/shared/server/respond"
	"docuchat-backend/internal/shared/telemetry"
)

// Recovery recovers from panics and returns a standardized error response.
// The panic value is echoed in details only when exposeDetails is set.
func Recovery(exposeDetails bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				reqID := RequestIDFromContext(c)
				telemetry.Error("panic", map[string]any{
					"request_id": reqID,
					"error":      rec,
					"stack":      string(debug.Stack()),
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
				})
				details := "unexpected server error"
				if exposeDetails {
					details = fmt.Sprintf("%s: %v", details, rec)
				}
				respond.Error(c, http.StatusInternalServerError, "internal_error", details)
			}
		}()
		c.Next()
	}
}
