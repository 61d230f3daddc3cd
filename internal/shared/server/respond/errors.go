package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docuchat-backend/internal/shared/telemetry"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Error sends a standardized error response and aborts the chain.
func Error(c *gin.Context, status int, code, details string) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"details":    details,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Details: details})
}
