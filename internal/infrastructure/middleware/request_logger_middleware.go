package middleware

import (
	"context"
	"time"

	"confsync/pkg/logger"
	"confsync/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggingMiddleware tags every request with an id and logs it with
// whatever context fields the request accumulated.
func RequestLoggingMiddleware(contextLogger *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}
		// Key must match what ContextLogger.WithContext reads.
		ctx := context.WithValue(c.Request.Context(), "request_id", requestID) //nolint:staticcheck
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		contextLogger.LogRequest(c.Request.Context(), c.Request.Method, path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
