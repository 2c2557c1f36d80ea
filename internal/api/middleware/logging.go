package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/mrarosh/Pear-code/internal/metrics"
)

// LoggingMiddleware logs HTTP requests and records their metrics.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		// Metrics are labelled by route template; unknown paths share a label.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, statusCode, latency)

		// Log format: [method] path?query - status (latency)
		if raw != "" {
			path = path + "?" + raw
		}
		logger.Infof("[%s] %s - %d (%v)", c.Request.Method, path, statusCode, latency)
	}
}
