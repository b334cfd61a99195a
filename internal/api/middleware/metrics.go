package middleware

import (
	"strconv"
	"time"

	"github.com/granta-app/granta/internal/metrics"
	"github.com/gin-gonic/gin"
)

// HTTPMetrics returns a middleware that records request latency. The route
// label uses the matched pattern, not the raw path, so tokens and IDs do not
// explode cardinality.
func HTTPMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTPRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
