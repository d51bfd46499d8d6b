package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/educhain-labs/governance-api/internal/service"
)

// Metrics times each request and reports it to the metrics service. The
// route template is used as the path label so /schedules/:id stays a
// single series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			// Unmatched routes collapse into one label to keep
			// cardinality bounded.
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
