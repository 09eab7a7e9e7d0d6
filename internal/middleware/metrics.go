package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/tenancy"
	"github.com/charlesng35/bizcore/pkg/metrics"
)

// Metrics observes request latency by route template. Requests that matched
// no route share one label so probing unknown paths cannot grow the series.
// The scope label tells tenant-scoped traffic from platform traffic.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		scope := "platform"
		if _, ok := tenancy.FromContext(c.Request.Context()); ok {
			scope = "tenant"
		}

		metrics.APILatency.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), scope).
			Observe(time.Since(start).Seconds())
	}
}
