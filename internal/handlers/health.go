package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/monitoring"
	"github.com/charlesng35/bizcore/pkg/response"
)

// Health evaluates the readiness probes. Anything short of fully up answers 503.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))
		code := http.StatusOK
		if !report.Success {
			code = http.StatusServiceUnavailable
		}
		response.Success(c, code, report)
	}
}
