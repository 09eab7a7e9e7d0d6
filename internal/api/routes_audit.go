package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/handlers"
)

func registerAuditRoutes(api *gin.RouterGroup, operators gin.HandlerFunc, handler *handlers.AuditHandler) {
	api.GET("/admin/audit", operators, handler.List)
}
