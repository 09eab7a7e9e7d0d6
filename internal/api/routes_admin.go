package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/handlers"
)

type adminRouteDeps struct {
	Operators gin.HandlerFunc
	Tenants   *handlers.TenantHandler
	Users     *handlers.UserHandler
	Reconcile *handlers.ReconcileHandler
	Security  *handlers.SecurityHandler
}

// registerAdminRoutes mounts platform operator endpoints. Provisioning names
// its own tenant, so none of these resolve one.
func registerAdminRoutes(api *gin.RouterGroup, deps adminRouteDeps) {
	api.POST("/tenants", deps.Operators, deps.Tenants.Provision)

	admin := api.Group("/admin")
	admin.Use(deps.Operators)
	{
		admin.POST("/tenants/:id/activate", deps.Tenants.Activate)
		admin.GET("/users", deps.Users.List)
		admin.POST("/reconcile", deps.Reconcile.Reconcile)
		admin.GET("/reconcile/:userID", deps.Reconcile.Verify)
		admin.GET("/security/audit", deps.Security.Audit)
	}
}
