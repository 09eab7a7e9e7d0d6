package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/handlers"
	"github.com/charlesng35/bizcore/internal/middleware"
	"github.com/charlesng35/bizcore/internal/permissions"
)

type tenantRouteDeps struct {
	Checker     middleware.PermissionChecker
	Users       middleware.UserLoader
	Tenants     *handlers.TenantHandler
	Memberships *handlers.MembershipHandler
	Invitations *handlers.InvitationHandler
	Suppliers   *handlers.SupplierHandler
}

func registerTenantRoutes(scoped *gin.RouterGroup, deps tenantRouteDeps) {
	require := func(perm string) gin.HandlerFunc {
		return middleware.RequirePermission(deps.Checker, perm)
	}

	scoped.GET("/tenant", require(permissions.TenantView), deps.Tenants.Current)

	// Supplier access is decided per row in the service (own versus all).
	suppliers := scoped.Group("/suppliers")
	{
		suppliers.GET("", deps.Suppliers.List)
		suppliers.GET("/:id", deps.Suppliers.Get)
		suppliers.POST("", deps.Suppliers.Create)
		suppliers.PUT("/:id", deps.Suppliers.Update)
		suppliers.DELETE("/:id", deps.Suppliers.Delete)
	}

	// Admin console
	console := scoped.Group("/tenant")
	console.Use(middleware.RequireElevated(deps.Users))
	{
		console.PATCH("", require(permissions.TenantManage), deps.Tenants.Update)
		console.POST("/domains", require(permissions.TenantManage), deps.Tenants.BindDomain)
		console.DELETE("/domains/:id", require(permissions.TenantManage), deps.Tenants.UnbindDomain)
		console.POST("/deactivate", require(permissions.TenantManage), deps.Tenants.Deactivate)

		console.GET("/members", require(permissions.MemberView), deps.Memberships.List)
		console.POST("/members", require(permissions.MemberManage), deps.Memberships.Add)
		console.PATCH("/members/:id", require(permissions.MemberManage), deps.Memberships.Update)
		console.DELETE("/members/:id", require(permissions.MemberManage), deps.Memberships.Remove)

		console.GET("/invitations", require(permissions.InvitationManage), deps.Invitations.List)
		console.POST("/invitations", require(permissions.InvitationManage), deps.Invitations.Issue)
		console.POST("/invitations/:id/resend", require(permissions.InvitationManage), deps.Invitations.Resend)
		console.DELETE("/invitations/:id", require(permissions.InvitationManage), deps.Invitations.Revoke)
	}
}
