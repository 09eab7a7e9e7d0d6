package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/handlers"
)

// registerPublicRoutes mounts the unauthenticated endpoints. All of them sit
// behind the per client IP limiter.
func registerPublicRoutes(engine *gin.Engine, limit gin.HandlerFunc, auth *handlers.AuthHandler, invitations *handlers.InvitationHandler) {
	public := engine.Group("/api")
	public.Use(limit)
	{
		public.POST("/auth/login", auth.Login)
		public.GET("/invitations/validate", invitations.Validate)
		public.POST("/invitations/accept", invitations.Accept)
	}
}

type accountRouteDeps struct {
	Auth        *handlers.AuthHandler
	Memberships *handlers.MembershipHandler
	Invitations *handlers.InvitationHandler
}

// registerAccountRoutes mounts endpoints about the caller's own account. They
// need no resolved tenant.
func registerAccountRoutes(api *gin.RouterGroup, deps accountRouteDeps) {
	api.GET("/auth/me", deps.Auth.Me)

	me := api.Group("/me")
	{
		me.PATCH("/profile", deps.Auth.UpdateProfile)
		me.POST("/password", deps.Auth.ChangePassword)
		me.GET("/memberships", deps.Memberships.ListMine)
		me.PUT("/memberships/:id/default", deps.Memberships.SetDefault)
		me.DELETE("/memberships/:id", deps.Memberships.Leave)
		me.POST("/invitations/accept", deps.Invitations.AcceptExisting)
	}
}
