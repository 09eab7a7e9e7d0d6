package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/handlers"
	"github.com/charlesng35/bizcore/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers every route
// group on top of the service graph.
func NewRouter(svc *Services) (*gin.Engine, error) {
	if svc == nil {
		return nil, errors.New("services must be provided")
	}
	cfg := svc.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.SecurityHeaders(cfg.Tenancy.HeaderName()))
	r.Use(middleware.Actor())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/health", handlers.Health(svc.Health))
	registerMonitoringRoutes(r, cfg)

	authHandler := handlers.NewAuthHandler(svc.Users, svc.Tokens)
	invitationHandler := handlers.NewInvitationHandler(svc.Invitations, svc.Tokens)

	publicLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.Public.RequestsPerMinute,
		Burst:             cfg.RateLimit.Public.Burst,
	})
	registerPublicRoutes(r, publicLimit, authHandler, invitationHandler)

	// Authenticated routes
	api := r.Group("/api")
	api.Use(middleware.Auth(svc.Tokens))

	registerAccountRoutes(api, accountRouteDeps{
		Auth:        authHandler,
		Memberships: handlers.NewMembershipHandler(svc.Memberships),
		Invitations: invitationHandler,
	})

	registerAdminRoutes(api, adminRouteDeps{
		Operators: middleware.RequireOperator(svc.Users),
		Tenants:   handlers.NewTenantHandler(svc.Tenants),
		Users:     handlers.NewUserHandler(svc.Users),
		Reconcile: handlers.NewReconcileHandler(svc.Reconciler, svc.Users),
		Security:  handlers.NewSecurityHandler(svc.Security),
	})
	registerAuditRoutes(api, middleware.RequireOperator(svc.Users), handlers.NewAuditHandler(svc.Audit))

	// Tenant-scoped routes
	scoped := api.Group("")
	scoped.Use(middleware.Tenant(svc.Resolver, cfg.Tenancy.HeaderName()))
	registerTenantRoutes(scoped, tenantRouteDeps{
		Checker:     svc.Checker,
		Users:       svc.Users,
		Tenants:     handlers.NewTenantHandler(svc.Tenants),
		Memberships: handlers.NewMembershipHandler(svc.Memberships),
		Invitations: invitationHandler,
		Suppliers:   handlers.NewSupplierHandler(svc.Suppliers),
	})

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
