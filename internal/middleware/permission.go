package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/tenancy"
	"github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/metrics"
	"github.com/charlesng35/bizcore/pkg/response"
)

// PermissionChecker answers whether a user holds a permission within a tenant.
type PermissionChecker interface {
	Check(ctx context.Context, userID, tenantID, permissionID string) (bool, error)
}

// UserLoader loads the authenticated account.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// RequirePermission checks that the authenticated user holds permissionID in
// the resolved tenant. It must run after Auth and Tenant.
func RequirePermission(checker PermissionChecker, permissionID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		tenantID, err := tenancy.TenantIDFrom(c.Request.Context())
		if err != nil {
			response.Error(c, tenancy.AppError(err))
			c.Abort()
			return
		}

		allowed, err := checker.Check(c.Request.Context(), userID, tenantID, permissionID)
		if err != nil {
			metrics.PermissionChecks.WithLabelValues(permissionID, "error").Inc()
			response.Error(c, errors.ErrInternalServer.WithInternal(err))
			c.Abort()
			return
		}
		if !allowed {
			metrics.PermissionChecks.WithLabelValues(permissionID, "denied").Inc()
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		metrics.PermissionChecks.WithLabelValues(permissionID, "allowed").Inc()
		c.Next()
	}
}

// RequireElevated admits operators and users the role reconciler has flagged
// with elevated access. It gates the admin console as a whole; individual
// routes still check their group permission.
func RequireElevated(users UserLoader) gin.HandlerFunc {
	return requireUser(users, func(u *models.User) bool {
		return u.IsOperator || u.HasElevatedAccess
	})
}

// RequireOperator admits platform operators only.
func RequireOperator(users UserLoader) gin.HandlerFunc {
	return requireUser(users, func(u *models.User) bool {
		return u.IsOperator
	})
}

func requireUser(users UserLoader, allow func(*models.User) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			response.Error(c, errors.ErrUnauthorized.WithInternal(err))
			c.Abort()
			return
		}
		if !user.IsActive || !allow(user) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
