package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/tenancy"
	"github.com/charlesng35/bizcore/pkg/response"
)

const (
	// DefaultTenantHeader carries an explicit tenant id or slug.
	DefaultTenantHeader = "X-Tenant-ID"

	CtxResolutionKey = "tenantResolution"
)

// TenantResolver resolves the tenant a request acts within.
type TenantResolver interface {
	Resolve(ctx context.Context, sig tenancy.Signals) (*tenancy.Resolution, error)
}

// Tenant resolves the request's tenant and attaches it to the request context.
// Requests that cannot be resolved are rejected before reaching the handler.
func Tenant(resolver TenantResolver, header string) gin.HandlerFunc {
	if strings.TrimSpace(header) == "" {
		header = DefaultTenantHeader
	}
	return func(c *gin.Context) {
		sig := tenancy.Signals{
			TenantRef: strings.TrimSpace(c.GetHeader(header)),
			Host:      c.Request.Host,
			UserID:    c.GetString(CtxUserIDKey),
		}

		res, err := resolver.Resolve(c.Request.Context(), sig)
		if err != nil {
			response.Error(c, tenancy.AppError(err))
			c.Abort()
			return
		}

		c.Set(CtxResolutionKey, res)
		c.Request = c.Request.WithContext(tenancy.WithResolution(c.Request.Context(), res))
		c.Next()
	}
}
