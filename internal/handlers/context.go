package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/middleware"
	"github.com/charlesng35/bizcore/internal/tenancy"
	"github.com/charlesng35/bizcore/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

func currentUserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
}

// currentTenantID returns the tenant resolved for the request or writes
// TENANT_REQUIRED and returns false.
func currentTenantID(c *gin.Context) (string, bool) {
	tenantID, err := tenancy.TenantIDFrom(requestContext(c))
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return tenantID, true
}

// respondError renders err, mapping tenancy failures onto their API errors.
func respondError(c *gin.Context, err error) {
	response.Error(c, tenancy.AppError(err))
}
