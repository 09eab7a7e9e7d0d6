package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bizcore/internal/tenancy"
)

func TestTenantAttachesResolution(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := &stubResolver{res: acme()}

	r := gin.New()
	r.GET("/tenant", withUser("user-1"), Tenant(resolver, ""), func(c *gin.Context) {
		tenantID, err := tenancy.TenantIDFrom(c.Request.Context())
		require.NoError(t, err)
		_, ok := c.Get(CtxResolutionKey)
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "set": ok})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com/tenant", nil)
	req.Header.Set(DefaultTenantHeader, " acme ")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]any
	require.NoError(t, jsonUnmarshal(w, &payload))
	require.Equal(t, "tenant-acme", payload["tenant_id"])
	require.Equal(t, true, payload["set"])

	require.Equal(t, tenancy.Signals{TenantRef: "acme", Host: "acme.example.com", UserID: "user-1"}, resolver.seen)
}

func TestTenantCustomHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := &stubResolver{res: acme()}

	r := gin.New()
	r.GET("/tenant", Tenant(resolver, "X-Org"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tenant", nil)
	req.Header.Set("X-Org", "acme")
	req.Header.Set(DefaultTenantHeader, "ignored")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "acme", resolver.seen.TenantRef)
	require.Empty(t, resolver.seen.UserID)
}

func TestTenantResolutionFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"not found":     {tenancy.ErrTenantNotFound, http.StatusNotFound, "TENANT_NOT_FOUND"},
		"access denied": {tenancy.ErrTenantAccessDenied, http.StatusForbidden, "TENANT_ACCESS_DENIED"},
		"ambiguous":     {tenancy.ErrTenantAmbiguous, http.StatusBadRequest, "TENANT_AMBIGUOUS"},
		"no tenant":     {tenancy.ErrNoTenant, http.StatusUnprocessableEntity, "TENANT_REQUIRED"},
		"unexpected":    {errBoom, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			r := gin.New()
			r.GET("/tenant", Tenant(&stubResolver{err: tc.err}, ""), func(c *gin.Context) {
				called = true
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenant", nil))

			require.False(t, called)
			require.Equal(t, tc.status, w.Code)
			require.Equal(t, tc.code, decode(t, w).Error.Code)
		})
	}
}
