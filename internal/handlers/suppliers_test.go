package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bizcore/internal/handlers/testutil"
	"github.com/charlesng35/bizcore/internal/models"
)

func TestSupplierHandler_TenantIsolation(t *testing.T) {
	env := testutil.NewEnv(t)
	acme := env.CreateTenant("acme")
	globex := env.CreateTenant("globex")
	owner := env.CreateUser("owner")
	env.Grant(owner, acme, models.RoleOwner)
	env.Grant(owner, globex, models.RoleOwner)
	token := env.Token(owner)

	w := env.TenantRequest(http.MethodPost, "/api/suppliers", acme.ID, map[string]string{
		"name":  "Bolts Ltd",
		"email": "sales@bolts.test",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Supplier
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &created)
	require.Equal(t, acme.ID, created.TenantID)

	w = env.TenantRequest(http.MethodGet, "/api/suppliers", globex.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var listed []models.Supplier
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &listed)
	require.Empty(t, listed)

	// The same owner cannot reach the row through another tenant.
	w = env.TenantRequest(http.MethodGet, "/api/suppliers/"+created.ID, globex.ID, nil, token)
	require.Equal(t, http.StatusNotFound, w.Code)
	w = env.TenantRequest(http.MethodDelete, "/api/suppliers/"+created.ID, globex.ID, nil, token)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.TenantRequest(http.MethodPut, "/api/suppliers/"+created.ID, acme.ID, map[string]string{"name": "Bolts & Nuts Ltd"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.TenantRequest(http.MethodGet, "/api/suppliers", acme.ID, nil, token)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &listed)
	require.Len(t, listed, 1)
	require.Equal(t, "Bolts & Nuts Ltd", listed[0].Name)

	w = env.TenantRequest(http.MethodDelete, "/api/suppliers/"+created.ID, acme.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSupplierHandler_GuestIsReadOnly(t *testing.T) {
	env := testutil.NewEnv(t)
	acme := env.CreateTenant("acme")
	guest := env.CreateUser("guest")
	env.Grant(guest, acme, models.RoleGuest)

	w := env.TenantRequest(http.MethodGet, "/api/suppliers", acme.ID, nil, env.Token(guest))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.TenantRequest(http.MethodPost, "/api/suppliers", acme.ID, map[string]string{"name": "Nope"}, env.Token(guest))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "FORBIDDEN", testutil.DecodeResponse(t, w).Error.Code)
}

func TestSupplierHandler_ValidatesPayload(t *testing.T) {
	env := testutil.NewEnv(t)
	acme := env.CreateTenant("acme")
	owner := env.CreateUser("owner")
	env.Grant(owner, acme, models.RoleOwner)

	w := env.TenantRequest(http.MethodPost, "/api/suppliers", acme.ID, map[string]string{"email": "not-an-email"}, env.Token(owner))
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Contains(t, resp.Error.Message, "name is required")
}
