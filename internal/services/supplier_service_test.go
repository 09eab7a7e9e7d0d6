package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/tenancy"
	apperrors "github.com/charlesng35/bizcore/pkg/errors"
)

func TestSupplierOwnerInOneTenantCannotDeleteInAnother(t *testing.T) {
	env := newTestEnv(t)
	acme := env.tenant(t, "acme")
	beta := env.tenant(t, "beta")
	erin := env.user(t, "erin")
	betaOwner := env.user(t, "betaowner")
	env.member(t, erin, acme, models.RoleOwner)
	env.member(t, erin, beta, models.RoleMember)
	env.member(t, betaOwner, beta, models.RoleOwner)

	betaSupplier, err := env.suppliers.Create(inTenant(beta), betaOwner.ID, SupplierInput{Name: "Beta Paper"})
	require.NoError(t, err)
	require.Equal(t, beta.ID, betaSupplier.TenantID)

	err = env.suppliers.Delete(inTenant(beta), erin.ID, betaSupplier.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	acmeSupplier, err := env.suppliers.Create(inTenant(acme), erin.ID, SupplierInput{Name: "Acme Steel"})
	require.NoError(t, err)
	require.NoError(t, env.suppliers.Delete(inTenant(acme), erin.ID, acmeSupplier.ID))

	// Deleting from Beta with an Acme row id finds nothing.
	err = env.suppliers.Delete(inTenant(beta), betaOwner.ID, acmeSupplier.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSupplierRowsNeverCrossTenants(t *testing.T) {
	env := newTestEnv(t)
	acme := env.tenant(t, "acme")
	beta := env.tenant(t, "beta")
	frank := env.user(t, "frank")
	env.member(t, frank, acme, models.RoleAdmin)
	env.member(t, frank, beta, models.RoleAdmin)

	acmeRow, err := env.suppliers.Create(inTenant(acme), frank.ID, SupplierInput{Name: "Acme Steel"})
	require.NoError(t, err)
	_, err = env.suppliers.Create(inTenant(beta), frank.ID, SupplierInput{Name: "Beta Paper"})
	require.NoError(t, err)

	listed, err := env.suppliers.List(inTenant(acme), frank.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "Acme Steel", listed[0].Name)

	_, err = env.suppliers.Get(inTenant(beta), frank.ID, acmeRow.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = env.suppliers.Update(inTenant(beta), frank.ID, acmeRow.ID, SupplierInput{Name: "Hijacked"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	reloaded, err := env.suppliers.Get(inTenant(acme), frank.ID, acmeRow.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme Steel", reloaded.Name)
}

func TestSupplierMemberSeesOwnRowsOnly(t *testing.T) {
	env := newTestEnv(t)
	acme := env.tenant(t, "acme")
	manager := env.user(t, "manager")
	member := env.user(t, "member")
	env.member(t, manager, acme, models.RoleManager)
	env.member(t, member, acme, models.RoleMember)

	managerRow, err := env.suppliers.Create(inTenant(acme), manager.ID, SupplierInput{Name: "Managed"})
	require.NoError(t, err)

	// Members may not create; seed one of their rows directly.
	_, err = env.suppliers.Create(inTenant(acme), member.ID, SupplierInput{Name: "Mine"})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
	scoped, err := tenancy.Scope(inTenant(acme), env.db)
	require.NoError(t, err)
	own := &models.Supplier{Name: "Mine", CreatedByID: member.ID}
	require.NoError(t, scoped.Create(own).Error)

	listed, err := env.suppliers.List(inTenant(acme), member.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, own.ID, listed[0].ID)

	_, err = env.suppliers.Get(inTenant(acme), member.ID, managerRow.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	updated, err := env.suppliers.Update(inTenant(acme), member.ID, own.ID, SupplierInput{Name: "Mine, renamed", Phone: " 555-0100 "})
	require.NoError(t, err)
	require.Equal(t, "Mine, renamed", updated.Name)
	require.Equal(t, "555-0100", updated.Phone)

	_, err = env.suppliers.Update(inTenant(acme), member.ID, managerRow.ID, SupplierInput{Name: "Nope"})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	managerView, err := env.suppliers.List(inTenant(acme), manager.ID)
	require.NoError(t, err)
	require.Len(t, managerView, 2)
}

func TestSupplierGuestIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	acme := env.tenant(t, "acme")
	admin := env.user(t, "admin")
	guest := env.user(t, "guest")
	env.member(t, admin, acme, models.RoleAdmin)
	env.member(t, guest, acme, models.RoleGuest)

	row, err := env.suppliers.Create(inTenant(acme), admin.ID, SupplierInput{Name: "Acme Steel"})
	require.NoError(t, err)

	listed, err := env.suppliers.List(inTenant(acme), guest.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = env.suppliers.Create(inTenant(acme), guest.ID, SupplierInput{Name: "Guest Row"})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = env.suppliers.Update(inTenant(acme), guest.ID, row.ID, SupplierInput{Name: "Edited"})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
	require.ErrorIs(t, env.suppliers.Delete(inTenant(acme), guest.ID, row.ID), apperrors.ErrForbidden)
}

func TestSupplierRequiresResolvedTenant(t *testing.T) {
	env := newTestEnv(t)
	acme := env.tenant(t, "acme")
	outsider := env.user(t, "outsider")
	admin := env.user(t, "admin")
	env.member(t, admin, acme, models.RoleAdmin)

	_, err := env.suppliers.List(context.Background(), admin.ID)
	require.ErrorIs(t, err, tenancy.ErrNoTenant)
	_, err = env.suppliers.Create(context.Background(), admin.ID, SupplierInput{Name: "Loose"})
	require.ErrorIs(t, err, tenancy.ErrNoTenant)

	_, err = env.suppliers.List(inTenant(acme), outsider.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	var count int64
	scoped, err := tenancy.Scope(inTenant(acme), env.db)
	require.NoError(t, err)
	require.NoError(t, scoped.Model(&models.Supplier{}).Count(&count).Error)
	require.Zero(t, count)
}
