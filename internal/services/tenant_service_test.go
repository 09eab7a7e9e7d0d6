package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/permissions"
	apperrors "github.com/charlesng35/bizcore/pkg/errors"
)

func TestProvisionRequiresOperator(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	_, err := env.tenants.Provision(context.Background(), alice.ID, ProvisionTenantInput{Name: "Acme", Slug: "acme"})
	require.ErrorIs(t, err, ErrOperatorRequired)

	var count int64
	require.NoError(t, env.db.Model(&models.Tenant{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestProvisionInvitesFirstOwner(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator(t)

	provisioned, err := env.tenants.Provision(context.Background(), op.ID, ProvisionTenantInput{
		Name:       "Acme Corp",
		Slug:       "Acme",
		Domains:    []string{"Acme.Example.com:443", "acme.example.com."},
		OwnerEmail: "founder@acme.com",
	})
	require.NoError(t, err)
	require.Equal(t, "acme", provisioned.Tenant.Slug)
	require.Len(t, provisioned.Tenant.Domains, 1)
	require.Equal(t, "acme.example.com", provisioned.Tenant.Domains[0].Domain)
	require.True(t, provisioned.Tenant.Domains[0].IsPrimary)

	require.NotNil(t, provisioned.Invitation)
	require.Equal(t, models.RoleOwner, provisioned.Invitation.Invitation.Role)
	require.Equal(t, op.ID, provisioned.Invitation.Invitation.InviterID)
	require.True(t, provisioned.Invitation.Delivered)
	require.Len(t, env.mailer.sent(), 1)

	accepted, err := env.invitations.Accept(context.Background(), AcceptInvitationInput{
		Token:    provisioned.Invitation.Token,
		Username: "founder",
		Password: "C0rrectHorse!",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, accepted.Membership.Role)
	require.True(t, env.can(t, accepted.User.ID, provisioned.Tenant.ID, permissions.TenantManage))
	require.True(t, env.reload(t, accepted.User).HasElevatedAccess)
}

func TestProvisionConflicts(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator(t)

	_, err := env.tenants.Provision(context.Background(), op.ID, ProvisionTenantInput{Name: "Acme", Slug: "acme", Domains: []string{"acme.example.com"}})
	require.NoError(t, err)

	_, err = env.tenants.Provision(context.Background(), op.ID, ProvisionTenantInput{Name: "Acme 2", Slug: "acme"})
	require.ErrorIs(t, err, ErrSlugTaken)

	_, err = env.tenants.Provision(context.Background(), op.ID, ProvisionTenantInput{Name: "Beta", Slug: "beta", Domains: []string{"acme.example.com"}})
	require.ErrorIs(t, err, ErrDomainTaken)

	_, err = env.tenants.Provision(context.Background(), op.ID, ProvisionTenantInput{Name: "Bad", Slug: "Not A Slug"})
	require.ErrorIs(t, err, ErrInvalidSlug)

	_, err = env.tenants.Provision(context.Background(), op.ID, ProvisionTenantInput{Name: "Bad", Slug: "bad", Domains: []string{"localhost"}})
	require.ErrorIs(t, err, ErrInvalidDomain)

	var count int64
	require.NoError(t, env.db.Model(&models.Tenant{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestUpdateTenantLocksSlugOnceDomainBound(t *testing.T) {
	env := newTestEnv(t)
	acme := env.tenant(t, "acme")
	owner := env.user(t, "owner")
	admin := env.user(t, "admin")
	env.member(t, owner, acme, models.RoleOwner)
	env.member(t, admin, acme, models.RoleAdmin)

	name := "Acme Holdings"
	_, err := env.tenants.Update(context.Background(), admin.ID, acme.ID, UpdateTenantInput{Name: &name})
	require.ErrorIs(t, err, ErrInsufficientRole)

	slug := "acme-holdings"
	updated, err := env.tenants.Update(context.Background(), owner.ID, acme.ID, UpdateTenantInput{
		Name:     &name,
		Slug:     &slug,
		Settings: map[string]any{"currency": "EUR"},
	})
	require.NoError(t, err)
	require.Equal(t, "Acme Holdings", updated.Name)
	require.Equal(t, "acme-holdings", updated.Slug)
	require.JSONEq(t, `{"currency":"EUR"}`, string(updated.Settings))

	_, err = env.tenants.BindDomain(context.Background(), owner.ID, acme.ID, "acme.example.com", false)
	require.NoError(t, err)

	renamed := "acme-group"
	_, err = env.tenants.Update(context.Background(), owner.ID, acme.ID, UpdateTenantInput{Slug: &renamed})
	require.ErrorIs(t, err, ErrSlugLocked)

	unchanged, err := env.tenants.Update(context.Background(), owner.ID, acme.ID, UpdateTenantInput{Slug: &slug})
	require.NoError(t, err)
	require.Equal(t, slug, unchanged.Slug)
}

func TestDomainBindingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	acme := env.tenant(t, "acme")
	beta := env.tenant(t, "beta")
	owner := env.user(t, "owner")
	betaOwner := env.user(t, "betaowner")
	env.member(t, owner, acme, models.RoleOwner)
	env.member(t, betaOwner, beta, models.RoleOwner)

	first, err := env.tenants.BindDomain(context.Background(), owner.ID, acme.ID, "Acme.Example.com", false)
	require.NoError(t, err)
	require.Equal(t, "acme.example.com", first.Domain)
	require.True(t, first.IsPrimary)

	second, err := env.tenants.BindDomain(context.Background(), owner.ID, acme.ID, "portal.acme.com", true)
	require.NoError(t, err)
	require.True(t, second.IsPrimary)

	_, err = env.tenants.BindDomain(context.Background(), betaOwner.ID, beta.ID, "acme.example.com", false)
	require.ErrorIs(t, err, ErrDomainTaken)
	_, err = env.tenants.BindDomain(context.Background(), owner.ID, acme.ID, "not a host", false)
	require.ErrorIs(t, err, ErrInvalidDomain)

	tenant, err := env.tenants.Get(context.Background(), acme.ID)
	require.NoError(t, err)
	primaries := map[string]bool{}
	for _, d := range tenant.Domains {
		primaries[d.Domain] = d.IsPrimary
	}
	require.Equal(t, map[string]bool{"acme.example.com": false, "portal.acme.com": true}, primaries)

	require.NoError(t, env.tenants.UnbindDomain(context.Background(), owner.ID, acme.ID, second.ID))
	tenant, err = env.tenants.Get(context.Background(), acme.ID)
	require.NoError(t, err)
	require.Len(t, tenant.Domains, 1)
	require.True(t, tenant.Domains[0].IsPrimary)

	require.ErrorIs(t, env.tenants.UnbindDomain(context.Background(), betaOwner.ID, beta.ID, first.ID), ErrDomainNotFound)
	require.Equal(t, []string{"acme.example.com", "portal.acme.com", "portal.acme.com"}, env.invalidator.domains)
}

func TestDeactivateTenantWithdrawsAccess(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator(t)
	acme := env.tenant(t, "acme")
	beta := env.tenant(t, "beta")
	owner := env.user(t, "owner")
	manager := env.user(t, "manager")
	env.member(t, owner, acme, models.RoleOwner)
	env.member(t, manager, acme, models.RoleManager)
	env.member(t, manager, beta, models.RoleGuest)
	_, err := env.tenants.BindDomain(context.Background(), owner.ID, acme.ID, "acme.example.com", false)
	require.NoError(t, err)
	env.invalidator.domains = nil

	require.ErrorIs(t, env.tenants.Deactivate(context.Background(), manager.ID, acme.ID), ErrInsufficientRole)
	require.NoError(t, env.tenants.Deactivate(context.Background(), owner.ID, acme.ID))

	require.False(t, env.reload(t, manager).HasElevatedAccess)
	require.False(t, env.reload(t, owner).HasElevatedAccess)
	require.False(t, env.can(t, owner.ID, acme.ID, permissions.TenantView))
	require.True(t, env.can(t, manager.ID, beta.ID, permissions.EntityView))
	require.Equal(t, []string{"acme.example.com"}, env.invalidator.domains)

	var memberships int64
	require.NoError(t, env.db.Model(&models.Membership{}).Where("tenant_id = ?", acme.ID).Count(&memberships).Error)
	require.EqualValues(t, 2, memberships)

	require.ErrorIs(t, env.tenants.Deactivate(context.Background(), owner.ID, acme.ID), ErrTenantInactive)
	_, err = env.tenants.Update(context.Background(), owner.ID, acme.ID, UpdateTenantInput{})
	require.ErrorIs(t, err, apperrors.ErrTenantNotFound)

	require.ErrorIs(t, env.tenants.Activate(context.Background(), owner.ID, acme.ID), ErrOperatorRequired)
	require.NoError(t, env.tenants.Activate(context.Background(), op.ID, acme.ID))
	require.True(t, env.reload(t, manager).HasElevatedAccess)
	require.True(t, env.can(t, owner.ID, acme.ID, permissions.TenantManage))

	tenant, err := env.tenants.Get(context.Background(), acme.ID)
	require.NoError(t, err)
	require.True(t, tenant.IsActive)
	require.Nil(t, tenant.DeactivatedAt)
}
