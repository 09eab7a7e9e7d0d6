package tenancy_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/database/testutil"
	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/tenancy"
)

type world struct {
	db *gorm.DB
}

func newWorld(t *testing.T) *world {
	t.Helper()
	return &world{db: testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())}
}

func (w *world) user(t *testing.T, name string, mutate ...func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", Password: "x", IsActive: true}
	for _, fn := range mutate {
		fn(u)
	}
	require.NoError(t, w.db.Create(u).Error)
	return u
}

func (w *world) tenant(t *testing.T, slug string, domains ...string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: slug, Slug: slug, IsActive: true}
	require.NoError(t, w.db.Create(tenant).Error)
	for i, d := range domains {
		require.NoError(t, w.db.Create(&models.TenantDomain{TenantID: tenant.ID, Domain: d, IsPrimary: i == 0}).Error)
	}
	return tenant
}

func (w *world) join(t *testing.T, u *models.User, tenant *models.Tenant, role models.Role, isDefault bool) {
	t.Helper()
	require.NoError(t, w.db.Create(&models.Membership{
		UserID: u.ID, TenantID: tenant.ID, Role: role, IsActive: true, IsDefault: isDefault,
	}).Error)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
	stores  int
}

func (c *mapCache) Lookup(_ context.Context, domain string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[domain]
	return id, ok, nil
}

func (c *mapCache) Store(_ context.Context, domain, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[domain] = tenantID
	c.stores++
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, domain)
	return nil
}

func TestResolverSignals(t *testing.T) {
	w := newWorld(t)
	acme := w.tenant(t, "acme", "acme.example.com")
	beta := w.tenant(t, "beta")
	u := w.user(t, "alice")
	w.join(t, u, acme, models.RoleMember, false)

	resolver, err := tenancy.NewResolver(w.db)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = resolver.Resolve(ctx, tenancy.Signals{TenantRef: beta.ID, UserID: u.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantAccessDenied)

	res, err := resolver.Resolve(ctx, tenancy.Signals{Host: "ACME.example.com:8443", UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, acme.ID, res.TenantID())
	require.Equal(t, tenancy.SourceDomain, res.Source)
	role, ok := res.Role()
	require.True(t, ok)
	require.Equal(t, models.RoleMember, role)

	res, err = resolver.Resolve(ctx, tenancy.Signals{UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, acme.ID, res.TenantID())
	require.Equal(t, tenancy.SourceMembership, res.Source)
	require.Equal(t, u.ID, res.UserID)

	res, err = resolver.Resolve(ctx, tenancy.Signals{TenantRef: "acme", UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, acme.ID, res.TenantID())
	require.Equal(t, tenancy.SourceHeader, res.Source)
}

func TestResolverExplicitSignalTakesPrecedence(t *testing.T) {
	w := newWorld(t)
	acme := w.tenant(t, "acme")
	beta := w.tenant(t, "beta", "beta.example.com")
	u := w.user(t, "bob")
	w.join(t, u, acme, models.RoleAdmin, false)
	w.join(t, u, beta, models.RoleGuest, false)

	resolver, err := tenancy.NewResolver(w.db)
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), tenancy.Signals{TenantRef: acme.ID, Host: "beta.example.com", UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, acme.ID, res.TenantID())

	res, err = resolver.Resolve(context.Background(), tenancy.Signals{Host: "beta.example.com", UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, beta.ID, res.TenantID())

	// A failing explicit signal never falls through to a lower one.
	_, err = resolver.Resolve(context.Background(), tenancy.Signals{TenantRef: "missing", Host: "beta.example.com", UserID: u.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantNotFound)
}

func TestResolverDomainOfForeignTenantDoesNotFallBack(t *testing.T) {
	w := newWorld(t)
	acme := w.tenant(t, "acme")
	w.tenant(t, "beta", "beta.example.com")
	u := w.user(t, "carol")
	w.join(t, u, acme, models.RoleMember, true)

	resolver, err := tenancy.NewResolver(w.db)
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), tenancy.Signals{Host: "beta.example.com", UserID: u.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantAccessDenied)
	require.Nil(t, res)

	res, err = resolver.Resolve(context.Background(), tenancy.Signals{UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, acme.ID, res.TenantID())
}

func TestResolverExplicitSignalFailures(t *testing.T) {
	w := newWorld(t)
	acme := w.tenant(t, "acme")
	closed := w.tenant(t, "closed")
	require.NoError(t, w.db.Model(closed).Update("is_active", false).Error)
	u := w.user(t, "carol")
	w.join(t, u, acme, models.RoleOwner, false)
	w.join(t, u, closed, models.RoleOwner, false)
	disabled := w.user(t, "dave")
	require.NoError(t, w.db.Model(disabled).Update("is_active", false).Error)
	w.join(t, disabled, acme, models.RoleOwner, false)

	resolver, err := tenancy.NewResolver(w.db)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = resolver.Resolve(ctx, tenancy.Signals{TenantRef: acme.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantAccessDenied)

	_, err = resolver.Resolve(ctx, tenancy.Signals{TenantRef: "nope", UserID: u.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantNotFound)

	_, err = resolver.Resolve(ctx, tenancy.Signals{TenantRef: closed.ID, UserID: u.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantNotFound)

	_, err = resolver.Resolve(ctx, tenancy.Signals{TenantRef: acme.ID, UserID: disabled.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantAccessDenied)

	// The inactive tenant does not count towards membership resolution.
	res, err := resolver.Resolve(ctx, tenancy.Signals{UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, acme.ID, res.TenantID())
}

func TestResolverOperatorWithoutMembership(t *testing.T) {
	w := newWorld(t)
	acme := w.tenant(t, "acme")
	op := w.user(t, "root", func(u *models.User) { u.IsOperator = true })

	resolver, err := tenancy.NewResolver(w.db)
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), tenancy.Signals{TenantRef: acme.ID, UserID: op.ID})
	require.NoError(t, err)
	require.Equal(t, acme.ID, res.TenantID())
	require.Nil(t, res.Membership)
	_, ok := res.Role()
	require.False(t, ok)
}

func TestResolverMembershipAmbiguity(t *testing.T) {
	w := newWorld(t)
	acme := w.tenant(t, "acme")
	beta := w.tenant(t, "beta")
	u := w.user(t, "erin")
	w.join(t, u, acme, models.RoleMember, false)
	w.join(t, u, beta, models.RoleMember, true)
	loner := w.user(t, "frank")

	resolver, err := tenancy.NewResolver(w.db)
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), tenancy.Signals{UserID: u.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantAmbiguous)

	_, err = resolver.Resolve(context.Background(), tenancy.Signals{UserID: loner.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantNotFound)

	_, err = resolver.Resolve(context.Background(), tenancy.Signals{})
	require.ErrorIs(t, err, tenancy.ErrTenantNotFound)

	withDefault, err := tenancy.NewResolver(w.db, tenancy.WithDefaultMembership(true))
	require.NoError(t, err)
	res, err := withDefault.Resolve(context.Background(), tenancy.Signals{UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, beta.ID, res.TenantID())
	require.Equal(t, tenancy.SourceDefaultMembership, res.Source)
}

func TestResolverBaseDomains(t *testing.T) {
	w := newWorld(t)
	acme := w.tenant(t, "acme", "acme.example.com")
	u := w.user(t, "gina")
	w.join(t, u, acme, models.RoleMember, false)

	strict, err := tenancy.NewResolver(w.db, tenancy.WithBaseDomains("Example.com"))
	require.NoError(t, err)
	_, err = strict.Resolve(context.Background(), tenancy.Signals{Host: "ghost.example.com", UserID: u.ID})
	require.ErrorIs(t, err, tenancy.ErrTenantNotFound)

	// Hosts outside the platform domains fall through to memberships.
	res, err := strict.Resolve(context.Background(), tenancy.Signals{Host: "localhost:8080", UserID: u.ID})
	require.NoError(t, err)
	require.Equal(t, acme.ID, res.TenantID())

	// Anonymous callers may resolve by domain, without a membership.
	res, err = strict.Resolve(context.Background(), tenancy.Signals{Host: "acme.example.com"})
	require.NoError(t, err)
	require.Equal(t, acme.ID, res.TenantID())
	require.Nil(t, res.Membership)

	require.NoError(t, w.db.Model(acme).Update("is_active", false).Error)
	_, err = strict.Resolve(context.Background(), tenancy.Signals{Host: "acme.example.com"})
	require.ErrorIs(t, err, tenancy.ErrTenantNotFound)
}

func TestResolverDomainCache(t *testing.T) {
	w := newWorld(t)
	acme := w.tenant(t, "acme", "acme.example.com")
	cache := &mapCache{entries: map[string]string{}}

	resolver, err := tenancy.NewResolver(w.db, tenancy.WithDomainCache(cache))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := resolver.Resolve(context.Background(), tenancy.Signals{Host: "acme.example.com"})
		require.NoError(t, err)
		require.Equal(t, acme.ID, res.TenantID())
	}
	require.Equal(t, 1, cache.stores)

	resolver.InvalidateDomain(context.Background(), "ACME.example.com.")
	_, ok, _ := cache.Lookup(context.Background(), "acme.example.com")
	require.False(t, ok)
}

func TestNormaliseHost(t *testing.T) {
	cases := map[string]string{
		"":                      "",
		"Acme.Example.com":      "acme.example.com",
		"acme.example.com:443":  "acme.example.com",
		"acme.example.com.":     "acme.example.com",
		"[::1]:8080":            "::1",
		"  spaced.example.com ": "spaced.example.com",
	}
	for in, want := range cases {
		require.Equal(t, want, tenancy.NormaliseHost(in), in)
	}
}
