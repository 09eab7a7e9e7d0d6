package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/database/testutil"
	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/permissions"
	"github.com/charlesng35/bizcore/internal/rbac"
	"github.com/charlesng35/bizcore/internal/tenancy"
	"github.com/charlesng35/bizcore/pkg/crypto"
	"github.com/charlesng35/bizcore/pkg/mail"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingInvalidator struct {
	mu      sync.Mutex
	domains []string
}

func (r *recordingInvalidator) InvalidateDomain(_ context.Context, domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains = append(r.domains, domain)
}

type testEnv struct {
	db          *gorm.DB
	clock       *testClock
	mailer      *recordingMailer
	invalidator *recordingInvalidator
	audit       *AuditService
	reconciler  *rbac.Reconciler
	checker     *permissions.Checker
	memberships *MembershipService
	invitations *InvitationService
	tenants     *TenantService
	users       *UserService
	suppliers   *SupplierService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		db:          testutil.MustOpenTestDB(t, testutil.WithSeedData()),
		clock:       &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		mailer:      &recordingMailer{},
		invalidator: &recordingInvalidator{},
	}

	var err error
	env.audit, err = NewAuditService(env.db)
	require.NoError(t, err)
	env.reconciler, err = rbac.NewReconciler(env.db)
	require.NoError(t, err)
	env.checker, err = permissions.NewChecker(env.db)
	require.NoError(t, err)
	env.memberships, err = NewMembershipService(env.db, env.audit, env.reconciler)
	require.NoError(t, err)
	env.invitations, err = NewInvitationService(env.db, env.memberships, testKey,
		WithInvitationMailer(env.mailer),
		WithInvitationAudit(env.audit),
		WithInvitationBaseURL("https://app.example.com/invite/"),
		WithInvitationClock(env.clock.Now),
	)
	require.NoError(t, err)
	env.tenants, err = NewTenantService(env.db, env.invitations, env.reconciler, env.invalidator, env.audit)
	require.NoError(t, err)
	env.users, err = NewUserService(env.db, env.audit)
	require.NoError(t, err)
	env.suppliers, err = NewSupplierService(env.db, env.checker, env.audit)
	require.NoError(t, err)
	return env
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	hashed, err := crypto.HashPassword("Sup3rSecret!")
	require.NoError(t, err)
	u := &models.User{Username: name, Email: name + "@example.com", Password: hashed, IsActive: true}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) operator(t *testing.T) *models.User {
	t.Helper()
	u := &models.User{Username: "operator", Email: "ops@example.com", Password: "x", IsActive: true, IsOperator: true}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) tenant(t *testing.T, slug string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: slug, Slug: slug, IsActive: true}
	require.NoError(t, e.db.Create(tenant).Error)
	return tenant
}

// member grants a membership directly through the store, as invitation
// acceptance does, so the reconciler runs.
func (e *testEnv) member(t *testing.T, u *models.User, tenant *models.Tenant, role models.Role) *models.Membership {
	t.Helper()
	var m *models.Membership
	require.NoError(t, e.db.Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = e.memberships.grant(context.Background(), tx, tenant.ID, u.ID, role)
		return err
	}))
	return m
}

func (e *testEnv) reload(t *testing.T, u *models.User) *models.User {
	t.Helper()
	var fresh models.User
	require.NoError(t, e.db.First(&fresh, "id = ?", u.ID).Error)
	return &fresh
}

func (e *testEnv) can(t *testing.T, userID, tenantID, perm string) bool {
	t.Helper()
	ok, err := e.checker.Check(context.Background(), userID, tenantID, perm)
	require.NoError(t, err)
	return ok
}

func inTenant(tenant *models.Tenant) context.Context {
	return tenancy.WithResolution(context.Background(), &tenancy.Resolution{Tenant: *tenant})
}

var errBoom = errors.New("boom")
