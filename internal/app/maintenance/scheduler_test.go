package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/bizcore/internal/database/testutil"
	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/rbac"
	"github.com/charlesng35/bizcore/internal/services"
)

type fakeSweeper struct {
	calls int
	err   error
}

func (f *fakeSweeper) ExpireStale(context.Context) (int64, error) {
	f.calls++
	return 2, f.err
}

type fakeAuditor struct{ calls int }

func (f *fakeAuditor) AuditAll(context.Context) (rbac.AuditReport, error) {
	f.calls++
	return rbac.AuditReport{Checked: 3, Repaired: 1}, nil
}

type fakePruner struct {
	calls     int
	retention int
	err       error
}

func (f *fakePruner) CleanupOlderThan(_ context.Context, days int) (int64, error) {
	f.calls++
	f.retention = days
	return 0, f.err
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	sweeper, auditor, pruner := &fakeSweeper{}, &fakeAuditor{}, &fakePruner{}
	s := NewScheduler(sweeper, auditor, pruner, WithAuditRetentionDays(30))

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, 1, sweeper.calls)
	require.Equal(t, 1, auditor.calls)
	require.Equal(t, 1, pruner.calls)
	require.Equal(t, 30, pruner.retention)
}

func TestRunOnceAggregatesFailures(t *testing.T) {
	errSweep := errors.New("sweep failed")
	errPrune := errors.New("prune failed")
	sweeper, auditor, pruner := &fakeSweeper{err: errSweep}, &fakeAuditor{}, &fakePruner{err: errPrune}

	err := NewScheduler(sweeper, auditor, pruner).RunOnce(context.Background())
	require.ErrorIs(t, err, errSweep)
	require.ErrorIs(t, err, errPrune)
	require.Equal(t, 1, auditor.calls, "a failing job must not stop later jobs")
}

func TestStartRegistersEnabledJobs(t *testing.T) {
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	s := NewScheduler(&fakeSweeper{}, &fakeAuditor{}, nil,
		WithCron(c),
		WithSchedules("@every 1h", "", "@daily"),
	)

	require.NoError(t, s.Start())
	t.Cleanup(func() { <-s.Stop().Done() })
	require.Len(t, c.Entries(), 1)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := NewScheduler(&fakeSweeper{}, nil, nil, WithSchedules("not a schedule", "", ""))
	require.ErrorContains(t, s.Start(), "invitation_sweep")
}

func TestRunOnceAgainstDatabase(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	reconciler, err := rbac.NewReconciler(db)
	require.NoError(t, err)
	memberships, err := services.NewMembershipService(db, audit, reconciler)
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(db, memberships, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	tenant := &models.Tenant{Name: "Acme", Slug: "acme", IsActive: true}
	require.NoError(t, db.Create(tenant).Error)
	inviter := &models.User{Username: "inviter", Email: "inviter@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(inviter).Error)

	// Elevated without any membership: drift the audit must repair.
	drifted := &models.User{Username: "drifted", Email: "drifted@example.com", Password: "x", IsActive: true, HasElevatedAccess: true}
	require.NoError(t, db.Create(drifted).Error)

	stale := &models.Invitation{
		TenantID:        tenant.ID,
		Email:           "late@example.com",
		PendingKey:      models.PendingKeyFor(models.InvitationPending),
		Role:            models.RoleMember,
		Status:          models.InvitationPending,
		TokenHash:       uuid.NewString(),
		TokenCiphertext: "unused",
		InviterID:       inviter.ID,
		ExpiresAt:       time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(stale).Error)

	old := &models.AuditLog{Username: "ops", Action: "tenant.provision", Result: "success"}
	require.NoError(t, db.Create(old).Error)
	require.NoError(t, db.Model(old).UpdateColumn("created_at", time.Now().UTC().AddDate(0, 0, -400)).Error)

	s := NewScheduler(invitations, reconciler, audit)
	require.NoError(t, s.RunOnce(context.Background()))

	var reloaded models.Invitation
	require.NoError(t, db.First(&reloaded, "id = ?", stale.ID).Error)
	require.Equal(t, models.InvitationExpired, reloaded.Status)
	require.Nil(t, reloaded.PendingKey)

	var user models.User
	require.NoError(t, db.First(&user, "id = ?", drifted.ID).Error)
	require.False(t, user.HasElevatedAccess)

	var remaining int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("id = ?", old.ID).Count(&remaining).Error)
	require.Zero(t, remaining)
}
