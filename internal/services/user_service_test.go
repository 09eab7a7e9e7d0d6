package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/bizcore/internal/models"
	apperrors "github.com/charlesng35/bizcore/pkg/errors"
)

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	user, err := env.users.Authenticate(context.Background(), "alice", "Sup3rSecret!")
	require.NoError(t, err)
	require.Equal(t, alice.ID, user.ID)
	require.NotNil(t, user.LastLoginAt)

	user, err = env.users.Authenticate(context.Background(), "ALICE@example.com", "Sup3rSecret!")
	require.NoError(t, err)
	require.Equal(t, alice.ID, user.ID)

	_, err = env.users.Authenticate(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = env.users.Authenticate(context.Background(), "nobody", "Sup3rSecret!")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	require.NoError(t, env.db.Model(alice).Update("is_active", false).Error)
	_, err = env.users.Authenticate(context.Background(), "alice", "Sup3rSecret!")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	logs, _, err := env.audit.List(context.Background(), AuditListOptions{Filters: AuditFilters{UserID: alice.ID, Action: "auth.login"}})
	require.NoError(t, err)
	results := map[string]int{}
	for _, l := range logs {
		results[l.Result]++
	}
	require.Equal(t, map[string]int{"success": 2, "failure": 2}, results)
}

func TestUpdateProfileAndPassword(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	first, last := " Alice ", "Liddell"
	updated, err := env.users.UpdateProfile(context.Background(), alice.ID, UpdateProfileInput{FirstName: &first, LastName: &last})
	require.NoError(t, err)
	require.Equal(t, "Alice Liddell", updated.DisplayName())

	require.ErrorIs(t, env.users.ChangePassword(context.Background(), alice.ID, "wrong", "An0therSecret"), apperrors.ErrInvalidCredentials)
	require.Error(t, env.users.ChangePassword(context.Background(), alice.ID, "Sup3rSecret!", "short"))
	require.NoError(t, env.users.ChangePassword(context.Background(), alice.ID, "Sup3rSecret!", "An0therSecret"))

	_, err = env.users.Authenticate(context.Background(), "alice", "An0therSecret")
	require.NoError(t, err)

	_, err = env.users.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUsersFilters(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice")
	env.user(t, "bob")
	carol := env.user(t, "carol")
	require.NoError(t, env.db.Model(carol).Update("is_active", false).Error)

	active := true
	users, total, err := env.users.List(context.Background(), ListUsersOptions{Filters: UserFilters{IsActive: &active}})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, users, 2)

	users, total, err = env.users.List(context.Background(), ListUsersOptions{Filters: UserFilters{Query: "BO"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "bob", users[0].Username)
}

func TestEnsureOperatorRunsOnce(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.users.EnsureOperator(context.Background(), OperatorInput{Username: "root", Email: "Root@Example.com", Password: "Sup3rSecret!"})
	require.NoError(t, err)
	require.True(t, created)

	created, err = env.users.EnsureOperator(context.Background(), OperatorInput{Username: "root2", Email: "root2@example.com", Password: "Sup3rSecret!"})
	require.NoError(t, err)
	require.False(t, created)

	var operators []models.User
	require.NoError(t, env.db.Where("is_operator = ?", true).Find(&operators).Error)
	require.Len(t, operators, 1)
	require.Equal(t, "root@example.com", operators[0].Email)
	require.False(t, operators[0].HasElevatedAccess)
}
