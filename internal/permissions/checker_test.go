package permissions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/charlesng35/bizcore/internal/models"
)

func TestCheckerOperatorHoldsEverything(t *testing.T) {
	db := setupPermissionTestDB(t)
	operator := createUser(t, db, "operator", true)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	ok, err := checker.Check(context.Background(), operator.ID, "any-tenant", TenantManage)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = checker.Check(context.Background(), operator.ID, "any-tenant", "non.existent.permission")
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestCheckerScopesGrantsToTenant(t *testing.T) {
	db := setupPermissionTestDB(t)
	user := createUser(t, db, "alice", false)
	acme := createTenant(t, db, "acme")
	beta := createTenant(t, db, "beta")

	grant(t, db, user.ID, acme.ID, models.RoleOwner, EntityView, EntityDelete)
	grant(t, db, user.ID, beta.ID, models.RoleMember, EntityViewOwn, EntityEditOwn)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	ok, err := checker.Check(context.Background(), user.ID, acme.ID, EntityDelete)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.Check(context.Background(), user.ID, beta.ID, EntityDelete)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = checker.Check(context.Background(), user.ID, beta.ID, EntityEditOwn)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckerDependencyEnforcement(t *testing.T) {
	db := setupPermissionTestDB(t)
	user := createUser(t, db, "bob", false)
	tenant := createTenant(t, db, "acme")

	// entity.delete without entity.view is not effective.
	grant(t, db, user.ID, tenant.ID, models.RoleAdmin, EntityDelete)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	ok, err := checker.Check(context.Background(), user.ID, tenant.ID, EntityDelete)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckerIncludesImpliedPermissions(t *testing.T) {
	db := setupPermissionTestDB(t)
	user := createUser(t, db, "carol", false)
	tenant := createTenant(t, db, "acme")
	grant(t, db, user.ID, tenant.ID, models.RoleManager, EntityView, EntityEdit)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	ok, err := checker.Check(context.Background(), user.ID, tenant.ID, EntityEditOwn)
	require.NoError(t, err)
	require.True(t, ok)

	perms, err := checker.Granted(context.Background(), user.ID, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, []string{EntityEdit, EntityEditOwn, EntityView, EntityViewOwn}, perms)
}

func TestCheckerDeniesInactiveUser(t *testing.T) {
	db := setupPermissionTestDB(t)
	user := createUser(t, db, "dave", false)
	tenant := createTenant(t, db, "acme")
	grant(t, db, user.ID, tenant.ID, models.RoleOwner, EntityView)
	require.NoError(t, db.Model(user).Update("is_active", false).Error)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	ok, err := checker.Check(context.Background(), user.ID, tenant.ID, EntityView)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSyncPrunesUnregisteredPermissions(t *testing.T) {
	db := setupPermissionTestDB(t)

	const temp = "temp.permission"
	require.NoError(t, Register(&Permission{ID: temp, Module: "test"}))
	require.NoError(t, Sync(context.Background(), db))

	var count int64
	require.NoError(t, db.Model(&models.Permission{}).Where("id = ?", temp).Count(&count).Error)
	require.EqualValues(t, 1, count)

	unregister(temp)
	require.NoError(t, Sync(context.Background(), db))
	require.NoError(t, db.Model(&models.Permission{}).Where("id = ?", temp).Count(&count).Error)
	require.Zero(t, count)
}

func setupPermissionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:perm-" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Tenant{},
		&models.Permission{},
		&models.PermissionGroup{},
		&models.UserPermissionGroup{},
	))
	require.NoError(t, Sync(context.Background(), db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string, operator bool) *models.User {
	t.Helper()
	user := &models.User{
		Username:   username,
		Email:      username + "@example.com",
		Password:   "hashed",
		IsActive:   true,
		IsOperator: operator,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTenant(t *testing.T, db *gorm.DB, slug string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: slug, Slug: slug, IsActive: true}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

func grant(t *testing.T, db *gorm.DB, userID, tenantID string, role models.Role, permIDs ...string) {
	t.Helper()

	group := &models.PermissionGroup{TenantID: tenantID, Role: role, Name: "tenant:" + tenantID + ":" + string(role)}
	require.NoError(t, db.Create(group).Error)

	perms := make([]models.Permission, 0, len(permIDs))
	for _, id := range permIDs {
		perms = append(perms, models.Permission{BaseModel: models.BaseModel{ID: id}})
	}
	require.NoError(t, db.Model(group).Association("Permissions").Append(perms))
	require.NoError(t, db.Create(&models.UserPermissionGroup{
		UserID:            userID,
		PermissionGroupID: group.ID,
		TenantID:          tenantID,
	}).Error)
}
