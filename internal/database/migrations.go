package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/permissions"
	"github.com/charlesng35/bizcore/internal/tenancy"
)

func schemaModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Tenant{},
		&models.TenantDomain{},
		&models.Membership{},
		&models.Invitation{},
		&models.Permission{},
		&models.PermissionGroup{},
		&models.UserPermissionGroup{},
		&models.AuditLog{},
		&models.Supplier{},
	}
}

// AutoMigrate creates or updates the database schema for all models, then
// registers the tenant-owned tables with the isolation guard.
func AutoMigrate(db *gorm.DB) error {
	values := schemaModels()
	if err := db.AutoMigrate(values...); err != nil {
		return err
	}
	if guard, ok := tenancy.GuardOf(db); ok {
		if err := guard.Track(db, values...); err != nil {
			return fmt.Errorf("track owned tables: %w", err)
		}
	}
	return nil
}

// SeedData writes the permission registry to the database.
func SeedData(ctx context.Context, db *gorm.DB) error {
	if err := permissions.ValidateDependencies(); err != nil {
		return err
	}
	return permissions.Sync(ctx, db)
}
