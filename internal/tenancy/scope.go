package tenancy

import (
	"context"

	"gorm.io/gorm"
)

const tenantSettingKey = "tenancy:tenant_id"

// Scope returns a handle bound to the tenant resolved in ctx. It is the only
// way business code obtains a database handle for tenant-owned models, and it
// fails with ErrNoTenant rather than returning an unscoped handle.
func Scope(ctx context.Context, db *gorm.DB) (*gorm.DB, error) {
	tenantID, err := TenantIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx).Set(tenantSettingKey, tenantID).Session(&gorm.Session{}), nil
}
