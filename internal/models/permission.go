package models

// Permission mirrors a registry definition; ID is the permission identifier.
type Permission struct {
	BaseModel

	Module      string `gorm:"not null;index" json:"module"`
	Description string `json:"description"`
	DependsOn   string `gorm:"type:json" json:"depends_on"`
	Implies     string `gorm:"type:json" json:"implies"`
}

// PermissionGroup is the capability group for one (tenant, role) pair. Groups
// and their assignments are derived from memberships by the role reconciler.
type PermissionGroup struct {
	BaseModel

	TenantID string `gorm:"type:uuid;not null;uniqueIndex:idx_permission_groups_tenant_role,priority:1" json:"tenant_id"`
	Role     Role   `gorm:"size:16;not null;uniqueIndex:idx_permission_groups_tenant_role,priority:2" json:"role"`
	Name     string `gorm:"not null" json:"name"`

	Permissions []Permission `gorm:"many2many:group_permissions;" json:"permissions,omitempty"`
}

// UserPermissionGroup assigns a user to a permission group. TenantID is
// copied from the group so per-tenant checks need no extra join.
type UserPermissionGroup struct {
	UserID            string `gorm:"type:uuid;primaryKey" json:"user_id"`
	PermissionGroupID string `gorm:"type:uuid;primaryKey" json:"permission_group_id"`
	TenantID          string `gorm:"type:uuid;not null;index" json:"tenant_id"`

	PermissionGroup *PermissionGroup `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
