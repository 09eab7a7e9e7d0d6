package models

// Membership binds a user to a tenant with a role. The unique index keeps at
// most one row, and therefore at most one active membership, per pair.
type Membership struct {
	BaseModel

	UserID    string `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_tenant,priority:1" json:"user_id"`
	TenantID  string `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_tenant,priority:2;index" json:"tenant_id"`
	Role      Role   `gorm:"size:16;not null" json:"role"`
	IsActive  bool   `gorm:"not null;index" json:"is_active"`
	IsDefault bool   `gorm:"not null" json:"is_default"`

	User   *User   `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Tenant *Tenant `gorm:"constraint:OnDelete:CASCADE" json:"tenant,omitempty"`
}
