package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tenant is one customer organization. Tenants are deactivated, never deleted.
type Tenant struct {
	BaseModel

	Name          string         `gorm:"not null" json:"name"`
	Slug          string         `gorm:"uniqueIndex;size:63;not null" json:"slug"`
	IsActive      bool           `gorm:"not null;index" json:"is_active"`
	Settings      datatypes.JSON `json:"settings,omitempty"`
	DeactivatedAt *time.Time     `json:"deactivated_at,omitempty"`

	Domains []TenantDomain `gorm:"foreignKey:TenantID" json:"domains,omitempty"`
}

// TenantDomain binds a host name to a tenant. Domains are globally unique.
type TenantDomain struct {
	BaseModel

	TenantID  string `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Domain    string `gorm:"uniqueIndex;size:253;not null" json:"domain"`
	IsPrimary bool   `gorm:"not null" json:"is_primary"`

	Tenant *Tenant `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
