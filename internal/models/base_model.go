package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides shared fields for all persistent models.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// TenantOwned is embedded by business entities that belong to exactly one
// tenant. Its TenantID is assigned by the isolation guard and never taken from
// caller input.
type TenantOwned struct {
	TenantID string `gorm:"type:uuid;not null;index" json:"tenant_id"`
}

// OwnedByTenant marks the embedding model as tenant scoped.
func (TenantOwned) OwnedByTenant() {}
