package models

// Supplier is a tenant-scoped business record.
type Supplier struct {
	BaseModel
	TenantOwned

	Name        string `gorm:"not null;index" json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Notes       string `gorm:"size:2000" json:"notes"`
	CreatedByID string `gorm:"type:uuid;not null" json:"created_by_id"`
}
